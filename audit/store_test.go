package audit

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/internal/database"
	"github.com/BaSui01/guardflow/internal/migration"
)

// newSQLiteStore 建一个落在临时文件上的完整审计存储
func newSQLiteStore(t *testing.T) (Recorder, config.AuditConfig) {
	t.Helper()

	cfg := config.DefaultAuditConfig()
	cfg.Driver = "sqlite"
	cfg.Name = filepath.Join(t.TempDir(), "audit.db")

	migrator, err := migration.NewMigratorFromAuditConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(t.Context()))
	require.NoError(t, migrator.Close())

	store, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, cfg
}

func waitForTotals(t *testing.T, store Recorder, check func(Totals) bool) Totals {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		totals := store.Totals()
		if check(totals) {
			return totals
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("totals condition not reached: %+v", store.Totals())
	return Totals{}
}

func TestStore_RecordsAsync(t *testing.T) {
	store, cfg := newSQLiteStore(t)

	store.Record(Entry{
		RequestID:      "req-1",
		Model:          "llama3",
		Dialect:        "native",
		Direction:      DirectionInput,
		Allowed:        false,
		FailedScanners: []string{"secrets"},
		RiskScores:     map[string]float64{"secrets": 0.95},
		Language:       "zh",
		Latency:        42 * time.Millisecond,
	})
	store.Record(Entry{
		RequestID: "req-2",
		Model:     "llama3",
		Dialect:   "openai-chat",
		Direction: DirectionOutput,
		Allowed:   true,
	})

	totals := waitForTotals(t, store, func(tt Totals) bool { return tt.Recorded == 2 })
	assert.Equal(t, int64(1), totals.Blocked)
	assert.Equal(t, int64(0), totals.Failed)

	// 行内容落库验证
	db, err := openGorm(cfg)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, db.Where("request_id = ?", "req-1").First(&rec).Error)
	assert.Equal(t, "llama3", rec.Model)
	assert.False(t, rec.Allowed)
	assert.Equal(t, "zh", rec.Language)
	assert.Equal(t, int64(42), rec.LatencyMS)

	var failed []string
	require.NoError(t, json.Unmarshal([]byte(rec.FailedScanners), &failed))
	assert.Equal(t, []string{"secrets"}, failed)
}

func TestStore_CloseDrainsBuffer(t *testing.T) {
	store, _ := newSQLiteStore(t)

	for i := 0; i < 20; i++ {
		store.Record(Entry{RequestID: "req", Model: "m", Dialect: "native", Direction: DirectionInput, Allowed: true})
	}
	require.NoError(t, store.Close())
	assert.Equal(t, int64(20), store.Totals().Recorded)
}

func TestStore_WriteFailureCountsOnly(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.0"))
	// GORM 可能以 Exec 或 Query（RETURNING）形式发 INSERT，两者都挂上错误
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery("INSERT INTO").WillReturnError(errors.New("connection reset"))
	mock.ExpectClose()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)

	store := NewStore(pool, zaptest.NewLogger(t))
	store.Record(Entry{RequestID: "req-err", Model: "m", Dialect: "native", Direction: DirectionInput})

	totals := waitForTotals(t, store, func(tt Totals) bool { return tt.Failed == 1 })
	assert.Equal(t, int64(0), totals.Recorded)
	require.NoError(t, store.Close())
}

func TestOpen_DisabledReturnsNop(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	store, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, Nop{}, store)

	// 空实现全部为 no-op
	store.Record(Entry{RequestID: "x"})
	assert.Equal(t, Totals{}, store.Totals())
	assert.NoError(t, store.Close())
}

func TestEntry_ToRecordDefaults(t *testing.T) {
	rec := Entry{RequestID: "r", Model: "m"}.toRecord()
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "[]", rec.FailedScanners)
	assert.Equal(t, "{}", rec.RiskScores)
	assert.Equal(t, "en", rec.Language)
	assert.False(t, rec.CreatedAt.IsZero())
}
