package audit

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/internal/database"
)

// Open 按配置打开审计存储。
// 未配置驱动时返回 Nop 并记录告警，调用方无需分支。
func Open(cfg config.AuditConfig, logger *zap.Logger) (Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		logger.Warn("audit store disabled, guard decisions will not be persisted")
		return Nop{}, nil
	}

	db, err := openGorm(cfg)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	pool, err := database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure audit pool: %w", err)
	}

	logger.Info("audit store opened",
		zap.String("driver", cfg.Driver),
		zap.String("database", cfg.Name),
	)
	return NewStore(pool, logger), nil
}

func openGorm(cfg config.AuditConfig) (*gorm.DB, error) {
	opts := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN()), opts)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN()), opts)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN()), opts)
	default:
		return nil, fmt.Errorf("unsupported audit driver: %s", cfg.Driver)
	}
}
