package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// 注册纯 Go 的 sqlite database/sql 驱动（驱动名 "sqlite"）
	_ "github.com/glebarez/go-sqlite"
)

// =============================================================================
// 🗄️ 审计库 Schema 迁移
// =============================================================================
// postgres 与 mysql 走 golang-migrate；sqlite 由内置执行器直接应用
// 嵌入的迁移脚本，避免引入 CGO 的 sqlite 迁移驱动。两条路径共用
// 同一套嵌入 SQL 与版本表语义。
// =============================================================================

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// DatabaseType 迁移目标数据库类型
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// MigrationStatus 单个迁移的应用状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo 当前迁移总体状态
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config 迁移器配置
type Config struct {
	// DatabaseType 目标数据库类型
	DatabaseType DatabaseType
	// DatabaseURL 连接串，格式随数据库类型而异
	DatabaseURL string
	// TableName 版本表名，空值取 schema_migrations
	TableName string
	// LockTimeout 迁移锁获取超时
	LockTimeout time.Duration
}

// Migrator 数据库迁移接口
type Migrator interface {
	// Up 应用全部待执行迁移
	Up(ctx context.Context) error
	// Down 回滚最近一次迁移
	Down(ctx context.Context) error
	// DownAll 回滚全部迁移
	DownAll(ctx context.Context) error
	// Version 返回当前版本与 dirty 标记
	Version(ctx context.Context) (uint, bool, error)
	// Status 返回全部迁移的应用状态
	Status(ctx context.Context) ([]MigrationStatus, error)
	// Info 返回总体状态
	Info(ctx context.Context) (*MigrationInfo, error)
	// Close 关闭迁移器并释放连接
	Close() error
}

// NewMigrator 按数据库类型创建迁移器
func NewMigrator(cfg *Config) (Migrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}

	switch cfg.DatabaseType {
	case DatabaseTypePostgres, DatabaseTypeMySQL:
		return newDriverMigrator(cfg)
	case DatabaseTypeSQLite:
		return newSQLiteMigrator(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}

// =============================================================================
// golang-migrate 路径（postgres / mysql）
// =============================================================================

type driverMigrator struct {
	config  *Config
	migrate *migrate.Migrate
	db      *sql.DB
}

func newDriverMigrator(cfg *Config) (*driverMigrator, error) {
	var driverName string
	switch cfg.DatabaseType {
	case DatabaseTypePostgres:
		driverName = "postgres"
	case DatabaseTypeMySQL:
		driverName = "mysql"
	}

	db, err := sql.Open(driverName, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	var dbDriver database.Driver
	switch cfg.DatabaseType {
	case DatabaseTypePostgres:
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.TableName})
	case DatabaseTypeMySQL:
		dbDriver, err = mysql.WithInstance(db, &mysql.Config{MigrationsTable: cfg.TableName})
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	fsys, dir := migrationSource(cfg.DatabaseType)
	sourceDriver, err := iofs.New(fsys, dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(cfg.DatabaseType), dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &driverMigrator{config: cfg, migrate: m, db: db}, nil
}

func (m *driverMigrator) Up(ctx context.Context) error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (m *driverMigrator) Down(ctx context.Context) error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

func (m *driverMigrator) DownAll(ctx context.Context) error {
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down all failed: %w", err)
	}
	return nil
}

func (m *driverMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}

func (m *driverMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	return buildStatus(ctx, m, m.config.DatabaseType)
}

func (m *driverMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	return buildInfo(ctx, m, m.config.DatabaseType)
}

func (m *driverMigrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}

// =============================================================================
// 内置执行器路径（sqlite）
// =============================================================================

type sqliteMigrator struct {
	config *Config
	db     *sql.DB
}

func newSQLiteMigrator(cfg *Config) (*sqliteMigrator, error) {
	db, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	m := &sqliteMigrator{config: cfg, db: db}
	if err := m.ensureVersionTable(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *sqliteMigrator) ensureVersionTable() error {
	_, err := m.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL, dirty INTEGER NOT NULL)`,
		m.config.TableName,
	))
	if err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	return nil
}

func (m *sqliteMigrator) Version(ctx context.Context) (uint, bool, error) {
	var version uint
	var dirty bool
	row := m.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT version, dirty FROM %s LIMIT 1`, m.config.TableName))
	if err := row.Scan(&version, &dirty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}

func (m *sqliteMigrator) setVersion(ctx context.Context, tx *sql.Tx, version uint) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, m.config.TableName)); err != nil {
		return err
	}
	if version == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (version, dirty) VALUES (?, 0)`, m.config.TableName), version)
	return err
}

// apply 在单个事务内执行一份迁移脚本并落版本号
func (m *sqliteMigrator) apply(ctx context.Context, script string, toVersion uint) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration statement: %w", err)
		}
	}
	if err := m.setVersion(ctx, tx, toVersion); err != nil {
		tx.Rollback()
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func (m *sqliteMigrator) Up(ctx context.Context) error {
	current, _, err := m.Version(ctx)
	if err != nil {
		return err
	}
	migrations, err := listMigrations(DatabaseTypeSQLite)
	if err != nil {
		return err
	}
	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}
		script, err := readMigration(DatabaseTypeSQLite, mig, "up")
		if err != nil {
			return err
		}
		if err := m.apply(ctx, script, mig.version); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", mig.version, mig.name, err)
		}
	}
	return nil
}

func (m *sqliteMigrator) Down(ctx context.Context) error {
	current, _, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		return nil
	}
	migrations, err := listMigrations(DatabaseTypeSQLite)
	if err != nil {
		return err
	}

	var target *migrationFile
	previous := uint(0)
	for i := range migrations {
		if migrations[i].version == current {
			target = &migrations[i]
			if i > 0 {
				previous = migrations[i-1].version
			}
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no migration found for version %d", current)
	}

	script, err := readMigration(DatabaseTypeSQLite, *target, "down")
	if err != nil {
		return err
	}
	if err := m.apply(ctx, script, previous); err != nil {
		return fmt.Errorf("rollback %d (%s) failed: %w", target.version, target.name, err)
	}
	return nil
}

func (m *sqliteMigrator) DownAll(ctx context.Context) error {
	for {
		current, _, err := m.Version(ctx)
		if err != nil {
			return err
		}
		if current == 0 {
			return nil
		}
		if err := m.Down(ctx); err != nil {
			return err
		}
	}
}

func (m *sqliteMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	return buildStatus(ctx, m, DatabaseTypeSQLite)
}

func (m *sqliteMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	return buildInfo(ctx, m, DatabaseTypeSQLite)
}

func (m *sqliteMigrator) Close() error {
	return m.db.Close()
}

// =============================================================================
// 嵌入脚本工具
// =============================================================================

// migrationFile 一份迁移脚本的版本与名称
type migrationFile struct {
	version uint
	name    string
}

func migrationSource(dbType DatabaseType) (fs.FS, string) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgresFS, "migrations/postgres"
	case DatabaseTypeMySQL:
		return mysqlFS, "migrations/mysql"
	default:
		return sqliteFS, "migrations/sqlite"
	}
}

// listMigrations 列出某数据库类型的全部迁移，按版本升序
func listMigrations(dbType DatabaseType) ([]migrationFile, error) {
	fsys, dir := migrationSource(dbType)
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	seen := make(map[uint]bool)
	var migrations []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		// 文件名形如 000001_create_audit_records.up.sql
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil || seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true
		migrations = append(migrations, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

func readMigration(dbType DatabaseType, mig migrationFile, direction string) (string, error) {
	fsys, dir := migrationSource(dbType)
	path := fmt.Sprintf("%s/%06d_%s.%s.sql", dir, mig.version, mig.name, direction)
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", path, err)
	}
	return string(data), nil
}

// splitStatements 以分号切分脚本，保留非空语句
func splitStatements(script string) []string {
	var stmts []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func buildStatus(ctx context.Context, m Migrator, dbType DatabaseType) ([]MigrationStatus, error) {
	currentVersion, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := listMigrations(dbType)
	if err != nil {
		return nil, err
	}

	var statuses []MigrationStatus
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.version,
			Name:    mig.name,
			Applied: mig.version <= currentVersion,
			Dirty:   dirty && mig.version == currentVersion,
		})
	}
	return statuses, nil
}

func buildInfo(ctx context.Context, m Migrator, dbType DatabaseType) (*MigrationInfo, error) {
	currentVersion, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := listMigrations(dbType)
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.version <= currentVersion {
			applied++
		}
	}
	return &MigrationInfo{
		CurrentVersion:    currentVersion,
		Dirty:             dirty,
		TotalMigrations:   len(migrations),
		AppliedMigrations: applied,
		PendingMigrations: len(migrations) - applied,
	}, nil
}

// =============================================================================
// 辅助函数
// =============================================================================

// ParseDatabaseType 解析数据库类型字符串
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// BuildDatabaseURL 按数据库类型拼接连接串
func BuildDatabaseURL(dbType DatabaseType, host string, port int, database, username, password, sslMode string) string {
	switch dbType {
	case DatabaseTypePostgres:
		if sslMode == "" {
			sslMode = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			username, password, host, port, database, sslMode)
	case DatabaseTypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			username, password, host, port, database)
	case DatabaseTypeSQLite:
		return database
	default:
		return ""
	}
}
