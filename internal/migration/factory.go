package migration

import (
	"fmt"

	"github.com/BaSui01/guardflow/config"
)

// NewMigratorFromAuditConfig 从审计存储配置创建迁移器
func NewMigratorFromAuditConfig(auditCfg config.AuditConfig) (Migrator, error) {
	dbType, err := ParseDatabaseType(auditCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, auditCfg.Host, auditCfg.Port,
			auditCfg.Name, auditCfg.User, auditCfg.Password, auditCfg.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, auditCfg.Host, auditCfg.Port,
			auditCfg.Name, auditCfg.User, auditCfg.Password, "")
	case DatabaseTypeSQLite:
		// sqlite 的 Name 字段即文件路径
		dbURL = auditCfg.Name
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
	})
}

// NewMigratorFromURL 从连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string) (Migrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
	})
}
