package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appconfig "github.com/BaSui01/agentbase/config"
)

// NewMigratorFromConfig 使用应用配置中的 database 段
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig 按驱动拼接 DSN。
// SQLite 的 Name 是文件路径，目录不存在时先创建。
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	sslMode := dbCfg.SSLMode
	if dbType == DatabaseTypeSQLite {
		if dbCfg.Name == "" {
			return nil, errors.New("sqlite database path is required")
		}
		if !strings.HasPrefix(dbCfg.Name, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(dbCfg.Name), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}
	dsn := BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, sslMode)
	return NewMigrator(&Config{DatabaseType: dbType, DatabaseURL: dsn})
}

// NewMigratorFromURL 直接使用 --db-type / --db-url 给出的连接串
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{DatabaseType: dt, DatabaseURL: dbURL})
}
