package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentbase/config"
)

// ErrPoolClosed Close 之后再使用连接池
var ErrPoolClosed = errors.New("pool is closed")

const probeTimeout = 5 * time.Second

// drivers 驱动别名 -> 方言构造函数
var drivers = map[string]func(dsn string) gorm.Dialector{
	"sqlite":     sqlite.Open,
	"sqlite3":    sqlite.Open,
	"postgres":   postgres.Open,
	"postgresql": postgres.Open,
	"mysql":      mysql.Open,
}

// PoolConfig 连接池参数。HealthCheckInterval 为 0 时不启动后台探活。
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PoolConfigFrom 只覆盖 cfg 中为正数的项
func PoolConfigFrom(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return pc
}

// Dialector 按驱动名（大小写不敏感）构造 GORM 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.Driver == "" {
		return nil, errors.New("database driver not configured")
	}
	open, ok := drivers[strings.ToLower(cfg.Driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}
	return open(cfg.DSN()), nil
}

// Open 连接数据库。sqlite 文件路径的父目录会被自动创建。
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	if dir, ok := sqliteDir(cfg); ok {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	pm, err := NewPoolManager(db, PoolConfigFrom(cfg), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected", zap.String("driver", pm.Driver()))
	return pm, nil
}

// sqliteDir 内存库与 file: URI 不需要建目录
func sqliteDir(cfg config.DatabaseConfig) (string, bool) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
	default:
		return "", false
	}
	if cfg.Name == "" || strings.HasPrefix(cfg.Name, ":memory:") || strings.HasPrefix(cfg.Name, "file:") {
		return "", false
	}
	return filepath.Dir(cfg.Name), true
}

// PoolManager 包装 GORM 实例与底层 sql.DB
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

func NewPoolManager(db *gorm.DB, pc PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(pc.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pc.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(pc.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pc.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}
	if pc.HealthCheckInterval > 0 {
		go pm.probe(pc.HealthCheckInterval)
	}
	return pm, nil
}

func (pm *PoolManager) DB() *gorm.DB { return pm.db }

// Driver GORM 方言名：sqlite / postgres / mysql
func (pm *PoolManager) Driver() string { return pm.db.Dialector.Name() }

// Stats 底层连接池计数
func (pm *PoolManager) Stats() sql.DBStats { return pm.sqlDB.Stats() }

func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close 可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stop)
	return pm.sqlDB.Close()
}

func (pm *PoolManager) probe(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := pm.Ping(ctx)
		cancel()
		if err != nil && !errors.Is(err, ErrPoolClosed) {
			s := pm.Stats()
			pm.logger.Warn("database probe failed", zap.Error(err),
				zap.Int("open", s.OpenConnections), zap.Int("in_use", s.InUse))
		}
	}
}
