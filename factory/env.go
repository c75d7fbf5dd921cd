package factory

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/internal/cache"
	"github.com/BaSui01/agentbase/internal/database"
)

// Env 组件构建时共享的基础设施。数据库与 Redis 按需打开，只打开一次。
type Env struct {
	Config *config.Config
	Logger *zap.Logger

	// CacheOptions 创建 Redis 缓存管理器时附加的选项（如命中率观察者）
	CacheOptions []cache.Option

	mu    sync.Mutex
	db    *database.PoolManager
	cache *cache.Manager
}

// NewEnv 创建构建环境
func NewEnv(cfg *config.Config, logger *zap.Logger) *Env {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{Config: cfg, Logger: logger}
}

// Pool 返回共享的数据库连接池
func (e *Env) Pool() (*database.PoolManager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		pm, err := database.Open(e.Config.Database, e.Logger)
		if err != nil {
			return nil, err
		}
		e.db = pm
	}
	return e.db, nil
}

// DB 返回共享的 GORM 实例
func (e *Env) DB() (*gorm.DB, error) {
	pm, err := e.Pool()
	if err != nil {
		return nil, err
	}
	return pm.DB(), nil
}

// SetPool 注入已打开的连接池（测试或外部管理连接时使用）
func (e *Env) SetPool(pm *database.PoolManager) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.db = pm
}

// Cache 返回共享的 Redis 缓存管理器，其客户端也供 Redis 记忆后端复用
func (e *Env) Cache() (*cache.Manager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache == nil {
		m, err := cache.NewManager(cache.ConfigFromRedis(e.Config.Redis), e.Logger, e.CacheOptions...)
		if err != nil {
			return nil, err
		}
		e.cache = m
	}
	return e.cache, nil
}

// SetCache 注入已创建的缓存管理器
func (e *Env) SetCache(m *cache.Manager) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = m
}

// HasDB 报告数据库是否已打开
func (e *Env) HasDB() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db != nil
}

// HasCache 报告 Redis 是否已连接
func (e *Env) HasCache() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache != nil
}

// Close 关闭已打开的数据库与 Redis 连接
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
		e.cache = nil
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
		e.db = nil
	}
	return errors.Join(errs...)
}
