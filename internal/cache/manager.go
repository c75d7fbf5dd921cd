package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrClosed    = errors.New("cache manager is closed")
)

func IsCacheMiss(err error) bool { return errors.Is(err, ErrCacheMiss) }

// Config Redis 连接与键空间参数
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// KeyPrefix 例如 "agentbase:cache:"，对调用方透明
	KeyPrefix  string        `yaml:"key_prefix" json:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// HealthCheckInterval 0 表示不做后台探测
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "agentbase:cache:",
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// ConfigFromRedis 使用应用配置的 redis 段，零值字段沿用默认
func ConfigFromRedis(rc config.RedisConfig) Config {
	c := DefaultConfig()
	if rc.Addr != "" {
		c.Addr = rc.Addr
	}
	c.Password, c.DB = rc.Password, rc.DB
	if rc.PoolSize > 0 {
		c.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		c.MinIdleConns = rc.MinIdleConns
	}
	return c
}

type Option func(*Manager)

// WithLookupObserver 每次 Get 后回调命中与否，serve 用它更新缓存指标
func WithLookupObserver(fn func(hit bool)) Option {
	return func(m *Manager) { m.observe = fn }
}

// Manager 带键前缀的 Redis 访问。web_search 的结果缓存与 Redis 会话记忆
// 共用它持有的连接池。
type Manager struct {
	client  *redis.Client
	cfg     Config
	logger  *zap.Logger
	observe func(hit bool)

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// NewManager 连接并 PING 一次，失败时返回错误
func NewManager(cfg Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return NewManagerFromClient(client, cfg, logger, opts...), nil
}

// NewManagerFromClient 接管 client，Close 时一并关闭
func NewManagerFromClient(client *redis.Client, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.HealthCheckInterval > 0 {
		go m.probe(cfg.HealthCheckInterval)
	}
	m.logger.Info("redis cache ready", zap.String("addr", cfg.Addr), zap.String("key_prefix", cfg.KeyPrefix))
	return m
}

func (m *Manager) Client() *redis.Client { return m.client }

// with 在读锁内执行 fn，管理器关闭后返回 ErrClosed
func (m *Manager) with(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn()
}

func (m *Manager) prefixed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m.cfg.KeyPrefix + k
	}
	return out
}

// Get 未命中时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := m.with(func() error {
		v, err := m.client.Get(ctx, m.cfg.KeyPrefix+key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			m.lookup(false)
			return ErrCacheMiss
		case err != nil:
			m.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("cache get %s: %w", key, err)
		}
		m.lookup(true)
		val = v
		return nil
	})
	return val, err
}

func (m *Manager) lookup(hit bool) {
	if m.observe != nil {
		m.observe(hit)
	}
}

// Set ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.cfg.DefaultTTL
	}
	return m.with(func() error {
		if err := m.client.Set(ctx, m.cfg.KeyPrefix+key, value, ttl).Err(); err != nil {
			return fmt.Errorf("cache set %s: %w", key, err)
		}
		return nil
	})
}

func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.Set(ctx, key, string(raw), ttl)
}

func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.with(func() error {
		if err := m.client.Del(ctx, m.prefixed(keys)...).Err(); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	})
}

// Keys 用 SCAN 列出以 prefix 开头的键，返回值不含 KeyPrefix
func (m *Manager) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := m.with(func() error {
		iter := m.client.Scan(ctx, 0, m.cfg.KeyPrefix+prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), m.cfg.KeyPrefix))
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache scan: %w", err)
		}
		return nil
	})
	return keys, err
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.with(func() error { return m.client.Ping(ctx).Err() })
}

// Close 可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	return m.client.Close()
}

func (m *Manager) probe(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
				m.logger.Error("redis health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}
