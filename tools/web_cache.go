package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/agentbase/internal/cache"
	"go.uber.org/zap"
)

// ResultCache 搜索结果缓存
type ResultCache interface {
	Get(ctx context.Context, query string) ([]SearchResult, bool)
	Put(ctx context.Context, query string, results []SearchResult) error
	// Cleanup 删除早于 maxAge 的条目，返回删除数量
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// CacheKey 查询的缓存键：小写查询的 md5
func CacheKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(query)))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	Query    string         `json:"query"`
	CachedAt time.Time      `json:"cached_at"`
	Results  []SearchResult `json:"results"`
}

// ====== 文件缓存 ======

// FileCache 每个查询一个 JSON 文件
type FileCache struct {
	dir       string
	freshness time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewFileCache 创建文件缓存，目录不存在时自动创建
func NewFileCache(dir string, freshness time.Duration, logger *zap.Logger) (*FileCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, freshness: freshness, now: time.Now, logger: logger}, nil
}

func (c *FileCache) path(query string) string {
	return filepath.Join(c.dir, CacheKey(query)+".json")
}

func (c *FileCache) read(path string) (*cacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Get 过期条目会被删除并视为未命中
func (c *FileCache) Get(_ context.Context, query string) ([]SearchResult, bool) {
	path := c.path(query)
	e, err := c.read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("unreadable cache entry", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	if c.freshness > 0 && c.now().Sub(e.CachedAt) > c.freshness {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Results, true
}

func (c *FileCache) Put(_ context.Context, query string, results []SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(cacheEntry{Query: query, CachedAt: c.now(), Results: results}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(query), data, 0o644)
}

// Cleanup 无法解析的文件一并删除
func (c *FileCache) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		e, err := c.read(path)
		if err == nil && c.now().Sub(e.CachedAt) <= maxAge {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// ====== Redis 缓存 ======

const redisCachePrefix = "websearch:"

// RedisCache 基于 cache.Manager 的结果缓存，条目 TTL 为缓存有效期
type RedisCache struct {
	manager   *cache.Manager
	freshness time.Duration
	now       func() time.Time
}

// NewRedisCache 创建 Redis 结果缓存
func NewRedisCache(manager *cache.Manager, freshness time.Duration) *RedisCache {
	return &RedisCache{manager: manager, freshness: freshness, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, query string) ([]SearchResult, bool) {
	var e cacheEntry
	if err := c.manager.GetJSON(ctx, redisCachePrefix+CacheKey(query), &e); err != nil {
		return nil, false
	}
	return e.Results, true
}

func (c *RedisCache) Put(ctx context.Context, query string, results []SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	return c.manager.SetJSON(ctx, redisCachePrefix+CacheKey(query),
		cacheEntry{Query: query, CachedAt: c.now(), Results: results}, c.freshness)
}

func (c *RedisCache) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	keys, err := c.manager.Keys(ctx, redisCachePrefix)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, k := range keys {
		var e cacheEntry
		err := c.manager.GetJSON(ctx, k, &e)
		if cache.IsCacheMiss(err) {
			continue
		}
		if err != nil || c.now().Sub(e.CachedAt) > maxAge {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := c.manager.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
