package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
)

func newTestManager(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewManager(Config{Addr: mr.Addr(), KeyPrefix: "t:", DefaultTTL: time.Minute}, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestNewManager_Unreachable(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis 127.0.0.1:1")
}

func TestManager_GetSetWithPrefix(t *testing.T) {
	mr, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "q", "v", 0))
	got, err := mr.Get("t:q")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("t:q"), "zero ttl uses DefaultTTL")

	v, err := m.Get(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = m.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, m.Set(ctx, "short", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, err = m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSON(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	type entry struct {
		Query string   `json:"query"`
		URLs  []string `json:"urls"`
	}
	in := entry{Query: "golang", URLs: []string{"https://go.dev"}}
	require.NoError(t, m.SetJSON(ctx, "websearch:x", in, 0))

	var out entry
	require.NoError(t, m.GetJSON(ctx, "websearch:x", &out))
	assert.Equal(t, in, out)

	require.NoError(t, m.Set(ctx, "broken", "{", 0))
	assert.ErrorContains(t, m.GetJSON(ctx, "broken", &out), "decode cached broken")
}

func TestManager_KeysAndDelete(t *testing.T) {
	mr, m := newTestManager(t)
	ctx := context.Background()
	for _, k := range []string{"websearch:a", "websearch:b", "other"} {
		require.NoError(t, m.Set(ctx, k, "1", 0))
	}
	mr.Set("unprefixed", "1")

	keys, err := m.Keys(ctx, "websearch:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"websearch:a", "websearch:b"}, keys)

	require.NoError(t, m.Delete(ctx, keys...))
	require.NoError(t, m.Delete(ctx))
	assert.False(t, mr.Exists("t:websearch:a"))
	assert.True(t, mr.Exists("t:other"))
	assert.True(t, mr.Exists("unprefixed"))
}

func TestManager_LookupObserver(t *testing.T) {
	var hits, misses int
	_, m := newTestManager(t, WithLookupObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	_, _ = m.Get(ctx, "k")
	_, _ = m.Get(ctx, "nope")
	_, _ = m.Get(ctx, "nope")
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses)
}

func TestManager_Closed(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Ping(ctx))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Set(ctx, "k", "v", 0), ErrClosed)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Keys(ctx, "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
}

func TestManager_HealthCheckStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewManager(Config{Addr: mr.Addr(), HealthCheckInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Close())
}

func TestConfigFromRedis(t *testing.T) {
	c := ConfigFromRedis(config.RedisConfig{Addr: "redis:6380", Password: "pw", DB: 2, PoolSize: 20})
	assert.Equal(t, "redis:6380", c.Addr)
	assert.Equal(t, "pw", c.Password)
	assert.Equal(t, 2, c.DB)
	assert.Equal(t, 20, c.PoolSize)
	assert.Equal(t, DefaultConfig().MinIdleConns, c.MinIdleConns)
	assert.Equal(t, DefaultConfig().KeyPrefix, c.KeyPrefix)

	assert.Equal(t, "localhost:6379", ConfigFromRedis(config.RedisConfig{}).Addr)
}
