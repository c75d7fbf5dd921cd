package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCleaner struct {
	n   int
	err error
}

func (f fakeCleaner) CleanupCache(context.Context, time.Duration) (int, error) { return f.n, f.err }

func TestValidateSpec(t *testing.T) {
	for _, spec := range []string{"@every 1h", "@daily", "*/5 * * * *", "0 3 * * 1"} {
		assert.NoError(t, ValidateSpec(spec), spec)
	}
	err := ValidateSpec("every hour")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid cron spec "every hour"`)
}

func TestScheduler_Add(t *testing.T) {
	s := New(zap.NewNop())
	noop := func(context.Context) (int, error) { return 0, nil }

	require.NoError(t, s.Add("a", "@every 1h", noop))
	assert.EqualError(t, s.Add("a", "@every 1h", noop), "job a already registered")
	assert.Error(t, s.Add("b", "bogus", noop))
	assert.EqualError(t, s.Add("c", "@daily", nil), "job c is nil")

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "@every 1h", entries[0].Spec)
}

func TestScheduler_Trigger(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add("count", "@daily", func(context.Context) (int, error) { return 7, nil }))

	n, err := s.Trigger(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = s.Trigger(context.Background(), "missing")
	assert.EqualError(t, err, "job missing not found")
}

func TestScheduler_StartStop_RunsJobs(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int32
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) (int, error) {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return 1, nil
	}))

	s.Start()
	s.Start()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := New(zap.NewNop())
	done := make(chan struct{}, 1)
	require.NoError(t, s.Add("boom", "@every 1s", func(context.Context) (int, error) {
		defer func() {
			select {
			case done <- struct{}{}:
			default:
			}
		}()
		panic("boom")
	}))
	s.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New(zap.NewNop())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestSessionCleanup(t *testing.T) {
	backend := memory.NewInMemoryBackend(10, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, backend.AppendMessage(ctx, "old", memory.NewMessage("user", "hi"), "general", "u1"))
	time.Sleep(5 * time.Millisecond)

	n, err := SessionCleanup(backend, time.Millisecond)(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := backend.CountSessions(ctx, memory.SessionFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCacheCleanup(t *testing.T) {
	boom := errors.New("redis down")
	job := CacheCleanup([]CacheCleaner{fakeCleaner{n: 2}, fakeCleaner{err: boom}, fakeCleaner{n: 3}}, time.Hour)

	n, err := job(context.Background())
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, boom)
}

func TestRegisterMaintenance(t *testing.T) {
	backend := memory.NewInMemoryBackend(10, zap.NewNop())

	s := New(zap.NewNop())
	require.NoError(t, RegisterMaintenance(s, config.DefaultSchedulerConfig(), backend, []CacheCleaner{fakeCleaner{}}))
	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, JobCacheCleanup, entries[0].Name)
	assert.Equal(t, JobSessionCleanup, entries[1].Name)

	// 没有缓存时只注册会话清理
	s2 := New(zap.NewNop())
	require.NoError(t, RegisterMaintenance(s2, config.DefaultSchedulerConfig(), backend, nil))
	require.Len(t, s2.Entries(), 1)

	cfg := config.DefaultSchedulerConfig()
	cfg.SessionCleanupSpec = "not a spec"
	assert.Error(t, RegisterMaintenance(New(zap.NewNop()), cfg, backend, nil))
}
