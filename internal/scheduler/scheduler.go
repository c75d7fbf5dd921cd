package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/memory"
)

// specParser 标准 5 段 cron 表达式，另外支持 @every 1h、@daily 等描述符
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec 校验 cron 表达式
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Job 一次维护任务，返回处理的条目数
type Job func(ctx context.Context) (int, error)

// EntryInfo 已注册任务的调度信息
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

type entry struct {
	id   cron.EntryID
	spec string
	job  Job
}

// Scheduler 基于 robfig/cron 的后台维护任务调度器。
// 同名任务上一轮未结束时跳过本轮，任务 panic 会被恢复并记录。
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]entry
	started bool
}

// New 创建调度器
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "scheduler"))
	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// Add 注册任务，名称重复时报错
func (s *Scheduler) Add(name, spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("job %s is nil", name)
	}
	if err := ValidateSpec(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	s.entries[name] = entry{id: id, spec: spec, job: job}
	s.logger.Info("job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	n, err := job(s.ctx)
	if err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("job completed", zap.String("job", name), zap.Int("affected", n), zap.Duration("duration", time.Since(start)))
}

// Trigger 立即同步执行一次指定任务
func (s *Scheduler) Trigger(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("job %s not found", name)
	}
	return e.job(ctx)
}

// Start 启动调度循环，重复调用无效果
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.entries)))
}

// Stop 停止调度并等待运行中的任务结束；ctx 到期时取消任务上下文后返回
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Entries 返回按名称排序的任务调度信息
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, EntryInfo{Name: name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// =============================================================================
// 内置维护任务
// =============================================================================

// CacheCleaner 可清理过期缓存条目的组件，例如 web_search 工具
type CacheCleaner interface {
	CleanupCache(ctx context.Context, maxAge time.Duration) (int, error)
}

// SessionCleanup 删除 last_active 早于 maxAge 的会话
func SessionCleanup(backend memory.Backend, maxAge time.Duration) Job {
	return func(ctx context.Context) (int, error) {
		return backend.CleanupExpiredSessions(ctx, maxAge)
	}
}

// CacheCleanup 依次清理各个缓存，单个失败不影响其余
func CacheCleanup(cleaners []CacheCleaner, maxAge time.Duration) Job {
	return func(ctx context.Context) (int, error) {
		total := 0
		var firstErr error
		for _, c := range cleaners {
			n, err := c.CleanupCache(ctx, maxAge)
			total += n
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return total, firstErr
	}
}

// Job names
const (
	JobSessionCleanup = "session_cleanup"
	JobCacheCleanup   = "cache_cleanup"
)

// RegisterMaintenance 按配置注册会话清理与缓存清理任务。
// spec 为空的任务不注册；没有缓存时跳过缓存清理。
func RegisterMaintenance(s *Scheduler, cfg config.SchedulerConfig, backend memory.Backend, cleaners []CacheCleaner) error {
	if cfg.SessionCleanupSpec != "" && backend != nil && cfg.SessionMaxAge > 0 {
		if err := s.Add(JobSessionCleanup, cfg.SessionCleanupSpec, SessionCleanup(backend, cfg.SessionMaxAge)); err != nil {
			return err
		}
	}
	if cfg.CacheCleanupSpec != "" && len(cleaners) > 0 && cfg.CacheMaxAge > 0 {
		if err := s.Add(JobCacheCleanup, cfg.CacheCleanupSpec, CacheCleanup(cleaners, cfg.CacheMaxAge)); err != nil {
			return err
		}
	}
	return nil
}

// cronLogger 把 cron 的内部日志转到 zap，Info 级别降为 Debug
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
