package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/api"
	"github.com/BaSui01/agentbase/api/handlers"
	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/factory"
	"github.com/BaSui01/agentbase/internal/cache"
	"github.com/BaSui01/agentbase/internal/metrics"
	"github.com/BaSui01/agentbase/internal/scheduler"
	"github.com/BaSui01/agentbase/internal/server"
	"github.com/BaSui01/agentbase/internal/telemetry"
)

// dbStatsInterval 连接池指标采样间隔
const dbStatsInterval = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			logger, level := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			logger.Info("starting agentbase",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)
			return NewServer(cfg, opts.configPath, logger, level).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装 agent 运行时、HTTP 路由与后台任务
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	telemetry *telemetry.Providers
	collector *metrics.Collector
	runtime   *factory.Runtime
	health    *handlers.HealthHandler
	scheduler *scheduler.Scheduler
	watcher   *config.Watcher

	httpManager *server.Manager

	// 停止限流清理与连接池采样 goroutine
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, configPath: configPath, logger: logger, level: level}
}

// Run 启动服务并阻塞到收到退出信号或 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.Shutdown(context.Background())
		return err
	}
	err := s.httpManager.WaitForShutdown(ctx)
	s.Shutdown(context.Background())
	return err
}

// Start 依次初始化组件并启动 HTTP 服务（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.init(ctx)
	if err != nil {
		return err
	}
	s.httpManager = server.NewManager(handler, server.ConfigFrom(s.cfg.Server), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.logger.Info("agentbase started",
		zap.String("addr", s.httpManager.ListenAddr()),
		zap.Strings("agents", s.runtime.Agents.Types()),
		zap.Bool("auth", s.cfg.Auth.Enabled),
		zap.Bool("telemetry", s.telemetry.Enabled()),
	)
	return nil
}

// init 构建除监听端口以外的全部内容，返回带中间件的根 handler
func (s *Server) init(ctx context.Context) (http.Handler, error) {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// 1. 遥测
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	s.telemetry = providers

	// 2. 指标
	s.collector = metrics.NewCollector("agentbase", s.logger)

	// 3. agent 运行时
	env := factory.NewEnv(s.cfg, s.logger)
	env.CacheOptions = append(env.CacheOptions, cache.WithLookupObserver(func(hit bool) {
		if hit {
			s.collector.RecordCacheHit("redis")
			return
		}
		s.collector.RecordCacheMiss("redis")
	}))
	rt, err := factory.NewDefault().BuildAgents(ctx, env, factory.Observers{
		Query:  s.collector.RecordAgentQuery,
		Search: s.collector.RecordVectorSearch,
		Tool:   s.collector.RecordToolExecution,
		LLM:    s.collector.RecordLLMRequest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build agents: %w", err)
	}
	s.runtime = rt

	// 4. 健康检查
	s.initHealth(bgCtx)

	// 5. 维护任务
	if err := s.initScheduler(); err != nil {
		return nil, err
	}

	// 6. 配置监听（仅目录配置）
	s.initWatcher(bgCtx)

	mux := api.NewRouter(api.RouterConfig{
		Agents:  rt.Agents,
		Config:  s.cfg,
		Health:  s.health,
		Metrics: s.collector.Handler(),
		Logger:  s.logger,
	})
	return s.middleware(bgCtx, mux), nil
}

// middleware 按顺序包装中间件：最外层先恢复 panic，认证与限流最后执行
func (s *Server) middleware(ctx context.Context, h http.Handler) http.Handler {
	var cors Middleware
	if s.cfg.Server.CORSEnabled {
		cors = CORS(s.cfg.Server.CORSOrigins)
	}
	return Chain(h,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		cors,
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Authentication(s.cfg.Auth, api.PublicPaths, s.logger),
	)
}

func (s *Server) initHealth(ctx context.Context) {
	s.health = handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.runtime.Agents.Types, s.logger)

	env := s.runtime.Env
	if env.HasDB() {
		pool, _ := env.Pool()
		s.health.RegisterCheck(handlers.NewCheck("database", pool.Ping))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(dbStatsInterval)
			defer ticker.Stop()
			for {
				stats := pool.Stats()
				s.collector.RecordDBConnections(pool.Driver(), stats.OpenConnections, stats.Idle)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
	if env.HasCache() {
		c, _ := env.Cache()
		s.health.RegisterCheck(handlers.NewCheck("redis", c.Ping))
	}
}

// cacheCleaners 收集所有 agent 工具中带缓存的实例，同一实例只出现一次
func (s *Server) cacheCleaners() []scheduler.CacheCleaner {
	seen := make(map[scheduler.CacheCleaner]struct{})
	var out []scheduler.CacheCleaner
	for _, t := range s.runtime.Agents.Types() {
		a, err := s.runtime.Agents.Get(t)
		if err != nil {
			continue
		}
		for _, tool := range a.Tools().All() {
			c, ok := tool.(scheduler.CacheCleaner)
			if !ok {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) initScheduler() error {
	if !s.cfg.Scheduler.Enabled {
		return nil
	}
	s.scheduler = scheduler.New(s.logger)
	if err := scheduler.RegisterMaintenance(s.scheduler, s.cfg.Scheduler, s.runtime.Components.Memory, s.cacheCleaners()); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}
	s.scheduler.Start()
	return nil
}

// initWatcher 配置目录变化时热更新日志级别，其余配置项需要重启生效
func (s *Server) initWatcher(ctx context.Context) {
	info, err := os.Stat(s.configPath)
	if err != nil || !info.IsDir() {
		return
	}
	provider, err := config.NewYAMLProvider(s.configPath)
	if err != nil {
		s.logger.Warn("config watcher disabled", zap.Error(err))
		return
	}
	w := config.NewWatcher(provider, config.WithWatcherLogger(s.logger))
	w.OnReload(func(p *config.YAMLProvider) {
		lvl, _ := p.Get("log.level", "").(string)
		if lvl == "" {
			return
		}
		if next := parseLevel(lvl); next != s.level.Level() {
			s.level.SetLevel(next)
			s.logger.Info("log level changed", zap.String("level", next.String()))
		}
	})
	if err := w.Start(ctx); err != nil {
		s.logger.Warn("config watcher disabled", zap.Error(err))
		return
	}
	s.watcher = w
}

// Shutdown 按启动的逆序释放资源，可重复调用
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("starting graceful shutdown")

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("config watcher shutdown error", zap.Error(err))
		}
		s.watcher = nil
	}
	if s.scheduler != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := s.scheduler.Stop(stopCtx); err != nil {
			s.logger.Error("scheduler shutdown error", zap.Error(err))
		}
		cancel()
		s.scheduler = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.runtime != nil {
		if err := s.runtime.Close(); err != nil {
			s.logger.Error("runtime close error", zap.Error(err))
		}
		s.runtime = nil
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}
	s.logger.Info("graceful shutdown completed")
}
