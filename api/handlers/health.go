package handlers

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readyTimeout = 5 * time.Second

// Check 一个命名的就绪探针，例如 database 的 Ping
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

func NewCheck(name string, probe func(ctx context.Context) error) Check {
	return Check{Name: name, Probe: probe}
}

type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthStatus /health 与 /ready 的响应体，不走统一信封
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Agents    []string               `json:"agents_available,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"` // pass | fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type HealthHandler struct {
	build  BuildInfo
	agents func() []string
	logger *zap.Logger

	mu     sync.RWMutex
	checks []Check
}

// NewHealthHandler agents 可为 nil
func NewHealthHandler(build BuildInfo, agents func() []string, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{build: build, agents: agents, logger: logger}
}

func (h *HealthHandler) RegisterCheck(c Check) {
	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

func (h *HealthHandler) status() HealthStatus {
	return HealthStatus{Status: "healthy", Timestamp: time.Now(), Version: h.build.Version}
}

// HandleHealth GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	st := h.status()
	if h.agents != nil {
		st.Agents = h.agents()
	}
	WriteJSON(w, http.StatusOK, st)
}

// HandleHealthz GET /healthz 存活探针，不做任何依赖检查
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: "healthy", Timestamp: time.Now()})
}

// HandleReady GET /ready 并发执行全部探针，任一失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			start := time.Now()
			err := c.Probe(ctx)
			results[i] = CheckResult{Status: "pass", Latency: time.Since(start).String()}
			if err != nil {
				results[i].Status, results[i].Message = "fail", err.Error()
				h.logger.Warn("readiness check failed", zap.String("check", c.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	st := h.status()
	st.Checks = make(map[string]CheckResult, len(checks))
	code := http.StatusOK
	for i, c := range checks {
		st.Checks[c.Name] = results[i]
		if results[i].Status == "fail" {
			st.Status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	WriteJSON(w, code, st)
}

// HandleVersion GET /version
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.build)
}
