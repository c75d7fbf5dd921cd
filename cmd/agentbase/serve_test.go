package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, mutate func(s *Server)) (*Server, http.Handler) {
	t.Helper()
	cfg := newTestConfig(t)
	cfg.Scheduler.Enabled = true
	s := NewServer(cfg, t.TempDir(), zap.NewNop(), zap.NewAtomicLevel())
	if mutate != nil {
		mutate(s)
	}
	h, err := s.init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, h
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, h := newTestServer(t, nil)
	assert.NotNil(t, s.scheduler)
	assert.False(t, s.telemetry.Enabled())

	w := get(h, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", gjson.Get(w.Body.String(), "status").String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = get(h, "/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "data.agents.general").Exists())

	w = get(h, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "agentbase_http_requests_total")
	assert.Contains(t, body, `path="/agents"`)
}

func TestServer_AgentMetricsRecorded(t *testing.T) {
	_, h := newTestServer(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/agents/general/tools/calculator", strings.NewReader(`{"input":"2+2"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	metrics := get(h, "/metrics", nil).Body.String()
	assert.Contains(t, metrics, "agentbase_tool_executions_total")
}

func TestServer_Auth(t *testing.T) {
	_, h := newTestServer(t, func(s *Server) {
		s.cfg.Auth.Enabled = true
		s.cfg.Auth.APIKeys = []string{"test-key"}
	})

	assert.Equal(t, http.StatusOK, get(h, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/metrics", nil).Code)

	w := get(h, "/agents", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", gjson.Get(w.Body.String(), "error.code").String())

	assert.Equal(t, http.StatusOK, get(h, "/agents", map[string]string{"X-API-Key": "test-key"}).Code)
}

func TestServer_CORSAndRateLimit(t *testing.T) {
	_, h := newTestServer(t, func(s *Server) {
		s.cfg.Server.CORSEnabled = true
		s.cfg.Server.CORSOrigins = []string{"https://ui.example"}
		s.cfg.Server.RateLimitRPS = 1
		s.cfg.Server.RateLimitBurst = 1
	})

	w := get(h, "/health", map[string]string{"Origin": "https://ui.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://ui.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(h, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.True(t, gjson.Get(w.Body.String(), "error.retryable").Bool())
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := NewServer(cfg, t.TempDir(), zap.NewNop(), zap.NewAtomicLevel())
	require.NoError(t, s.Start(context.Background()))

	addr := s.httpManager.ListenAddr()
	require.NotEmpty(t, addr)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "agents_available")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Shutdown(ctx)
	assert.Nil(t, s.runtime)

	_, err = client.Get("http://" + addr + "/health")
	assert.Error(t, err)

	// 重复调用不应 panic
	s.Shutdown(context.Background())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("WARN").String())
	assert.Equal(t, "info", parseLevel("nonsense").String())
}
