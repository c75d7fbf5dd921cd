package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/api/handlers"
	"github.com/BaSui01/agentbase/config"
)

// PublicPaths 不需要认证的路径
var PublicPaths = []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

// RouterConfig 路由依赖
type RouterConfig struct {
	Agents  *agent.Manager
	Config  *config.Config
	Health  *handlers.HealthHandler
	Metrics http.Handler // 为 nil 时不暴露 /metrics
	Logger  *zap.Logger
}

// NewRouter 注册全部 HTTP 路由
func NewRouter(rc RouterConfig) *http.ServeMux {
	logger := rc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	health := rc.Health
	if health == nil {
		health = handlers.NewHealthHandler(handlers.BuildInfo{}, rc.Agents.Types, logger)
	}
	var origins []string
	if rc.Config != nil {
		origins = rc.Config.Server.CORSOrigins
	}

	agents := handlers.NewAgentHandler(rc.Agents, logger)
	stream := handlers.NewChatStreamHandler(rc.Agents, origins, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion)
	if rc.Metrics != nil {
		mux.Handle("GET /metrics", rc.Metrics)
	}

	mux.HandleFunc("GET /agents", agents.HandleListAgents)
	mux.HandleFunc("GET /agents/{type}", agents.HandleGetAgent)
	mux.HandleFunc("POST /agents/{type}/chat", agents.HandleChat)
	mux.Handle("GET /agents/{type}/chat/ws", stream)
	mux.HandleFunc("GET /agents/{type}/sessions", agents.HandleListSessions)
	mux.HandleFunc("GET /agents/{type}/sessions/{id}", agents.HandleGetSession)
	mux.HandleFunc("DELETE /agents/{type}/sessions/{id}", agents.HandleDeleteSession)
	mux.HandleFunc("POST /agents/{type}/documents", agents.HandleAddDocument)
	mux.HandleFunc("GET /agents/{type}/tools", agents.HandleListTools)
	mux.HandleFunc("POST /agents/{type}/tools/{name}", agents.HandleExecuteTool)

	if rc.Config != nil {
		mux.HandleFunc("GET /config", handlers.NewConfigHandler(rc.Config, logger).HandleGetConfig)
	}
	return mux
}
