package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🤖 Agent Handler
// =============================================================================

// 会话列表分页默认值
const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// ChatRequest POST /agents/{type}/chat 请求体
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// DocumentRequest POST /agents/{type}/documents 请求体
type DocumentRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	FilePath string         `json:"file_path,omitempty"`
}

// ToolRequest POST /agents/{type}/tools/{name} 请求体
type ToolRequest struct {
	Input      string         `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AgentHandler 按类型路由到 agent.Manager 中的 Agent
type AgentHandler struct {
	agents *agent.Manager
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 处理器
func NewAgentHandler(agents *agent.Manager, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{agents: agents, logger: logger.With(zap.String("component", "agent_handler"))}
}

// resolve 取路径中的 agent 类型，不存在时写入 404 并附带可用类型
func (h *AgentHandler) resolve(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	a, err := h.agents.Get(r.PathValue("type"))
	if err != nil {
		te, _ := types.AsError(err)
		WriteErrorDetails(w, te, map[string]any{"available_agents": h.agents.Types()}, h.logger)
		return nil, false
	}
	return a, true
}

// HandleListAgents GET /agents
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"agents": h.agents.Infos(),
		"total":  h.agents.Len(),
	})
}

// HandleGetAgent GET /agents/{type}
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, a.Info())
}

// HandleChat POST /agents/{type}/chat
func (h *AgentHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "message is required", h.logger)
		return
	}

	resp := a.ProcessQuery(r.Context(), agent.Query{
		Text:      req.Message,
		SessionID: req.SessionID,
		UserID:    requestUserID(r.Context(), req.UserID),
		Context:   req.Context,
	})
	WriteSuccess(w, resp)
}

// HandleListSessions GET /agents/{type}/sessions?user_id=&limit=50&offset=0
func (h *AgentHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultSessionLimit)
	if err != nil || limit <= 0 || limit > maxSessionLimit {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be between 1 and 500", h.logger)
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "offset must be a non-negative integer", h.logger)
		return
	}

	sessions, err := a.ListSessions(r.Context(), q.Get("user_id"), limit, offset)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
		"limit":    limit,
		"offset":   offset,
	})
}

// HandleGetSession GET /agents/{type}/sessions/{id}
func (h *AgentHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	hist, err := a.GetSessionHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, hist)
}

// HandleDeleteSession DELETE /agents/{type}/sessions/{id}
func (h *AgentHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	deleted, err := a.DeleteSession(r.Context(), id)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if !deleted {
		WriteError(w, types.Errorf(types.ErrSessionNotFound, "session %s not found", id), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"session_id": id, "deleted": true})
}

// HandleAddDocument POST /agents/{type}/documents
func (h *AgentHandler) HandleAddDocument(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req DocumentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "content is required", h.logger)
		return
	}

	id, err := a.AddDocument(r.Context(), req.Content, req.Metadata, req.FilePath)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, err.Error()).WithCause(err), h.logger)
		return
	}
	WriteSuccessStatus(w, http.StatusCreated, map[string]any{
		"document_id": id,
		"agent_type":  a.Type(),
	})
}

// HandleListTools GET /agents/{type}/tools
func (h *AgentHandler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, map[string]any{
		"agent_type": a.Type(),
		"tools":      a.ToolDetails(),
	})
}

// HandleExecuteTool POST /agents/{type}/tools/{name}
func (h *AgentHandler) HandleExecuteTool(w http.ResponseWriter, r *http.Request) {
	a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if _, exists := a.Tools().Get(name); !exists {
		WriteErrorDetails(w, types.Errorf(types.ErrToolNotFound, "Tool '%s' not found", name),
			map[string]any{"available_tools": a.ListTools()}, h.logger)
		return
	}
	var req ToolRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "Input is required", h.logger)
		return
	}
	WriteSuccess(w, a.ExecuteTool(r.Context(), name, req.Input, req.Parameters))
}

// requestUserID 请求体未带 user_id 时取认证中间件写入 ctx 的用户
func requestUserID(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	id, _ := types.UserID(ctx)
	return id
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
