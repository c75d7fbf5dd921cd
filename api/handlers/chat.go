package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/types"
)

// =============================================================================
// 💬 WebSocket 流式对话
// =============================================================================

// StreamErrorEvent 流式通道上的错误事件
type StreamErrorEvent struct {
	Type  string     `json:"type"` // 固定为 "error"
	Error *ErrorInfo `json:"error"`
}

// ChatStreamHandler GET /agents/{type}/chat/ws
//
// 客户端每发送一条 ChatRequest，服务端依次推送 sources、delta...、done 事件。
// 一个连接可以连续进行多轮对话；未指定 session_id 时沿用上一轮的会话。
type ChatStreamHandler struct {
	agents         *agent.Manager
	originPatterns []string
	logger         *zap.Logger
}

// NewChatStreamHandler 创建流式对话处理器。originPatterns 为允许的跨域来源，为空时只接受同源请求。
func NewChatStreamHandler(agents *agent.Manager, originPatterns []string, logger *zap.Logger) *ChatStreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatStreamHandler{
		agents:         agents,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "chat_stream")),
	}
}

func (h *ChatStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a, err := h.agents.Get(r.PathValue("type"))
	if err != nil {
		te, _ := types.AsError(err)
		WriteErrorDetails(w, te, map[string]any{"available_agents": h.agents.Types()}, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sessionID := ""
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			if err := h.writeError(ctx, conn, types.NewError(types.ErrInvalidRequest, "message is required")); err != nil {
				return
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		events, err := a.ProcessQueryStream(ctx, agent.Query{
			Text:      req.Message,
			SessionID: req.SessionID,
			UserID:    requestUserID(ctx, req.UserID),
			Context:   req.Context,
		})
		if err != nil {
			return
		}
		for ev := range events {
			sessionID = ev.SessionID
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *ChatStreamHandler) writeError(ctx context.Context, conn *websocket.Conn, err *types.Error) error {
	return wsjson.Write(ctx, conn, StreamErrorEvent{
		Type:  "error",
		Error: &ErrorInfo{Code: string(err.Code), Message: err.Message, Retryable: err.Retryable},
	})
}
