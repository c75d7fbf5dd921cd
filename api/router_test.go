package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/factory"
	"github.com/BaSui01/agentbase/types"
)

func newTestRouter(t *testing.T) (*http.ServeMux, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LLM = config.LLMConfig{Type: "mock", APIKey: "sk-live-secret", Responses: []string{"hello from mock"}}
	cfg.Embedding = config.EmbeddingConfig{Type: "hash", Dimensions: 32}
	cfg.VectorStore = config.VectorStoreConfig{Type: "memory"}
	cfg.DocumentStore = config.DocumentStoreConfig{Type: "filesystem", BasePath: filepath.Join(dir, "docs")}
	cfg.Memory = config.MemoryConfig{Type: "in_memory"}
	cfg.Tools = config.DefaultTools()
	cfg.Tools["web_search"]["cache_path"] = filepath.Join(dir, "web_cache")

	env := factory.NewEnv(cfg, zap.NewNop())
	rt, err := factory.NewDefault().BuildAgents(context.Background(), env, factory.Observers{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	return NewRouter(RouterConfig{Agents: rt.Agents, Config: cfg}), cfg
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, gjson.Result) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, gjson.ParseBytes(w.Body.Bytes())
}

func TestRouter_ListAgents(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, body := do(t, mux, http.MethodGet, "/agents", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Get("success").Bool())
	assert.Equal(t, int64(4), body.Get("data.total").Int())
	assert.Equal(t, "general", body.Get("data.agents.general.agent_type").String())

	w, body = do(t, mux, http.MethodGet, "/agents/code_assistant", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "code_assistant", body.Get("data.agent_type").String())
}

func TestRouter_UnknownAgent(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, body := do(t, mux, http.MethodPost, "/agents/pirate/chat", `{"message":"ahoy"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, body.Get("success").Bool())
	assert.Equal(t, "AGENT_NOT_FOUND", body.Get("error.code").String())
	assert.Equal(t, "Agent type 'pirate' not found", body.Get("error.message").String())
	assert.Len(t, body.Get("error.details.available_agents").Array(), 4)
}

func TestRouter_ChatAndSessions(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, body := do(t, mux, http.MethodPost, "/agents/general/chat", `{"session_id":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", body.Get("error.code").String())

	w, body = do(t, mux, http.MethodPost, "/agents/general/chat", `{"message":"hi","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello from mock", body.Get("data.content").String())
	sessionID := body.Get("data.session_id").String()
	assert.True(t, strings.HasPrefix(sessionID, "general_"))

	w, body = do(t, mux, http.MethodGet, "/agents/general/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body.Get("data.messages").Array(), 2)

	w, body = do(t, mux, http.MethodGet, "/agents/general/sessions?user_id=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), body.Get("data.count").Int())
	assert.Equal(t, int64(50), body.Get("data.limit").Int())

	w, _ = do(t, mux, http.MethodGet, "/agents/general/sessions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, mux, http.MethodDelete, "/agents/general/sessions/"+sessionID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = do(t, mux, http.MethodDelete, "/agents/general/sessions/"+sessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", body.Get("error.code").String())

	w, _ = do(t, mux, http.MethodGet, "/agents/general/sessions/"+sessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Documents(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, _ := do(t, mux, http.MethodPost, "/agents/document_qa/documents", `{"content":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(t, mux, http.MethodPost, "/agents/document_qa/documents",
		`{"content":"Go has goroutines.","metadata":{"title":"go"},"file_path":"go.md"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, body.Get("data.document_id").String())
	assert.Equal(t, "document_qa", body.Get("data.agent_type").String())
}

func TestRouter_Tools(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, body := do(t, mux, http.MethodGet, "/agents/general/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body.Get("data.tools").Array(), 2)

	w, body = do(t, mux, http.MethodPost, "/agents/general/tools/calculator", `{"input":"2+2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Get("data.success").Bool())
	assert.Equal(t, "2+2 = 4", body.Get("data.content").String())

	w, body = do(t, mux, http.MethodPost, "/agents/general/tools/calculator", `{"input":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", body.Get("error.code").String())
	assert.Equal(t, "Input is required", body.Get("error.message").String())

	w, body = do(t, mux, http.MethodPost, "/agents/general/tools/file_operations", `{"input":"read x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TOOL_NOT_FOUND", body.Get("error.code").String())
}

func TestRouter_ConfigIsSanitized(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, body := do(t, mux, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "***", body.Get("data.llm.api_key").String())
	assert.NotContains(t, w.Body.String(), "sk-live-secret")
}

func TestRouter_Health(t *testing.T) {
	mux, _ := newTestRouter(t)

	w, body := do(t, mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body.Get("status").String())
	assert.Len(t, body.Get("agents_available").Array(), 4)

	w, _ = do(t, mux, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ChatWebSocket(t *testing.T) {
	mux, _ := newTestRouter(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/agents/general/chat/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"message": "hi"}))

	var events []agent.StreamEvent
	for {
		var ev agent.StreamEvent
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		events = append(events, ev)
		if ev.Type == agent.EventDone {
			break
		}
	}

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, agent.EventSources, events[0].Type)
	var sb strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, agent.EventDelta, ev.Type)
		sb.WriteString(ev.Delta)
	}
	done := events[len(events)-1]
	require.NotNil(t, done.Response)
	assert.Equal(t, sb.String(), done.Response.Content)
	assert.Equal(t, "hello from mock ", done.Response.Content)
	assert.True(t, strings.HasPrefix(done.SessionID, "general_"))

	// 空消息返回 error 事件，连接保持
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"message": ""}))
	var errEv map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &errEv))
	assert.Equal(t, "error", errEv["type"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
}

func TestRouter_ChatWebSocket_AuthenticatedUser(t *testing.T) {
	mux, _ := newTestRouter(t)
	// 模拟认证中间件写入用户
	authed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(types.WithUserID(r.Context(), "ws-user")))
	})
	srv := httptest.NewServer(authed)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/agents/general/chat/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"message": "hi"}))
	for {
		var ev agent.StreamEvent
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		if ev.Type == agent.EventDone {
			break
		}
	}
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	w, body := do(t, mux, http.MethodGet, "/agents/general/sessions?user_id=ws-user", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), body.Get("data.count").Int())
}

func TestRouter_ChatWebSocket_UnknownAgent(t *testing.T) {
	mux, _ := newTestRouter(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents/pirate/chat/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
