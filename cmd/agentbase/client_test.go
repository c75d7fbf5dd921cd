package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentbase/api"
)

// newTestAPI 启动挂载真实路由的 httptest 服务
func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := newTestConfig(t)
	rt := newTestRuntime(t, cfg)
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{Agents: rt.Agents, Config: cfg}))
	t.Cleanup(srv.Close)
	return srv
}

func clientArgs(srv *httptest.Server, sessions string, args ...string) []string {
	return append([]string{"--api-url", srv.URL, "--plain", "--sessions-file", sessions}, args...)
}

func TestClient_ChatAndHistory(t *testing.T) {
	srv := newTestAPI(t)
	sessions := filepath.Join(t.TempDir(), "sessions.json")

	out, _, err := runCLI(t, clientArgs(srv, sessions, "chat", "general", "hi there", "--sources")...)
	require.NoError(t, err)
	assert.Contains(t, out, "General Agent:")
	assert.Contains(t, out, "**hello** from mock")
	assert.Contains(t, out, "Session: general_")

	raw, err := os.ReadFile(sessions)
	require.NoError(t, err)
	var mapping map[string]string
	require.NoError(t, json.Unmarshal(raw, &mapping))
	id := mapping["general:default"]
	require.True(t, strings.HasPrefix(id, "general_"), id)
	assert.Len(t, id, len("general_")+8)
	assert.Contains(t, out, "Session: "+id)

	// 同一会话名复用同一 ID
	out, _, err = runCLI(t, clientArgs(srv, sessions, "chat", "general", "again")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Session: "+id)

	out, _, err = runCLI(t, clientArgs(srv, sessions, "history", "general")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Session History: "+id)
	assert.Contains(t, out, "Agent: general")
	assert.Contains(t, out, "Messages: 4")
	assert.Contains(t, out, "User:")
	assert.Contains(t, out, "hi there")
	assert.Contains(t, out, "Assistant:")
}

func TestClient_HistoryMissingSession(t *testing.T) {
	srv := newTestAPI(t)
	sessions := filepath.Join(t.TempDir(), "sessions.json")

	out, errOut, err := runCLI(t, clientArgs(srv, sessions, "history", "general", "-s", "never-used")...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "No conversation history found for this session.")
	assert.NotContains(t, out, "Session History")
}

func TestClient_AgentsToolsAndHealth(t *testing.T) {
	srv := newTestAPI(t)
	sessions := filepath.Join(t.TempDir(), "sessions.json")

	out, errOut, err := runCLI(t, clientArgs(srv, sessions, "agents")...)
	require.NoError(t, err)
	assert.Empty(t, errOut)
	for _, name := range []string{"general:", "code_assistant:", "research_agent:", "document_qa:"} {
		assert.Contains(t, out, name)
	}

	out, _, err = runCLI(t, clientArgs(srv, sessions, "tools", "general")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Tools for general agent:")
	assert.Contains(t, out, "calculator:")
	assert.Contains(t, out, "web_search:")

	out, _, err = runCLI(t, clientArgs(srv, sessions, "tool", "general", "calculator", "2+2")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Tool Result (calculator):")
	assert.Contains(t, out, "2+2 = 4")

	out, _, err = runCLI(t, clientArgs(srv, sessions, "health")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: healthy")
	assert.Contains(t, out, "document_qa")
}

func TestClient_Errors(t *testing.T) {
	srv := newTestAPI(t)
	sessions := filepath.Join(t.TempDir(), "sessions.json")

	_, _, err := runCLI(t, clientArgs(srv, sessions, "chat", "pirate", "ahoy")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, _, err = runCLI(t, clientArgs(srv, sessions, "tool", "general", "file_operations", "read x")...)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, _, err = runCLI(t, clientArgs(srv, sessions, "chat", "general")...)
	assert.Error(t, err, "message argument is required")
}

func TestClient_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, errOut, err := runCLI(t, "--api-url", url, "--plain", "--sessions-file", filepath.Join(t.TempDir(), "s.json"), "agents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not connect to API server")
	assert.Contains(t, errOut, "is not responding")
}

func TestClient_Interactive(t *testing.T) {
	srv := newTestAPI(t)
	sessions := filepath.Join(t.TempDir(), "sessions.json")

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader("tools\nwhat is go?\n\nhistory\nquit\n"))
	root.SetArgs(clientArgs(srv, sessions, "interactive", "general"))
	require.NoError(t, root.ExecuteContext(context.Background()))

	out := stdout.String()
	assert.Contains(t, out, "Starting interactive session with general agent")
	assert.Contains(t, out, "Tools for general agent:")
	assert.Contains(t, out, "**hello** from mock")
	assert.Contains(t, out, "what is go?")
	assert.Contains(t, out, "Goodbye!")
}

func TestSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	s := loadSessionStore(path)

	a, err := s.SessionID("general", "")
	require.NoError(t, err)
	b, err := s.SessionID("general", "default")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := s.SessionID("general", "work")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := s.SessionID("code_assistant", "work")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d, "code_assistant_"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded := loadSessionStore(path)
	got, err := reloaded.SessionID("general", "work")
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestSessionStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := loadSessionStore(path)
	id, err := s.SessionID("general", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "general_"))
}

func TestAPIError(t *testing.T) {
	err := &APIError{Status: 404, Code: "AGENT_NOT_FOUND", Message: "unknown agent"}
	assert.Equal(t, "404 AGENT_NOT_FOUND - unknown agent", err.Error())
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "500 - boom", (&APIError{Status: 500, Message: "boom"}).Error())
	assert.False(t, IsNotFound(&APIError{Status: 500}))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "Code_Assistant", titleCase("code_assistant"))
	assert.Equal(t, "General", titleCase("general"))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "/agents/general/sessions/a%20b", agentPath("general", "sessions", "a b"))
	assert.Equal(t, "x", orDefault("", "x"))
}
