package main

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/tools"
)

func connectMCP(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	rt := newTestRuntime(t, newTestConfig(t))
	server := newMCPServer(rt.Agents, zap.NewNop())

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	cs := connectMCP(t)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := map[string]int{}
	for _, tool := range res.Tools {
		names[tool.Name]++
	}
	for _, want := range []string{"chat", "calculator", "web_search"} {
		assert.Equal(t, 1, names[want], want)
	}
	for name, n := range names {
		assert.Equal(t, 1, n, "%s registered once", name)
	}
}

func TestMCP_CallTool(t *testing.T) {
	cs := connectMCP(t)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "calculator",
		Arguments: map[string]any{"input": "2+2"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, callText(t, res), "2+2 = 4")

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "calculator",
		Arguments: map[string]any{"input": "import os"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCP_Chat(t *testing.T) {
	cs := connectMCP(t)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "chat",
		Arguments: map[string]any{"agent_type": "general", "message": "hi"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	body := gjson.Parse(callText(t, res))
	assert.Equal(t, "**hello** from mock", body.Get("content").String())
	assert.Contains(t, body.Get("session_id").String(), "general_")

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "chat",
		Arguments: map[string]any{"agent_type": "pirate", "message": "ahoy"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "chat",
		Arguments: map[string]any{"agent_type": "general", "message": "  "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "message is required", callText(t, res))
}

func TestFormatToolResult(t *testing.T) {
	assert.Equal(t, "4", formatToolResult(&tools.Result{Content: "4"}))
	assert.Equal(t, "4\n\nmetadata: {\"expression\":\"2+2\"}",
		formatToolResult(&tools.Result{Content: "4", Metadata: map[string]any{"expression": "2+2"}}))
}
