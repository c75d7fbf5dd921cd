package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/factory"
	"github.com/BaSui01/agentbase/tools"
)

// =============================================================================
// 🔌 MCP stdio 服务
// =============================================================================

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve agent tools and chat over MCP (stdio)",
		Long: `Runs a Model Context Protocol server on stdin/stdout. Every tool configured
for any agent is exposed once, plus a "chat" tool that runs the full agent pipeline.
Logs go to stderr so they never corrupt the protocol stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			cfg.Log.OutputPaths = []string{"stderr"}
			logger, _ := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			rt, err := factory.NewDefault().BuildAgents(ctx, factory.NewEnv(cfg, logger), factory.Observers{})
			if err != nil {
				return fmt.Errorf("failed to build agents: %w", err)
			}
			defer rt.Close()

			server := newMCPServer(rt.Agents, logger)
			logger.Info("mcp server running on stdio", zap.Strings("agents", rt.Agents.Types()))
			return server.Run(ctx, &mcp.StdioTransport{})
		},
	}
}

// ChatToolInput chat 工具参数
type ChatToolInput struct {
	AgentType string `json:"agent_type" jsonschema:"agent type, e.g. general, code_assistant, research_agent, document_qa"`
	Message   string `json:"message" jsonschema:"user message"`
	SessionID string `json:"session_id,omitempty" jsonschema:"optional session ID to continue a conversation"`
}

// ToolCallInput agent 工具的统一参数
type ToolCallInput struct {
	Input      string         `json:"input" jsonschema:"free-text tool input"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"optional tool-specific parameters"`
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

// newMCPServer 注册 chat 工具与所有 agent 工具的并集。同名工具只注册一次，
// 通过第一个拥有它的 agent 执行。
func newMCPServer(agents *agent.Manager, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agentbase",
		Version: Version,
	}, &mcp.ServerOptions{HasTools: true})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Send a message to an agent and return its answer. Available agents: " + strings.Join(agents.Types(), ", "),
	}, func(ctx context.Context, req *mcp.CallToolRequest, in ChatToolInput) (*mcp.CallToolResult, any, error) {
		a, err := agents.Get(in.AgentType)
		if err != nil {
			return textResult(err.Error(), true), nil, nil
		}
		if strings.TrimSpace(in.Message) == "" {
			return textResult("message is required", true), nil, nil
		}
		resp := a.ProcessQuery(ctx, agent.Query{Text: in.Message, SessionID: in.SessionID})
		out, err := json.Marshal(resp)
		if err != nil {
			return nil, nil, err
		}
		return textResult(string(out), false), nil, nil
	})

	registered := make(map[string]struct{})
	for _, t := range agents.Types() {
		a, err := agents.Get(t)
		if err != nil {
			continue
		}
		for _, tool := range a.Tools().All() {
			name := tool.Name()
			if _, dup := registered[name]; dup {
				continue
			}
			registered[name] = struct{}{}
			mcp.AddTool(server, &mcp.Tool{
				Name:        name,
				Description: tool.Description(),
			}, toolHandler(a, name, logger))
		}
	}
	logger.Debug("mcp tools registered", zap.Int("count", len(registered)+1))
	return server
}

func toolHandler(a *agent.Agent, name string, logger *zap.Logger) mcp.ToolHandlerFor[ToolCallInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in ToolCallInput) (*mcp.CallToolResult, any, error) {
		res := a.ExecuteTool(ctx, name, in.Input, in.Parameters)
		if !res.Success {
			logger.Debug("mcp tool failed", zap.String("tool", name), zap.String("error", res.Error))
			return textResult(res.Error, true), nil, nil
		}
		return textResult(formatToolResult(res), false), nil, nil
	}
}

// formatToolResult 内容后附带 JSON 元数据
func formatToolResult(res *tools.Result) string {
	if len(res.Metadata) == 0 {
		return res.Content
	}
	meta, err := json.Marshal(res.Metadata)
	if err != nil {
		return res.Content
	}
	return res.Content + "\n\nmetadata: " + string(meta)
}
