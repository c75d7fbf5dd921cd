// =============================================================================
// agentbase 主入口
// =============================================================================
// 服务端与客户端共用一个二进制：
//
//	agentbase serve --config ./config         # 启动 HTTP API
//	agentbase migrate up                      # 运行数据库迁移
//	agentbase mcp                             # 通过 MCP stdio 暴露工具
//	agentbase init-config ./config            # 生成默认配置
//	agentbase config get llm.model            # 读取配置项
//	agentbase chat general "hello" --sources  # 通过 HTTP 与 agent 对话
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BaSui01/agentbase/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	defaultConfigPath = "./config"
	defaultAPIURL     = "http://localhost:8000"
)

// rootOptions 全局 flag
type rootOptions struct {
	configPath string
	apiURL     string
	apiKey     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "agentbase",
		Short: "agentbase - retrieval-augmented conversational agents",
		Long: `agentbase runs retrieval-augmented conversational agents behind a REST API
and talks to a running server from the command line.

Server commands: serve, migrate, mcp, init-config, config, version.
Client commands: agents, chat, history, tools, tool, interactive, health.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file or directory")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", defaultAPIURL, "API server URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("AGENTBASE_API_KEY"), "API key sent as X-API-Key")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newMCPCmd(opts),
		newInitConfigCmd(),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	addClientCommands(root, opts)
	return root
}

// loadConfig 加载并验证配置
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agentbase %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
