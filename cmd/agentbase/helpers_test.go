package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/factory"
)

// newTestConfig 使用 mock LLM 与 hash 嵌入的全内存配置
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LLM = config.LLMConfig{Type: "mock", Model: "mock-1", Responses: []string{"**hello** from mock"}}
	cfg.Embedding = config.EmbeddingConfig{Type: "hash", Dimensions: 32}
	cfg.VectorStore = config.VectorStoreConfig{Type: "memory"}
	cfg.DocumentStore = config.DocumentStoreConfig{Type: "filesystem", BasePath: filepath.Join(dir, "docs")}
	cfg.Memory = config.MemoryConfig{Type: "in_memory"}
	cfg.Tools = config.DefaultTools()
	cfg.Tools["web_search"]["cache_path"] = filepath.Join(dir, "web_cache")
	cfg.Scheduler.Enabled = false
	return cfg
}

func newTestRuntime(t *testing.T, cfg *config.Config) *factory.Runtime {
	t.Helper()
	rt, err := factory.NewDefault().BuildAgents(context.Background(), factory.NewEnv(cfg, zap.NewNop()), factory.Observers{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// runCLI 执行根命令并返回标准输出与标准错误
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
