package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/internal/cache"
	"github.com/BaSui01/agentbase/internal/database"
	"github.com/BaSui01/agentbase/memory"
	"github.com/BaSui01/agentbase/rag"
	"github.com/BaSui01/agentbase/tools"
	"github.com/BaSui01/agentbase/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LLM = config.LLMConfig{Type: "mock", Responses: []string{"hello from mock"}}
	cfg.Embedding = config.EmbeddingConfig{Type: "hash", Dimensions: 64}
	cfg.VectorStore = config.VectorStoreConfig{Type: "memory"}
	cfg.DocumentStore = config.DocumentStoreConfig{Type: "filesystem", BasePath: filepath.Join(dir, "docs")}
	cfg.Memory = config.MemoryConfig{Type: "in_memory", MaxSessions: 10}
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(dir, "app.db"), AutoMigrate: true}
	cfg.Tools = config.DefaultTools()
	cfg.Tools["web_search"]["cache_path"] = filepath.Join(dir, "web_cache")
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.Config) *Env {
	t.Helper()
	env := NewEnv(cfg, zap.NewNop())
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestFactory_Available(t *testing.T) {
	avail := NewDefault().Available()

	assert.Equal(t, []string{"chroma", "memory", "qdrant"}, avail["vector_stores"])
	assert.Equal(t, []string{"filesystem", "sql"}, avail["document_stores"])
	assert.Equal(t, []string{"in_memory", "redis", "sql"}, avail["memory_backends"])
	assert.Equal(t, []string{"anthropic", "gemini", "mock", "openai"}, avail["llm_providers"])
	assert.Equal(t, []string{"gemini", "hash", "openai"}, avail["embedding_providers"])
	assert.Equal(t, []string{"calculator", "code_execution", "file_operations", "web_search"}, avail["tools"])
	assert.Equal(t, []string{"defaults", "env", "yaml"}, avail["config_providers"])
}

func TestFactory_UnknownType(t *testing.T) {
	f := NewDefault()
	env := newTestEnv(t, testConfig(t))

	_, err := f.CreateVectorStore(env, config.VectorStoreConfig{Type: "faiss"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownComponent))
	assert.Contains(t, err.Error(), "unknown vector store type: faiss")

	_, err = f.CreateMemoryBackend(env, config.MemoryConfig{Type: "memcached"})
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownComponent))

	_, err = f.CreateLLMProvider(context.Background(), env, config.LLMConfig{Type: "deepseek"})
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownComponent))

	_, err = f.CreateTool(env, "shell", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownComponent))
}

func TestFactory_DefaultsAndCaseInsensitive(t *testing.T) {
	f := NewDefault()
	env := newTestEnv(t, testConfig(t))

	vs, err := f.CreateVectorStore(env, config.VectorStoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &rag.InMemoryVectorStore{}, vs)

	mb, err := f.CreateMemoryBackend(env, config.MemoryConfig{Type: "IN_MEMORY"})
	require.NoError(t, err)
	assert.IsType(t, &memory.InMemoryBackend{}, mb)

	p, err := f.CreateLLMProvider(context.Background(), env, config.LLMConfig{Type: "Mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	e, err := f.CreateEmbedding(context.Background(), env, config.EmbeddingConfig{Type: "hash", Dimensions: 32})
	require.NoError(t, err)
	assert.Equal(t, "hash", e.Name())
	assert.Equal(t, 32, e.Dimension())
}

func TestFactory_RegisterOverrides(t *testing.T) {
	f := NewDefault()
	env := newTestEnv(t, testConfig(t))
	calls := 0
	f.RegisterMemoryBackend("Custom", func(env *Env, cfg config.MemoryConfig) (memory.Backend, error) {
		calls++
		return memory.NewInMemoryBackend(1, env.Logger), nil
	})

	_, err := f.CreateMemoryBackend(env, config.MemoryConfig{Type: "custom"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, f.Available()["memory_backends"], "custom")
}

func TestFactory_SQLBackends(t *testing.T) {
	f := NewDefault()
	cfg := testConfig(t)
	env := newTestEnv(t, cfg)
	pm, err := database.Open(cfg.Database, zap.NewNop())
	require.NoError(t, err)
	env.SetPool(pm)

	mb, err := f.CreateMemoryBackend(env, config.MemoryConfig{Type: "sql"})
	require.NoError(t, err)
	assert.IsType(t, &memory.SQLBackend{}, mb)

	ds, err := f.CreateDocumentStore(env, config.DocumentStoreConfig{Type: "sql"})
	require.NoError(t, err)
	id, err := ds.Store(context.Background(), "hello", map[string]any{"k": "v"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, env.HasDB())
}

func TestFactory_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	f := NewDefault()
	env := newTestEnv(t, testConfig(t))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	env.SetCache(cache.NewManagerFromClient(client, cache.DefaultConfig(), zap.NewNop()))

	mb, err := f.CreateMemoryBackend(env, config.MemoryConfig{Type: "redis", KeyPrefix: "t:"})
	require.NoError(t, err)
	assert.IsType(t, &memory.RedisBackend{}, mb)

	ctx := context.Background()
	require.NoError(t, mb.AppendMessage(ctx, "s1", memory.NewMessage("user", "hi"), "general", "u1"))
	assert.True(t, mr.Exists("t:session:s1"))

	tool, err := f.CreateTool(env, "web_search", map[string]any{"cache_backend": "redis", "cache_results": true})
	require.NoError(t, err)
	assert.Equal(t, "web_search", tool.Name())
}

func TestCreateToolRegistry_SkipsUnknown(t *testing.T) {
	f := NewDefault()
	env := newTestEnv(t, testConfig(t))

	reg := f.CreateToolRegistry(env, []string{"calculator", "teleport", "file_operations"})
	assert.Equal(t, []string{"calculator", "file_operations"}, reg.List())
}

func TestCreateConfigChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"),
		[]byte("llm:\n  model: from-yaml\n  type: anthropic\n"), 0o644))
	t.Setenv("TESTAB_LLM_MODEL", "from-env")

	p, err := NewDefault().CreateConfigChain(dir, "TESTAB")
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.Get("llm.model", ""))
	assert.Equal(t, "anthropic", p.Get("llm.type", ""))
	assert.Equal(t, "in_memory", p.Get("memory.type", ""))
}

func TestBuildAgents(t *testing.T) {
	f := NewDefault()
	cfg := testConfig(t)
	env := newTestEnv(t, cfg)

	var queries []string
	var toolRuns []string
	rt, err := f.BuildAgents(context.Background(), env, Observers{
		Query: func(agentType string, _ time.Duration, _ bool) { queries = append(queries, agentType) },
		Tool:  func(tool string, _ bool, _ time.Duration) { toolRuns = append(toolRuns, tool) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"code_assistant", "document_qa", "general", "research_agent"}, rt.Agents.Types())
	assert.Equal(t, "mock", rt.Components.LLM.Name())

	general, err := rt.Agents.Get("general")
	require.NoError(t, err)
	assert.Equal(t, []string{"calculator", "web_search"}, general.ListTools())

	qa, err := rt.Agents.Get("document_qa")
	require.NoError(t, err)
	assert.Empty(t, qa.ListTools())

	resp := general.ProcessQuery(context.Background(), agent.Query{Text: "hi"})
	assert.Equal(t, "hello from mock", resp.Content)
	assert.Equal(t, []string{"general"}, queries)

	res := general.ExecuteTool(context.Background(), "calculator", "1+1", nil)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"calculator"}, toolRuns)

	_, err = rt.Agents.Get("missing")
	assert.True(t, types.IsErrorCode(err, types.ErrAgentNotFound))
	require.NoError(t, rt.Close())
}

func TestBuildAgents_ComponentError(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Type = "pinecone"
	_, err := NewDefault().BuildAgents(context.Background(), newTestEnv(t, cfg), Observers{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector store")
}

var _ tools.Tool = (*tools.CalculatorTool)(nil)
