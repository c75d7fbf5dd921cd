package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().WithEnvFiles().Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.True(t, cfg.Server.CORSEnabled)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "in_memory", cfg.Memory.Type)
	assert.Equal(t, "openai", cfg.LLM.Type)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, "text-embedding-ada-002", cfg.Embedding.Model)

	general, ok := cfg.Agent("general")
	require.True(t, ok)
	assert.Equal(t, []string{"web_search", "calculator"}, general.Tools)
	assert.Equal(t, 5, general.RAG.TopK)

	research, ok := cfg.Agent("research_agent")
	require.True(t, ok)
	assert.Equal(t, 10, research.RAG.TopK)
	assert.InDelta(t, 0.6, research.RAG.Threshold(), 1e-9)

	qa, ok := cfg.Agent("document_qa")
	require.True(t, ok)
	assert.Empty(t, qa.Tools)

	_, ok = cfg.Agent("missing")
	assert.False(t, ok)
}

func TestLoader_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
llm:
  type: mock
  timeout: 5s
agents:
  custom:
    tools: [calculator]
  unfiltered:
    rag_settings:
      similarity_threshold: 0
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).WithEnvFiles().Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "mock", cfg.LLM.Type)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)

	custom, ok := cfg.Agent("custom")
	require.True(t, ok)
	assert.Equal(t, []string{"calculator"}, custom.Tools)
	assert.Equal(t, 5, custom.RAG.TopK)
	assert.Equal(t, 10, custom.MaxHistoryMessages)
	assert.InDelta(t, DefaultSimilarityThreshold, custom.RAG.Threshold(), 1e-9)

	// 显式 0 表示不过滤，不能被默认值覆盖
	unfiltered, ok := cfg.Agent("unfiltered")
	require.True(t, ok)
	require.NotNil(t, unfiltered.RAG.SimilarityThreshold)
	assert.Zero(t, unfiltered.RAG.Threshold())

	_, ok = cfg.Agent("general")
	assert.True(t, ok, "default agents are kept")
}

func TestLoader_YAMLDirectoryMerge(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(`
llm:
  model: base-model
  max_tokens: 100
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(`
llm:
  model: local-model
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(dir).WithEnvFiles().Load()
	require.NoError(t, err)
	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.Equal(t, 100, cfg.LLM.MaxTokens)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("AGENT_LLM_API_KEY", "sk-test")
	t.Setenv("AGENT_SERVER_PORT", "8181")
	t.Setenv("AGENT_SERVER_CORS_ORIGINS", "http://a.com, http://b.com")
	t.Setenv("AGENT_MEMORY_SESSION_TIMEOUT", "2h")

	cfg, err := NewLoader().WithEnvFiles().Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.com", "http://b.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Hour, cfg.Memory.SessionTimeout)
}

func TestLoader_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AGENT_LLM_MODEL=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AGENT_LLM_MODEL") })

	cfg, err := NewLoader().WithEnvFiles(envFile).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.Model)
}

func TestLoader_InvalidEnv(t *testing.T) {
	t.Setenv("AGENT_SERVER_PORT", "not-a-number")
	_, err := NewLoader().WithEnvFiles().Load()
	assert.Error(t, err)
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithEnvFiles().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.NoError(t, err)

	t.Setenv("AGENT_LLM_TEMPERATURE", "3.5")
	_, err = NewLoader().
		WithEnvFiles().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestLoader_MissingPathUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).WithEnvFiles().Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestConfig_ValidateAuth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Auth.APIKeys = []string{"k"}
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", db.DSN())

	db.Driver = "mysql"
	assert.Equal(t, "u:p@tcp(h:5432)/n?parseTime=true", db.DSN())

	db.Driver = "sqlite"
	assert.Equal(t, "n", db.DSN())

	db.Driver = "oracle"
	assert.Empty(t, db.DSN())
}

func TestConfig_Tool(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Tool("web_search")["max_results"])
	assert.NotNil(t, cfg.Tool("unknown"))
	assert.Empty(t, cfg.Tool("unknown"))
}

func TestWriteDefaultConfigFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")

	path, created, err := WriteDefaultConfigFile(dir)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, filepath.Join(dir, "default.yaml"), path)

	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: edited\n"), 0o644))
	_, created, err = WriteDefaultConfigFile(dir)
	require.NoError(t, err)
	assert.False(t, created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "edited")
}

func TestDefaultConfigYAML_Decodes(t *testing.T) {
	dir := t.TempDir()
	_, _, err := WriteDefaultConfigFile(dir)
	require.NoError(t, err)

	cfg, err := NewLoader().WithConfigPath(dir).WithEnvFiles().Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	code, ok := cfg.Agent("code_assistant")
	require.True(t, ok)
	assert.Equal(t, 7, code.RAG.TopK)
	assert.InDelta(t, 0.8, code.RAG.Threshold(), 1e-9)
	assert.NotEmpty(t, code.SystemPrompt)
	assert.Equal(t, time.Hour*24, cfg.Scheduler.SessionMaxAge)
}
