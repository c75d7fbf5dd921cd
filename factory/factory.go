package factory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/docstore"
	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/embedding"
	"github.com/BaSui01/agentbase/memory"
	"github.com/BaSui01/agentbase/rag"
	"github.com/BaSui01/agentbase/tools"
	"github.com/BaSui01/agentbase/types"
)

// 各类组件的构造函数签名
type (
	VectorStoreCreator    func(env *Env, cfg config.VectorStoreConfig) (rag.VectorStore, error)
	DocumentStoreCreator  func(env *Env, cfg config.DocumentStoreConfig) (docstore.Store, error)
	MemoryBackendCreator  func(env *Env, cfg config.MemoryConfig) (memory.Backend, error)
	LLMProviderCreator    func(ctx context.Context, env *Env, cfg config.LLMConfig) (llm.Provider, error)
	EmbeddingCreator      func(ctx context.Context, env *Env, cfg config.EmbeddingConfig) (embedding.Provider, error)
	ToolCreator           func(env *Env, raw map[string]any) (tools.Tool, error)
	ConfigProviderCreator func(opts map[string]any) (config.Provider, error)
)

// 类型为空时使用的默认实现
const (
	DefaultVectorStore    = "memory"
	DefaultDocumentStore  = "filesystem"
	DefaultMemoryBackend  = "in_memory"
	DefaultLLMProvider    = "openai"
	DefaultEmbedding      = "openai"
	DefaultConfigProvider = "yaml"
)

// Factory 按类型名注册并创建组件。类型名大小写不敏感。
type Factory struct {
	mu              sync.RWMutex
	vectorStores    map[string]VectorStoreCreator
	documentStores  map[string]DocumentStoreCreator
	memoryBackends  map[string]MemoryBackendCreator
	llmProviders    map[string]LLMProviderCreator
	embeddings      map[string]EmbeddingCreator
	tools           map[string]ToolCreator
	configProviders map[string]ConfigProviderCreator
}

// New 创建空工厂，不含任何实现
func New() *Factory {
	return &Factory{
		vectorStores:    map[string]VectorStoreCreator{},
		documentStores:  map[string]DocumentStoreCreator{},
		memoryBackends:  map[string]MemoryBackendCreator{},
		llmProviders:    map[string]LLMProviderCreator{},
		embeddings:      map[string]EmbeddingCreator{},
		tools:           map[string]ToolCreator{},
		configProviders: map[string]ConfigProviderCreator{},
	}
}

// NewDefault 创建已注册全部内置实现的工厂
func NewDefault() *Factory {
	f := New()
	RegisterBuiltins(f)
	return f
}

func key(t, def string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return def
	}
	return t
}

func register[C any](f *Factory, m map[string]C, name string, c C) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m[strings.ToLower(name)] = c
}

func lookup[C any](f *Factory, m map[string]C, kind, name string) (C, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := m[name]
	if !ok {
		var zero C
		return zero, types.Errorf(types.ErrUnknownComponent, "unknown %s type: %s", kind, name)
	}
	return c, nil
}

// RegisterVectorStore 注册向量存储实现
func (f *Factory) RegisterVectorStore(name string, c VectorStoreCreator) {
	register(f, f.vectorStores, name, c)
}

// RegisterDocumentStore 注册文档存储实现
func (f *Factory) RegisterDocumentStore(name string, c DocumentStoreCreator) {
	register(f, f.documentStores, name, c)
}

// RegisterMemoryBackend 注册会话记忆后端
func (f *Factory) RegisterMemoryBackend(name string, c MemoryBackendCreator) {
	register(f, f.memoryBackends, name, c)
}

// RegisterLLMProvider 注册 LLM Provider
func (f *Factory) RegisterLLMProvider(name string, c LLMProviderCreator) {
	register(f, f.llmProviders, name, c)
}

// RegisterEmbedding 注册嵌入提供者
func (f *Factory) RegisterEmbedding(name string, c EmbeddingCreator) {
	register(f, f.embeddings, name, c)
}

// RegisterTool 注册工具
func (f *Factory) RegisterTool(name string, c ToolCreator) {
	register(f, f.tools, name, c)
}

// RegisterConfigProvider 注册配置源
func (f *Factory) RegisterConfigProvider(name string, c ConfigProviderCreator) {
	register(f, f.configProviders, name, c)
}

// CreateVectorStore 按 cfg.Type 创建向量存储
func (f *Factory) CreateVectorStore(env *Env, cfg config.VectorStoreConfig) (rag.VectorStore, error) {
	c, err := lookup(f, f.vectorStores, "vector store", key(cfg.Type, DefaultVectorStore))
	if err != nil {
		return nil, err
	}
	return c(env, cfg)
}

// CreateDocumentStore 按 cfg.Type 创建文档存储
func (f *Factory) CreateDocumentStore(env *Env, cfg config.DocumentStoreConfig) (docstore.Store, error) {
	c, err := lookup(f, f.documentStores, "document store", key(cfg.Type, DefaultDocumentStore))
	if err != nil {
		return nil, err
	}
	return c(env, cfg)
}

// CreateMemoryBackend 按 cfg.Type 创建会话记忆后端
func (f *Factory) CreateMemoryBackend(env *Env, cfg config.MemoryConfig) (memory.Backend, error) {
	c, err := lookup(f, f.memoryBackends, "memory backend", key(cfg.Type, DefaultMemoryBackend))
	if err != nil {
		return nil, err
	}
	return c(env, cfg)
}

// CreateLLMProvider 按 cfg.Type 创建 LLM Provider
func (f *Factory) CreateLLMProvider(ctx context.Context, env *Env, cfg config.LLMConfig) (llm.Provider, error) {
	c, err := lookup(f, f.llmProviders, "llm provider", key(cfg.Type, DefaultLLMProvider))
	if err != nil {
		return nil, err
	}
	return c(ctx, env, cfg)
}

// CreateEmbedding 按 cfg.Type 创建嵌入提供者
func (f *Factory) CreateEmbedding(ctx context.Context, env *Env, cfg config.EmbeddingConfig) (embedding.Provider, error) {
	c, err := lookup(f, f.embeddings, "embedding provider", key(cfg.Type, DefaultEmbedding))
	if err != nil {
		return nil, err
	}
	return c(ctx, env, cfg)
}

// CreateTool 创建名为 name 的工具，raw 为该工具的原始配置
func (f *Factory) CreateTool(env *Env, name string, raw map[string]any) (tools.Tool, error) {
	c, err := lookup(f, f.tools, "tool", key(name, ""))
	if err != nil {
		return nil, err
	}
	return c(env, raw)
}

// CreateConfigProvider 按类型创建配置源
func (f *Factory) CreateConfigProvider(kind string, opts map[string]any) (config.Provider, error) {
	c, err := lookup(f, f.configProviders, "config provider", key(kind, DefaultConfigProvider))
	if err != nil {
		return nil, err
	}
	return c(opts)
}

// Available 返回每类组件已注册的类型名（已排序）
func (f *Factory) Available() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string][]string{
		"vector_stores":       names(f.vectorStores),
		"document_stores":     names(f.documentStores),
		"memory_backends":     names(f.memoryBackends),
		"config_providers":    names(f.configProviders),
		"llm_providers":       names(f.llmProviders),
		"embedding_providers": names(f.embeddings),
		"tools":               names(f.tools),
	}
}

func names[C any](m map[string]C) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
