package factory

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentbase/codeexec"
	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/docstore"
	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/embedding"
	llmfactory "github.com/BaSui01/agentbase/llm/factory"
	"github.com/BaSui01/agentbase/memory"
	"github.com/BaSui01/agentbase/rag"
	"github.com/BaSui01/agentbase/tools"
)

// RegisterBuiltins 注册全部内置实现
func RegisterBuiltins(f *Factory) {
	// 向量存储
	for _, t := range []rag.VectorStoreType{rag.VectorStoreMemory, rag.VectorStoreChroma, rag.VectorStoreQdrant} {
		t := t
		f.RegisterVectorStore(string(t), func(env *Env, cfg config.VectorStoreConfig) (rag.VectorStore, error) {
			cfg.Type = string(t)
			return rag.NewVectorStoreFromConfig(cfg, env.Logger)
		})
	}

	// 文档存储
	f.RegisterDocumentStore("filesystem", func(env *Env, cfg config.DocumentStoreConfig) (docstore.Store, error) {
		base := cfg.BasePath
		if base == "" {
			base = config.DefaultDocumentStoreConfig().BasePath
		}
		return docstore.NewFileSystemStore(base, env.Logger)
	})
	f.RegisterDocumentStore("sql", func(env *Env, _ config.DocumentStoreConfig) (docstore.Store, error) {
		db, err := env.DB()
		if err != nil {
			return nil, fmt.Errorf("sql document store: %w", err)
		}
		return docstore.NewSQLStore(db, env.Config.Database.AutoMigrate, env.Logger)
	})

	// 会话记忆
	f.RegisterMemoryBackend("in_memory", func(env *Env, cfg config.MemoryConfig) (memory.Backend, error) {
		return memory.NewInMemoryBackend(cfg.MaxSessions, env.Logger), nil
	})
	f.RegisterMemoryBackend("redis", func(env *Env, cfg config.MemoryConfig) (memory.Backend, error) {
		cm, err := env.Cache()
		if err != nil {
			return nil, fmt.Errorf("redis memory backend: %w", err)
		}
		return memory.NewRedisBackend(cm.Client(), memory.RedisOptions{
			KeyPrefix:      cfg.KeyPrefix,
			SessionTimeout: cfg.SessionTimeout,
		}, env.Logger)
	})
	f.RegisterMemoryBackend("sql", func(env *Env, _ config.MemoryConfig) (memory.Backend, error) {
		db, err := env.DB()
		if err != nil {
			return nil, fmt.Errorf("sql memory backend: %w", err)
		}
		return memory.NewSQLBackend(db, env.Config.Database.AutoMigrate, env.Logger)
	})

	// LLM
	for _, name := range []string{"openai", "anthropic", "gemini", "mock"} {
		name := name
		f.RegisterLLMProvider(name, func(ctx context.Context, env *Env, cfg config.LLMConfig) (llm.Provider, error) {
			return llmfactory.NewProviderFromConfig(ctx, name, llmfactory.ProviderConfig{
				APIKey:      cfg.APIKey,
				BaseURL:     cfg.BaseURL,
				Model:       cfg.Model,
				Timeout:     cfg.Timeout,
				Temperature: cfg.Temperature,
				MaxTokens:   cfg.MaxTokens,
				Extra:       map[string]any{"responses": cfg.Responses},
			}, env.Logger)
		})
	}

	// 嵌入
	f.RegisterEmbedding("openai", func(_ context.Context, _ *Env, cfg config.EmbeddingConfig) (embedding.Provider, error) {
		oc := embedding.DefaultOpenAIConfig()
		oc.APIKey = cfg.APIKey
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		oc.Dimensions = cfg.Dimensions
		oc.MaxInputLength = cfg.MaxInputLength
		return embedding.NewOpenAIProvider(oc), nil
	})
	f.RegisterEmbedding("gemini", func(ctx context.Context, _ *Env, cfg config.EmbeddingConfig) (embedding.Provider, error) {
		gc := embedding.DefaultGeminiConfig()
		gc.APIKey = cfg.APIKey
		gc.BaseURL = cfg.BaseURL
		if cfg.Model != "" {
			gc.Model = cfg.Model
		}
		if cfg.Timeout > 0 {
			gc.Timeout = cfg.Timeout
		}
		gc.Dimensions = cfg.Dimensions
		gc.MaxInputLength = cfg.MaxInputLength
		return embedding.NewGeminiProvider(ctx, gc)
	})
	f.RegisterEmbedding("hash", func(_ context.Context, _ *Env, cfg config.EmbeddingConfig) (embedding.Provider, error) {
		return embedding.NewHashProvider(embedding.HashConfig{
			Dimensions:     cfg.Dimensions,
			MaxInputLength: cfg.MaxInputLength,
		}), nil
	})

	// 工具
	f.RegisterTool("calculator", func(*Env, map[string]any) (tools.Tool, error) {
		return tools.NewCalculatorTool(), nil
	})
	f.RegisterTool("file_operations", func(env *Env, raw map[string]any) (tools.Tool, error) {
		cfg := tools.DefaultFileOperationsConfig()
		if err := config.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		return tools.NewFileOperationsTool(cfg, env.Logger), nil
	})
	f.RegisterTool("web_search", func(env *Env, raw map[string]any) (tools.Tool, error) {
		cfg := tools.DefaultWebSearchConfig()
		if err := config.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		var opts []tools.WebSearchOption
		if cfg.CacheResults && cfg.CacheBackend == "redis" {
			cm, err := env.Cache()
			if err != nil {
				return nil, fmt.Errorf("web_search redis cache: %w", err)
			}
			opts = append(opts, tools.WithResultCache(tools.NewRedisCache(cm, cfg.Freshness())))
		}
		return tools.NewWebSearchTool(cfg, env.Logger, opts...)
	})
	f.RegisterTool("code_execution", func(env *Env, raw map[string]any) (tools.Tool, error) {
		cfg := codeexec.DefaultConfig()
		if err := config.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		exec, err := codeexec.NewExecutorFromConfig(cfg, env.Logger)
		if err != nil {
			return nil, err
		}
		return tools.NewCodeExecutionTool(exec), nil
	})

	// 配置源
	f.RegisterConfigProvider("yaml", func(opts map[string]any) (config.Provider, error) {
		dir, _ := opts["config_dir"].(string)
		if dir == "" {
			dir = "./config"
		}
		return config.NewYAMLProvider(dir)
	})
	f.RegisterConfigProvider("env", func(opts map[string]any) (config.Provider, error) {
		prefix, _ := opts["prefix"].(string)
		if prefix == "" {
			prefix = config.DefaultEnvPrefix
		}
		return config.NewEnvProvider(prefix), nil
	})
	f.RegisterConfigProvider("defaults", func(map[string]any) (config.Provider, error) {
		return config.NewDefaultsProvider(), nil
	})
}
