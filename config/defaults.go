package config

import "time"

// =============================================================================
// 📦 默认配置
// =============================================================================

// DefaultConfig 返回完整的默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Log:           DefaultLogConfig(),
		LLM:           DefaultLLMConfig(),
		Embedding:     DefaultEmbeddingConfig(),
		VectorStore:   DefaultVectorStoreConfig(),
		DocumentStore: DefaultDocumentStoreConfig(),
		Memory:        DefaultMemoryConfig(),
		Agents:        DefaultAgents(),
		Tools:         DefaultTools(),
		Redis:         DefaultRedisConfig(),
		Database:      DefaultDatabaseConfig(),
		Telemetry:     DefaultTelemetryConfig(),
		Auth:          AuthConfig{},
		Scheduler:     DefaultSchedulerConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		CORSEnabled:     true,
		CORSOrigins:     []string{"*"},
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Type:        "openai",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.7,
		MaxTokens:   2000,
		Timeout:     60 * time.Second,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Type:           "openai",
		Model:          "text-embedding-ada-002",
		BatchSize:      100,
		MaxInputLength: 8191,
		Timeout:        30 * time.Second,
	}
}

// DefaultVectorStoreConfig 返回默认向量存储配置
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		Type:           "memory",
		Path:           "./data/vectors",
		CollectionName: "ai_agents",
		Timeout:        30 * time.Second,
	}
}

// DefaultDocumentStoreConfig 返回默认文档存储配置
func DefaultDocumentStoreConfig() DocumentStoreConfig {
	return DocumentStoreConfig{
		Type:     "filesystem",
		BasePath: "./data/documents",
	}
}

// DefaultMemoryConfig 返回默认会话记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Type:           "in_memory",
		MaxSessions:    1000,
		SessionTimeout: 24 * time.Hour,
		KeyPrefix:      "agentbase:",
	}
}

// DefaultAgents 返回内置的四种 agent 配置
func DefaultAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		"general": {
			Tools:              []string{"web_search", "calculator"},
			RAG:                RAGSettings{TopK: 5, SimilarityThreshold: Float64(0.7), MaxContextTokens: 3000},
			MaxHistoryMessages: 10,
		},
		"code_assistant": {
			Tools:              []string{"web_search", "file_operations", "code_execution"},
			RAG:                RAGSettings{TopK: 7, SimilarityThreshold: Float64(0.8), MaxContextTokens: 4000},
			MaxHistoryMessages: 10,
		},
		"research_agent": {
			Tools:              []string{"web_search"},
			RAG:                RAGSettings{TopK: 10, SimilarityThreshold: Float64(0.6), MaxContextTokens: 5000},
			MaxHistoryMessages: 10,
		},
		"document_qa": {
			Tools:              []string{},
			RAG:                RAGSettings{TopK: 8, SimilarityThreshold: Float64(0.7), MaxContextTokens: 5000},
			MaxHistoryMessages: 10,
		},
	}
}

// DefaultTools 返回内置工具的默认配置
func DefaultTools() map[string]map[string]any {
	return map[string]map[string]any{
		"calculator": {},
		"web_search": {
			"max_results":          5,
			"cache_results":        true,
			"quality_threshold":    0.8,
			"cache_freshness_days": 30,
			"cache_path":           "./data/web_cache",
			"timeout":              "10s",
		},
		"file_operations": {
			"allowed_paths":      []any{"./workspace/", "./data/"},
			"max_file_size":      10 * 1024 * 1024,
			"allowed_extensions": []any{".txt", ".md", ".json", ".yaml", ".yml", ".csv", ".py", ".js", ".html", ".css"},
		},
		"code_execution": {
			"timeout_seconds":   30,
			"max_output_length": 10000,
			"allowed_languages": []any{"python", "javascript", "bash"},
			"enable_network":    false,
			"max_memory_mb":     128,
			"max_cpu_time":      10,
			"backend":           "process",
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "./data/agentbase.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentbase",
		SampleRate:   1.0,
	}
}

// DefaultSchedulerConfig 返回默认维护任务配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:            true,
		SessionCleanupSpec: "@every 1h",
		SessionMaxAge:      24 * time.Hour,
		CacheCleanupSpec:   "@daily",
		CacheMaxAge:        30 * 24 * time.Hour,
	}
}
