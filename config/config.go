package config

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 agentbase 的完整配置结构
type Config struct {
	// Server HTTP API 配置
	Server ServerConfig `yaml:"server" json:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" json:"log" env:"LOG"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" json:"llm" env:"LLM"`

	// Embedding 向量嵌入配置
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding" env:"EMBEDDING"`

	// VectorStore 向量存储配置
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store" env:"VECTOR_STORE"`

	// DocumentStore 原始文档存储配置
	DocumentStore DocumentStoreConfig `yaml:"document_store" json:"document_store" env:"DOCUMENT_STORE"`

	// Memory 会话记忆配置
	Memory MemoryConfig `yaml:"memory" json:"memory" env:"MEMORY"`

	// Agents 按 agent 类型索引的配置
	Agents map[string]AgentConfig `yaml:"agents" json:"agents" env:"-"`

	// Tools 按工具名索引的原始配置，由各工具自行解码
	Tools map[string]map[string]any `yaml:"tools" json:"tools" env:"-"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" json:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" json:"database" env:"DATABASE"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry" env:"TELEMETRY"`

	// Auth API 认证配置
	Auth AuthConfig `yaml:"auth" json:"auth" env:"AUTH"`

	// Scheduler 后台维护任务配置
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler" env:"SCHEDULER"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"HOST"`
	Port            int           `yaml:"port" json:"port" env:"PORT"`
	Debug           bool          `yaml:"debug" json:"debug" env:"DEBUG"`
	CORSEnabled     bool          `yaml:"cors_enabled" json:"cors_enabled" env:"CORS_ENABLED"`
	CORSOrigins     []string      `yaml:"cors_origins" json:"cors_origins" env:"CORS_ORIGINS"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端每秒请求数，0 表示不限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" json:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" json:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" json:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" json:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" json:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider 类型: openai, anthropic, gemini, mock
	Type        string        `yaml:"type" json:"type" env:"TYPE"`
	Model       string        `yaml:"model" json:"model" env:"MODEL"`
	APIKey      string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Temperature float64       `yaml:"temperature" json:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	// Responses 仅用于 mock provider 的脚本化回复
	Responses []string `yaml:"responses" json:"responses" env:"RESPONSES"`
}

// EmbeddingConfig 嵌入配置
type EmbeddingConfig struct {
	// Provider 类型: openai, gemini, hash
	Type           string        `yaml:"type" json:"type" env:"TYPE"`
	Model          string        `yaml:"model" json:"model" env:"MODEL"`
	APIKey         string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL        string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Dimensions     int           `yaml:"dimensions" json:"dimensions" env:"DIMENSIONS"`
	BatchSize      int           `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	MaxInputLength int           `yaml:"max_input_length" json:"max_input_length" env:"MAX_INPUT_LENGTH"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	// 类型: memory, chroma, qdrant
	Type           string `yaml:"type" json:"type" env:"TYPE"`
	Path           string `yaml:"path" json:"path" env:"PATH"`
	CollectionName string `yaml:"collection_name" json:"collection_name" env:"COLLECTION_NAME"`
	// URL 远程向量库地址 (chroma / qdrant)
	URL     string        `yaml:"url" json:"url" env:"URL"`
	APIKey  string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// DocumentStoreConfig 文档存储配置
type DocumentStoreConfig struct {
	// 类型: filesystem, sql
	Type     string `yaml:"type" json:"type" env:"TYPE"`
	BasePath string `yaml:"base_path" json:"base_path" env:"BASE_PATH"`
}

// MemoryConfig 会话记忆配置
type MemoryConfig struct {
	// 类型: in_memory, redis, sql
	Type           string        `yaml:"type" json:"type" env:"TYPE"`
	MaxSessions    int           `yaml:"max_sessions" json:"max_sessions" env:"MAX_SESSIONS"`
	SessionTimeout time.Duration `yaml:"session_timeout" json:"session_timeout" env:"SESSION_TIMEOUT"`
	KeyPrefix      string        `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
}

// AgentConfig 单个 agent 类型的配置
type AgentConfig struct {
	SystemPrompt       string      `yaml:"system_prompt" json:"system_prompt"`
	Tools              []string    `yaml:"tools" json:"tools"`
	RAG                RAGSettings `yaml:"rag_settings" json:"rag_settings"`
	LLM                LLMSettings `yaml:"llm_settings" json:"llm_settings"`
	MaxHistoryMessages int         `yaml:"max_history_messages" json:"max_history_messages"`
}

// DefaultSimilarityThreshold 未配置 similarity_threshold 时使用
const DefaultSimilarityThreshold = 0.7

// RAGSettings 检索设置。SimilarityThreshold 为 nil 表示未配置，显式 0 表示不过滤。
type RAGSettings struct {
	TopK                int      `yaml:"top_k" json:"top_k"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold,omitempty" json:"similarity_threshold,omitempty"`
	MaxContextTokens    int      `yaml:"max_context_tokens" json:"max_context_tokens"`
}

// Threshold 生效的相似度阈值
func (r RAGSettings) Threshold() float64 {
	if r.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *r.SimilarityThreshold
}

// Float64 返回 v 的指针，用于构造 RAGSettings
func Float64(v float64) *float64 { return &v }

// LLMSettings agent 级别的生成参数，零值表示沿用全局 LLM 配置
type LLMSettings struct {
	Model       string  `yaml:"model" json:"model,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
}

// WithDefaults 补齐未设置的检索与历史参数
func (a AgentConfig) WithDefaults() AgentConfig {
	if a.RAG.TopK <= 0 {
		a.RAG.TopK = 5
	}
	if a.RAG.SimilarityThreshold == nil {
		a.RAG.SimilarityThreshold = Float64(DefaultSimilarityThreshold)
	}
	if a.RAG.MaxContextTokens <= 0 {
		a.RAG.MaxContextTokens = 3000
	}
	if a.MaxHistoryMessages <= 0 {
		a.MaxHistoryMessages = 10
	}
	return a
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr" env:"ADDR"`
	Password     string `yaml:"password" json:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" json:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" json:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" json:"host" env:"HOST"`
	Port            int           `yaml:"port" json:"port" env:"PORT"`
	User            string        `yaml:"user" json:"user" env:"USER"`
	Password        string        `yaml:"password" json:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" json:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// AutoMigrate 启动时使用 gorm AutoMigrate 建表；关闭时依赖 migrate 子命令
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`
}

// DSN 返回数据库连接字符串
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate" env:"SAMPLE_RATE"`
}

// AuthConfig API 认证配置
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled" env:"ENABLED"`
	APIKeys   []string `yaml:"api_keys" json:"api_keys" env:"API_KEYS"`
	JWTSecret string   `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string   `yaml:"jwt_issuer" json:"jwt_issuer" env:"JWT_ISSUER"`
}

// SchedulerConfig 后台维护任务配置
type SchedulerConfig struct {
	Enabled            bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	SessionCleanupSpec string        `yaml:"session_cleanup_spec" json:"session_cleanup_spec" env:"SESSION_CLEANUP_SPEC"`
	SessionMaxAge      time.Duration `yaml:"session_max_age" json:"session_max_age" env:"SESSION_MAX_AGE"`
	CacheCleanupSpec   string        `yaml:"cache_cleanup_spec" json:"cache_cleanup_spec" env:"CACHE_CLEANUP_SPEC"`
	CacheMaxAge        time.Duration `yaml:"cache_max_age" json:"cache_max_age" env:"CACHE_MAX_AGE"`
}

// Agent 返回补齐默认值后的 agent 配置
func (c *Config) Agent(agentType string) (AgentConfig, bool) {
	a, ok := c.Agents[agentType]
	if !ok {
		return AgentConfig{}, false
	}
	return a.WithDefaults(), true
}

// Tool 返回工具原始配置，不存在时返回空 map
func (c *Config) Tool(name string) map[string]any {
	if t, ok := c.Tools[name]; ok && t != nil {
		return t
	}
	return map[string]any{}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "invalid server port")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm temperature must be between 0 and 2")
	}
	for name, a := range c.Agents {
		if a.RAG.Threshold() < 0 || a.RAG.Threshold() > 1 {
			errs = append(errs, fmt.Sprintf("agents.%s similarity_threshold must be between 0 and 1", name))
		}
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth enabled but neither api_keys nor jwt_secret configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
