package providers

import "time"

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
// 通过嵌入此结构体，各 Provider 的 Config 自动获得 APIKey、BaseURL、Model、Timeout 等字段，
// 避免重复定义。
type BaseProviderConfig struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Temperature float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// OpenAIConfig OpenAI 及兼容接口 (vLLM / Ollama / DeepSeek) 配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// ClaudeConfig Anthropic Claude Provider 配置
type ClaudeConfig struct {
	BaseProviderConfig `yaml:",inline"`
}

// GeminiConfig Gemini Provider 配置
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
}

// MockConfig 脚本化 Provider 配置
type MockConfig struct {
	Model     string        `json:"model,omitempty" yaml:"model,omitempty"`
	Responses []string      `json:"responses,omitempty" yaml:"responses,omitempty"`
	Latency   time.Duration `json:"latency,omitempty" yaml:"latency,omitempty"`
}

// ContextLength 返回常见模型家族的上下文长度，未知模型返回 fallback。
func ContextLength(model string, fallback int) int {
	for _, e := range contextLengths {
		if len(model) >= len(e.prefix) && model[:len(e.prefix)] == e.prefix {
			return e.length
		}
	}
	return fallback
}

// 按前缀长度降序排列，保证最长前缀优先
var contextLengths = []struct {
	prefix string
	length int
}{
	{"gpt-3.5-turbo-instruct", 4096},
	{"gpt-4o-mini", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-3.5-turbo", 16385},
	{"gemini-1.5", 1048576},
	{"gemini-2", 1048576},
	{"claude-", 200000},
	{"gpt-4o", 128000},
	{"gpt-4", 8192},
	{"o1", 200000},
	{"o3", 200000},
}
