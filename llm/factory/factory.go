package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
	claude "github.com/BaSui01/agentbase/llm/providers/anthropic"
	"github.com/BaSui01/agentbase/llm/providers/gemini"
	"github.com/BaSui01/agentbase/llm/providers/mock"
	"github.com/BaSui01/agentbase/llm/providers/openai"
	"go.uber.org/zap"
)

// ProviderConfig is the generic configuration accepted by the factory function.
// It uses a flat structure with an Extra map for provider-specific fields.
type ProviderConfig struct {
	APIKey      string         `json:"api_key" yaml:"api_key"`
	BaseURL     string         `json:"base_url" yaml:"base_url"`
	Model       string         `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout     time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Temperature float64        `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// NewProviderFromConfig creates a Provider instance based on the provider name.
//
// Supported names: openai, anthropic, claude, gemini, mock.
func NewProviderFromConfig(ctx context.Context, name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	switch strings.ToLower(name) {
	case "openai":
		oc := providers.OpenAIConfig{BaseProviderConfig: base}
		if v, ok := cfg.Extra["organization"].(string); ok {
			oc.Organization = v
		}
		return openai.NewProvider(oc, logger), nil

	case "anthropic", "claude":
		return claude.NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: base}, logger), nil

	case "gemini":
		p, err := gemini.NewGeminiProvider(ctx, providers.GeminiConfig{BaseProviderConfig: base}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "mock":
		mc := providers.MockConfig{Model: cfg.Model, Responses: stringSlice(cfg.Extra["responses"])}
		if v, ok := cfg.Extra["latency"].(time.Duration); ok {
			mc.Latency = v
		}
		return mock.NewMockProvider(mc), nil

	default:
		return nil, fmt.Errorf("unknown provider %q (supported: %s)", name, strings.Join(SupportedProviders(), ", "))
	}
}

// SupportedProviders returns the list of built-in provider names.
func SupportedProviders() []string {
	return []string{"openai", "anthropic", "claude", "gemini", "mock"}
}

func stringSlice(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, x := range vs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
