package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
	"github.com/BaSui01/agentbase/llm/tokenizer"
	"github.com/BaSui01/agentbase/types"
)

const (
	defaultModel     = "gemini-1.5-flash"
	defaultMaxTokens = 2000
)

// GeminiProvider 通过 google.golang.org/genai 调用 Gemini GenerateContent。
// system 消息合并为 SystemInstruction，assistant 映射为 model 角色。
type GeminiProvider struct {
	cfg       providers.GeminiConfig
	client    *genai.Client
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewGeminiProvider 创建 Gemini Provider
func NewGeminiProvider(ctx context.Context, cfg providers.GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiProvider{
		cfg:       cfg,
		client:    client,
		tokenizer: tokenizer.NewEstimatorTokenizer(cfg.Model, providers.ContextLength(cfg.Model, 1048576)),
		logger:    logger.With(zap.String("component", "llm_gemini")),
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) SupportsStreaming() bool { return true }

func (p *GeminiProvider) SupportsFunctionCalling() bool { return true }

func (p *GeminiProvider) CountTokens(text string) int {
	return tokenizer.Count(p.tokenizer, text)
}

func (p *GeminiProvider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:                    p.cfg.Model,
		Provider:                p.Name(),
		ContextLength:           p.tokenizer.MaxTokens(),
		MaxOutputTokens:         p.cfg.MaxTokens,
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
	}
}

func (p *GeminiProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Models.Get(ctx, p.cfg.Model, nil)
	latency := time.Since(start)
	if err != nil {
		mapped := p.mapError(err)
		return &llm.HealthStatus{Healthy: false, Latency: latency, Message: mapped.Message}, mapped
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *GeminiProvider) buildRequest(req *llm.ChatRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(providers.ChooseMaxTokens(req, p.cfg.MaxTokens)),
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if t := providers.ChooseTemperature(req, p.cfg.Temperature); t > 0 {
		config.Temperature = genai.Ptr(float32(t))
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(float32(req.TopP))
	}
	if len(req.Stop) > 0 {
		config.StopSequences = req.Stop
	}
	return providers.ChooseModel(req, p.cfg.Model, defaultModel), contents, config
}

func (p *GeminiProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model, contents, config := p.buildRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		p.logger.Warn("completion failed", zap.String("model", model), zap.Error(err))
		return nil, p.mapError(err)
	}

	out := &llm.ChatResponse{
		ID:        resp.ResponseID,
		Provider:  p.Name(),
		Model:     model,
		Content:   resp.Text(),
		Usage:     toUsage(resp.UsageMetadata),
		CreatedAt: time.Now(),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	return out, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model, contents, config := p.buildRequest(req)
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			chunk := llm.StreamChunk{Provider: p.Name(), Model: model}
			if err != nil {
				chunk.Err = p.mapError(err)
			} else {
				chunk.ID = resp.ResponseID
				chunk.Delta = resp.Text()
				if len(resp.Candidates) > 0 {
					chunk.FinishReason = string(resp.Candidates[0].FinishReason)
				}
				if resp.UsageMetadata != nil {
					usage := toUsage(resp.UsageMetadata)
					chunk.Usage = &usage
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func toUsage(m *genai.GenerateContentResponseUsageMetadata) llm.ChatUsage {
	if m == nil {
		return llm.ChatUsage{}
	}
	return llm.ChatUsage{
		PromptTokens:     int(m.PromptTokenCount),
		CompletionTokens: int(m.CandidatesTokenCount),
		TotalTokens:      int(m.TotalTokenCount),
	}
}

func (p *GeminiProvider) mapError(err error) *llm.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Status
		}
		return llm.MapHTTPError(apiErr.Code, msg, p.Name())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{
			Code: types.ErrTimeout, Message: err.Error(),
			HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: p.Name(),
		}
	}
	return llm.UpstreamError(p.Name(), err)
}
