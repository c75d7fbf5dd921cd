package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
	"github.com/BaSui01/agentbase/llm/tokenizer"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://api.openai.com"
	defaultModel     = "gpt-3.5-turbo"
	chatEndpoint     = "/v1/chat/completions"
	modelsEndpoint   = "/v1/models"
	defaultMaxTokens = 2000
)

// Provider talks to an OpenAI-compatible chat completions API.
type Provider struct {
	cfg       providers.OpenAIConfig
	client    *http.Client
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewProvider creates a provider. Zero-valued config fields take OpenAI defaults.
func NewProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		tokenizer: tokenizer.ForModel(cfg.Model),
		logger:    logger.With(zap.String("component", "llm_openai")),
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) SupportsStreaming() bool { return true }

func (p *Provider) SupportsFunctionCalling() bool { return true }

func (p *Provider) CountTokens(text string) int {
	return tokenizer.Count(p.tokenizer, text)
}

func (p *Provider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:                    p.cfg.Model,
		Provider:                p.Name(),
		ContextLength:           providers.ContextLength(p.cfg.Model, 8192),
		MaxOutputTokens:         p.cfg.MaxTokens,
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
	}
}

func (p *Provider) endpoint(path string) string {
	base := strings.TrimRight(p.cfg.BaseURL, "/")
	// base_url 已包含 /v1 时避免重复
	if strings.HasSuffix(base, "/v1") {
		path = strings.TrimPrefix(path, "/v1")
	}
	return base + path
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
	req.Header.Set("Content-Type", "application/json")
}

// HealthCheck lists models to verify the endpoint and credentials.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(modelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency, Message: err.Error()}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := llm.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency, Message: msg},
			llm.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) chatRequest {
	body := chatRequest{
		Model:       providers.ChooseModel(req, p.cfg.Model, defaultModel),
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   providers.ChooseMaxTokens(req, p.cfg.MaxTokens),
		Temperature: providers.ChooseTemperature(req, p.cfg.Temperature),
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if stream {
		body.Stream = true
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return body
}

func (p *Provider) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(chatEndpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.UpstreamError(p.Name(), err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := llm.ReadErrorMessage(resp.Body)
		return nil, llm.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildBody(req, false)
	start := time.Now()

	resp, err := p.post(ctx, body)
	if err != nil {
		p.logger.Warn("completion failed", zap.String("model", body.Model), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, llm.UpstreamError(p.Name(), err)
	}

	result := &llm.ChatResponse{ID: wire.ID, Provider: p.Name(), Model: wire.Model, CreatedAt: time.Now()}
	if len(wire.Choices) > 0 {
		result.Content = wire.Choices[0].Message.Content
		result.FinishReason = wire.Choices[0].FinishReason
	}
	if u := wire.Usage.toLLM(); u != nil {
		result.Usage = *u
	}
	if result.Model == "" {
		result.Model = body.Model
	}
	if wire.Created != 0 {
		result.CreatedAt = time.Unix(wire.Created, 0)
	}

	p.logger.Debug("completion done",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return result, nil
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, p.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// StreamSSE parses an OpenAI-style SSE body into StreamChunks.
// The channel is closed on [DONE], EOF, error or context cancellation.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		send := func(c llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- c:
				return true
			}
		}

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					send(llm.StreamChunk{Err: llm.UpstreamError(providerName, err)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wire chatResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				send(llm.StreamChunk{Err: llm.UpstreamError(providerName, err)})
				return
			}

			chunk := llm.StreamChunk{ID: wire.ID, Provider: providerName, Model: wire.Model, Usage: wire.Usage.toLLM()}
			if len(wire.Choices) > 0 {
				chunk.FinishReason = wire.Choices[0].FinishReason
				if d := wire.Choices[0].Delta; d != nil {
					chunk.Delta = d.Content
				}
			}
			if chunk.Delta == "" && chunk.FinishReason == "" && chunk.Usage == nil {
				continue
			}
			if !send(chunk) {
				return
			}
		}
	}()
	return ch
}
