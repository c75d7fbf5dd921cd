package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
	"github.com/BaSui01/agentbase/llm/tokenizer"
	"github.com/BaSui01/agentbase/types"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 2000
)

// ClaudeProvider 通过官方 SDK 调用 Anthropic Messages API。
// system 消息合并为顶层 system 字段，其余消息按顺序映射为 user/assistant。
type ClaudeProvider struct {
	cfg       providers.ClaudeConfig
	client    anthropic.Client
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewClaudeProvider 创建 Claude Provider
func NewClaudeProvider(cfg providers.ClaudeConfig, logger *zap.Logger) *ClaudeProvider {
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

	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(2),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ClaudeProvider{
		cfg:       cfg,
		client:    anthropic.NewClient(opts...),
		tokenizer: tokenizer.NewEstimatorTokenizer(cfg.Model, providers.ContextLength(cfg.Model, 200000)),
		logger:    logger.With(zap.String("component", "llm_anthropic")),
	}
}

func (p *ClaudeProvider) Name() string { return "anthropic" }

func (p *ClaudeProvider) SupportsStreaming() bool { return true }

func (p *ClaudeProvider) SupportsFunctionCalling() bool { return true }

// CountTokens 本地估算；Anthropic 的精确计数需要一次网络往返。
func (p *ClaudeProvider) CountTokens(text string) int {
	return tokenizer.Count(p.tokenizer, text)
}

func (p *ClaudeProvider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:                    p.cfg.Model,
		Provider:                p.Name(),
		ContextLength:           p.tokenizer.MaxTokens(),
		MaxOutputTokens:         p.cfg.MaxTokens,
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
	}
}

func (p *ClaudeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Models.Get(ctx, p.cfg.Model, anthropic.ModelGetParams{})
	latency := time.Since(start)
	if err != nil {
		mapped := p.mapError(err)
		return &llm.HealthStatus{Healthy: false, Latency: latency, Message: mapped.Message}, mapped
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *ClaudeProvider) buildParams(req *llm.ChatRequest) anthropic.MessageNewParams {
	var system []string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(providers.ChooseModel(req, p.cfg.Model, defaultModel)),
		MaxTokens: int64(providers.ChooseMaxTokens(req, p.cfg.MaxTokens)),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if t := providers.ChooseTemperature(req, p.cfg.Temperature); t > 0 {
		params.Temperature = anthropic.Float(t)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	return params
}

func (p *ClaudeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params := p.buildParams(req)
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Warn("completion failed", zap.String("model", string(params.Model)), zap.Error(err))
		return nil, p.mapError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}

	return &llm.ChatResponse{
		ID:           msg.ID,
		Provider:     p.Name(),
		Model:        string(msg.Model),
		Content:      sb.String(),
		FinishReason: string(msg.StopReason),
		Usage: llm.ChatUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		CreatedAt: time.Now(),
	}, nil
}

func (p *ClaudeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(c llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- c:
				return true
			}
		}

		var id, model string
		var inputTokens int64
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				id = ev.Message.ID
				model = string(ev.Message.Model)
				inputTokens = ev.Message.Usage.InputTokens
			case anthropic.ContentBlockDeltaEvent:
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
					if !send(llm.StreamChunk{ID: id, Provider: p.Name(), Model: model, Delta: d.Text}) {
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				usage := &llm.ChatUsage{
					PromptTokens:     int(inputTokens),
					CompletionTokens: int(ev.Usage.OutputTokens),
					TotalTokens:      int(inputTokens + ev.Usage.OutputTokens),
				}
				if !send(llm.StreamChunk{
					ID: id, Provider: p.Name(), Model: model,
					FinishReason: string(ev.Delta.StopReason),
					Usage:        usage,
				}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(llm.StreamChunk{Err: p.mapError(err)})
		}
	}()
	return ch, nil
}

func (p *ClaudeProvider) mapError(err error) *llm.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Error()
		if raw := apiErr.RawJSON(); raw != "" {
			msg = raw
		}
		return llm.MapHTTPError(apiErr.StatusCode, msg, p.Name())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{
			Code: types.ErrTimeout, Message: err.Error(),
			HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: p.Name(),
		}
	}
	return llm.UpstreamError(p.Name(), err)
}
