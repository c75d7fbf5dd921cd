// Package mock 提供脚本化的 LLM Provider，用于测试与离线运行 (llm.type: mock)。
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
)

const (
	defaultModel    = "mock-model"
	defaultResponse = "This is a mock response."
)

// MockProvider 按顺序循环返回预设回复。Token 数按空白分词计。
type MockProvider struct {
	mu        sync.Mutex
	cfg       providers.MockConfig
	callCount int
	requests  []*llm.ChatRequest
	err       error
}

// NewMockProvider 创建脚本化 Provider，未配置回复时使用默认回复。
func NewMockProvider(cfg providers.MockConfig) *MockProvider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if len(cfg.Responses) == 0 {
		cfg.Responses = []string{defaultResponse}
	}
	return &MockProvider{cfg: cfg}
}

// WithError 让后续所有调用返回 err，传 nil 恢复正常。
func (p *MockProvider) WithError(err error) *MockProvider {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	return p
}

// CallCount 返回 Completion 与 Stream 的累计调用次数。
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// Requests 返回收到的请求副本。
func (p *MockProvider) Requests() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) SupportsStreaming() bool { return true }

func (p *MockProvider) SupportsFunctionCalling() bool { return false }

func (p *MockProvider) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func (p *MockProvider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:              p.cfg.Model,
		Provider:          p.Name(),
		ContextLength:     4096,
		MaxOutputTokens:   2000,
		SupportsStreaming: true,
	}
}

func (p *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Message: err.Error()}, err
	}
	return &llm.HealthStatus{Healthy: true}, nil
}

// next 记录请求并取出下一条回复。
func (p *MockProvider) next(req *llm.ChatRequest) (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", 0, p.err
	}
	idx := p.callCount
	resp := p.cfg.Responses[idx%len(p.cfg.Responses)]
	p.callCount++
	return resp, idx, nil
}

func (p *MockProvider) wait(ctx context.Context) error {
	if p.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *MockProvider) usage(req *llm.ChatRequest, content string) llm.ChatUsage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += p.CountTokens(m.Content)
	}
	completion := p.CountTokens(content)
	return llm.ChatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

func (p *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	content, idx, err := p.next(req)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		ID:           fmt.Sprintf("mock-%d", idx+1),
		Provider:     p.Name(),
		Model:        p.cfg.Model,
		Content:      content,
		FinishReason: "stop",
		Usage:        p.usage(req, content),
		CreatedAt:    time.Now(),
	}, nil
}

// Stream 逐词输出回复，每个词后带一个空格。
func (p *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	content, idx, err := p.next(req)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("mock-%d", idx+1)
	words := strings.Fields(content)
	usage := p.usage(req, content)

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for i, w := range words {
			chunk := llm.StreamChunk{ID: id, Provider: p.Name(), Model: p.cfg.Model, Delta: w + " "}
			if i == len(words)-1 {
				chunk.FinishReason = "stop"
				chunk.Usage = &usage
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}
