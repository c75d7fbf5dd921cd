package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestObserver 每次 Completion / Stream 结束后回调。status 为 success 或 error。
type RequestObserver func(provider, model, status string, duration time.Duration, usage ChatUsage)

// InstrumentedProvider 为 Provider 增加链路追踪与请求回调，其余方法直接透传。
type InstrumentedProvider struct {
	Provider
	observer RequestObserver
	tracer   trace.Tracer
}

// Instrument 包装 p。observer 可为 nil，此时只记录 span。
func Instrument(p Provider, observer RequestObserver) *InstrumentedProvider {
	return &InstrumentedProvider{
		Provider: p,
		observer: observer,
		tracer:   otel.Tracer("agentbase/llm"),
	}
}

// Unwrap 返回被包装的 Provider
func (p *InstrumentedProvider) Unwrap() Provider { return p.Provider }

func (p *InstrumentedProvider) model(req *ChatRequest) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return p.ModelInfo().Name
}

func (p *InstrumentedProvider) observe(model string, start time.Time, err error, usage ChatUsage) {
	if p.observer == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.observer(p.Name(), model, status, time.Since(start), usage)
}

func (p *InstrumentedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := p.model(req)
	ctx, span := p.tracer.Start(ctx, "llm.completion", trace.WithAttributes(
		attribute.String("llm.provider", p.Name()),
		attribute.String("llm.model", model),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)
	var usage ChatUsage
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		usage = resp.Usage
		span.SetAttributes(attribute.Int("llm.total_tokens", usage.TotalTokens))
	}
	p.observe(model, start, err, usage)
	return resp, err
}

func (p *InstrumentedProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := p.model(req)
	ctx, span := p.tracer.Start(ctx, "llm.stream", trace.WithAttributes(
		attribute.String("llm.provider", p.Name()),
		attribute.String("llm.model", model),
	))

	start := time.Now()
	in, err := p.Provider.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		p.observe(model, start, err, ChatUsage{})
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer span.End()
		var usage ChatUsage
		var streamErr error
		for chunk := range in {
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				span.RecordError(chunk.Err)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// 排空上游，避免其发送方阻塞
				for range in {
				}
				p.observe(model, start, ctx.Err(), usage)
				return
			}
		}
		p.observe(model, start, streamErr, usage)
	}()
	return out, nil
}
