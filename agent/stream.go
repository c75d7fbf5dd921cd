package agent

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/llm"
)

// EventType 流式事件类型
type EventType string

const (
	EventSources EventType = "sources"
	EventDelta   EventType = "delta"
	EventDone    EventType = "done"
)

// StreamEvent 流式回复中的一个事件。顺序固定为 sources、若干 delta、done。
type StreamEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Delta     string    `json:"delta,omitempty"`
	Sources   []Source  `json:"sources,omitempty"`
	Response  *Response `json:"response,omitempty"`
}

// ProcessQueryStream 与 ProcessQuery 相同的管线，但逐块输出 LLM 回复。
// 通道在 done 事件后关闭；ctx 取消时提前关闭且不保存本轮对话。
func (a *Agent) ProcessQueryStream(ctx context.Context, q Query) (<-chan StreamEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.SessionID == "" {
		q.SessionID = a.NewSessionID()
	}

	ctx, span := a.tracer.Start(ctx, "agent.process_query_stream", trace.WithAttributes(
		attribute.String("agent.type", a.agentType),
		attribute.String("agent.session_id", q.SessionID),
	))
	start := a.now()
	t := a.prepare(ctx, q)

	out := make(chan StreamEvent, 8)
	go func() {
		defer close(out)
		defer span.End()

		send := func(ev StreamEvent) bool {
			ev.SessionID = t.sessionID
			select {
			case <-ctx.Done():
				return false
			case out <- ev:
				return true
			}
		}

		if !send(StreamEvent{Type: EventSources, Sources: t.retrieved.Sources}) {
			return
		}

		resp, llmErr := a.streamCompletion(ctx, t, send)
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, ctx.Err().Error())
			return
		}
		if llmErr != nil {
			span.RecordError(llmErr)
		}

		a.saveTurn(ctx, t, resp.Content, resp.Usage)
		final := a.buildResponse(t, resp, llmErr)
		span.SetAttributes(attribute.Int("agent.context_sources", len(final.Sources)))
		if a.observer != nil {
			a.observer(a.agentType, a.now().Sub(start), llmErr != nil && resp.Model == FallbackModel)
		}
		send(StreamEvent{Type: EventDone, Response: final})
	}()
	return out, nil
}

// streamCompletion 转发增量内容并汇总为完整回复。
// 没有产生任何内容就失败时回退到 FallbackContent。
func (a *Agent) streamCompletion(ctx context.Context, t *turn, send func(StreamEvent) bool) (*llm.ChatResponse, error) {
	fallback := func(err error) (*llm.ChatResponse, error) {
		a.logger.Error("llm streaming failed", zap.String("session_id", t.sessionID), zap.Error(err))
		send(StreamEvent{Type: EventDelta, Delta: FallbackContent})
		return &llm.ChatResponse{Model: FallbackModel, Content: FallbackContent}, err
	}

	chunks, err := a.deps.LLM.Stream(ctx, t.request)
	if err != nil {
		return fallback(err)
	}

	resp := &llm.ChatResponse{}
	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			if sb.Len() == 0 {
				return fallback(chunk.Err)
			}
			resp.Content = sb.String()
			return resp, chunk.Err
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		if chunk.Delta == "" {
			continue
		}
		sb.WriteString(chunk.Delta)
		if !send(StreamEvent{Type: EventDelta, Delta: chunk.Delta}) {
			break
		}
	}
	resp.Content = sb.String()
	return resp, nil
}
