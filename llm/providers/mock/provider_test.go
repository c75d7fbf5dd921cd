package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_CyclesResponses(t *testing.T) {
	p := NewMockProvider(providers.MockConfig{Responses: []string{"first", "second"}})
	req := &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("hi there")}}

	var got []string
	for i := 0; i < 3; i++ {
		resp, err := p.Completion(context.Background(), req)
		require.NoError(t, err)
		got = append(got, resp.Content)
	}
	assert.Equal(t, []string{"first", "second", "first"}, got)
	assert.Equal(t, 3, p.CallCount())
	assert.Len(t, p.Requests(), 3)
}

func TestMockProvider_Defaults(t *testing.T) {
	p := NewMockProvider(providers.MockConfig{})
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("one two")},
	})
	require.NoError(t, err)
	assert.Equal(t, "This is a mock response.", resp.Content)
	assert.Equal(t, "mock-model", resp.Model)
	assert.Equal(t, 2, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 3, p.CountTokens(" a b  c "))
}

func TestMockProvider_Stream(t *testing.T) {
	p := NewMockProvider(providers.MockConfig{Responses: []string{"hello streaming world"}})
	ch, err := p.Stream(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)

	resp, err := llm.CollectStream(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "hello streaming world ", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
}

func TestMockProvider_Error(t *testing.T) {
	boom := errors.New("boom")
	p := NewMockProvider(providers.MockConfig{}).WithError(boom)

	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	assert.ErrorIs(t, err, boom)

	status, err := p.HealthCheck(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, status.Healthy)

	p.WithError(nil)
	_, err = p.Completion(context.Background(), &llm.ChatRequest{})
	assert.NoError(t, err)
}

func TestMockProvider_LatencyRespectsContext(t *testing.T) {
	p := NewMockProvider(providers.MockConfig{Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Completion(ctx, &llm.ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.CallCount())
}
