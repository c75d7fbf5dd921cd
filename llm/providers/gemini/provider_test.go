package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/providers"
	"github.com/BaSui01/agentbase/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewGeminiProvider(context.Background(), providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "test-key",
			BaseURL: srv.URL + "/",
			Model:   "gemini-1.5-flash",
		},
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), providers.GeminiConfig{}, nil)
	assert.Error(t, err)
}

func TestGeminiProvider_Basics(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, "gemini", p.Name())
	assert.True(t, p.SupportsStreaming())
	info := p.ModelInfo()
	assert.Equal(t, "gemini-1.5-flash", info.Name)
	assert.Equal(t, 1048576, info.ContextLength)
	assert.Equal(t, 2, p.CountTokens("abcdefgh"))
}

func TestGeminiProvider_Completion(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-1.5-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hi from Gemini"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 6, "candidatesTokenCount": 4, "totalTokenCount": 10},
			"modelVersion": "gemini-1.5-flash-002",
			"responseId": "resp-1"
		}`))
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			llm.SystemMessage("be kind"),
			llm.UserMessage("hello"),
			llm.AssistantMessage("hi"),
			llm.UserMessage("again"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi from Gemini", resp.Content)
	assert.Equal(t, "gemini-1.5-flash-002", resp.Model)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, "resp-1", resp.ID)

	contents := body["contents"].([]any)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.NotNil(t, body["systemInstruction"])
}

func TestGeminiProvider_CompletionError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("hello")},
	})
	require.Error(t, err)
	llmErr, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrForbidden, llmErr.Code)
	assert.Equal(t, "API key not valid", llmErr.Message)
}

func TestGeminiProvider_Stream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, data := range []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":2,"totalTokenCount":4}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	})

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("hello")},
	})
	require.NoError(t, err)

	resp, err := llm.CollectStream(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}
