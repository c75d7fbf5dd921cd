package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 1}, []float64{-1, -1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, out[0], 1e-9)
	assert.InDelta(t, 0.8, out[1], 1e-9)

	zero := []float64{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "hello", TruncateText("hello", 10))
	assert.Equal(t, "hel", TruncateText("hello", 3))
	assert.Equal(t, "你好", TruncateText("你好世界", 2))
	long := strings.Repeat("a", DefaultMaxInputLength+10)
	assert.Len(t, TruncateText(long, 0), DefaultMaxInputLength)
}

func TestBatchEmbed(t *testing.T) {
	var batches []int
	fn := func(ctx context.Context, texts []string) ([][]float64, error) {
		batches = append(batches, len(texts))
		out := make([][]float64, len(texts))
		for i, s := range texts {
			out[i] = []float64{float64(len(s))}
		}
		return out, nil
	}

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	var progress [][2]int
	vecs, err := BatchEmbed(context.Background(), fn, texts, 2, func(b, total int) {
		progress = append(progress, [2]int{b, total})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, batches)
	assert.Len(t, vecs, 5)
	assert.Equal(t, 5.0, vecs[4][0])
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
}

func TestBatchEmbed_Error(t *testing.T) {
	boom := errors.New("boom")
	fn := func(ctx context.Context, texts []string) ([][]float64, error) { return nil, boom }
	_, err := BatchEmbed(context.Background(), fn, []string{"a"}, 0, nil)
	assert.ErrorIs(t, err, boom)
}

// --- hash ---

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(HashConfig{Dimensions: 64})
	assert.Equal(t, "hash", p.Name())
	assert.Equal(t, 64, p.Dimension())

	ctx := context.Background()
	a, err := p.EmbedQuery(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "The quick brown fox!")
	require.NoError(t, err)
	c, err := p.EmbedQuery(ctx, "database migrations with gorm")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))

	var norm float64
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	empty, err := p.EmbedQuery(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, CosineSimilarity(empty, a))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, tokenize("Hello, world! 42"))
	assert.Equal(t, []string{"go", "语", "言"}, tokenize("Go语言"))
}

// --- openai ---

func TestOpenAIProvider_Embed(t *testing.T) {
	var got openAIEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		// 乱序返回, 由 provider 按 index 排序
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}],"model":"text-embedding-ada-002"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	assert.Equal(t, 1536, p.Dimension())
	assert.Equal(t, "openai", p.Name())

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "text-embedding-ada-002", got.Model)
	assert.Zero(t, got.Dimensions)
	assert.Equal(t, []string{"a", "b"}, got.Input)
}

func TestOpenAIProvider_Dimensions(t *testing.T) {
	var got openAIEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 256})
	assert.Equal(t, 256, p.Dimension())
	_, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 256, got.Dimensions)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode types.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, types.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited},
		{"server error", http.StatusInternalServerError, types.ErrUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
			_, err := p.Embed(context.Background(), []string{"x"})
			require.Error(t, err)
			llmErr, ok := llm.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, "nope (type: test)", llmErr.Message)
		})
	}
}

func TestOpenAIProvider_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)

	vecs, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// --- gemini ---

func TestGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestGeminiProvider_Embed(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/text-embedding-004:batchEmbedContents"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5,0.5]}]}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())
	assert.Equal(t, "text-embedding-004", p.ModelInfo().Name)

	vec, err := p.EmbedQuery(context.Background(), "what is go")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, vec)

	requests := body["requests"].([]any)
	require.Len(t, requests, 1)
	assert.Equal(t, "RETRIEVAL_QUERY", requests[0].(map[string]any)["taskType"])
}
