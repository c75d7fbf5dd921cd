package embedding

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/agentbase/llm"
)

// OpenAIConfig 适用于任何兼容 /v1/embeddings 的端点
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	// Dimensions 仅 text-embedding-3-* 支持
	Dimensions     int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxInputLength int           `json:"max_input_length,omitempty" yaml:"max_input_length,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "text-embedding-ada-002",
		Timeout: 30 * time.Second,
	}
}

const openAIMaxBatch = 2048

type OpenAIProvider struct {
	meta
	cfg      OpenAIConfig
	endpoint string
	client   *http.Client
}

// NewOpenAIProvider BaseURL 末尾的 /v1 可有可无
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	def := DefaultOpenAIConfig()
	cfg.BaseURL = cmp.Or(cfg.BaseURL, def.BaseURL)
	cfg.Model = cmp.Or(cfg.Model, def.Model)
	cfg.Timeout = cmp.Or(cfg.Timeout, def.Timeout)

	dim := cfg.Dimensions
	if dim == 0 {
		dim = 1536
		if strings.HasPrefix(cfg.Model, "text-embedding-3-large") {
			dim = 3072
		}
	}
	base := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	return &OpenAIProvider{
		meta:     newMeta("openai", cfg.Model, dim, cfg.MaxInputLength, openAIMaxBatch),
		cfg:      cfg,
		endpoint: base + "/v1/embeddings",
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// Embed 每条输入先按 MaxInputLength 截断；响应按 index 重排
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	req := openAIEmbedRequest{Model: p.cfg.Model, Input: make([]string, len(texts))}
	for i, t := range texts {
		req.Input[i] = TruncateText(t, p.MaxInputLength())
	}
	// ada-002 不接受 dimensions
	if p.cfg.Dimensions > 0 && strings.HasPrefix(p.cfg.Model, "text-embedding-3") {
		req.Dimensions = p.cfg.Dimensions
	}

	data, err := p.post(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(data))
	}
	slices.SortFunc(data, func(a, b openAIEmbedding) int { return cmp.Compare(a.Index, b.Index) })
	out := make([][]float64, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (p *OpenAIProvider) post(ctx context.Context, body openAIEmbedRequest) ([]openAIEmbedding, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.UpstreamError(p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, llm.MapHTTPError(resp.StatusCode, llm.ReadErrorMessage(resp.Body), p.Name())
	}

	var out struct {
		Data []openAIEmbedding `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	return out.Data, nil
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return embedOne(ctx, query, p.Embed)
}

func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return BatchEmbed(ctx, p.Embed, documents, p.MaxBatchSize(), nil)
}
