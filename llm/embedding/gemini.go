package embedding

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/types"
)

// GeminiConfig BaseURL 为空时使用 genai 默认端点
type GeminiConfig struct {
	APIKey         string        `json:"api_key" yaml:"api_key"`
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	Model          string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions     int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxInputLength int           `json:"max_input_length,omitempty" yaml:"max_input_length,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{Model: "text-embedding-004", Timeout: 30 * time.Second}
}

const (
	geminiDimension = 768
	geminiMaxBatch  = 100

	geminiTaskRetrievalQuery    = "RETRIEVAL_QUERY"
	geminiTaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// GeminiProvider 通过 genai 的 EmbedContent 执行嵌入.
// 查询与文档分别使用 RETRIEVAL_QUERY 与 RETRIEVAL_DOCUMENT 任务类型.
type GeminiProvider struct {
	meta
	cfg    GeminiConfig
	client *genai.Client
}

// NewGeminiProvider 创建新的 Gemini 嵌入提供者.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding api key is required")
	}
	def := DefaultGeminiConfig()
	cfg.Model = cmp.Or(cfg.Model, def.Model)
	cfg.Timeout = cmp.Or(cfg.Timeout, def.Timeout)
	dim := cmp.Or(cfg.Dimensions, geminiDimension)
	// 2048 token 上限按每 token 约 4 字符估算
	maxInput := cmp.Or(cfg.MaxInputLength, 2048*4)

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
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{
		meta:   newMeta("gemini", cfg.Model, dim, maxInput, geminiMaxBatch),
		cfg:    cfg,
		client: client,
	}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return p.embed(ctx, texts, geminiTaskRetrievalDocument)
}

func (p *GeminiProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.embed(ctx, []string{query}, geminiTaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *GeminiProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return BatchEmbed(ctx, p.Embed, documents, p.MaxBatchSize(), nil)
}

func (p *GeminiProvider) embed(ctx context.Context, texts []string, taskType string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(TruncateText(t, p.MaxInputLength()), genai.RoleUser)
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if p.cfg.Dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(int32(p.cfg.Dimensions))
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return nil, p.mapError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vec := make([]float64, len(e.Values))
		for j, v := range e.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *GeminiProvider) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.MapHTTPError(apiErr.Code, apiErr.Message, p.Name())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{
			Code:       types.ErrTimeout,
			Message:    err.Error(),
			HTTPStatus: http.StatusGatewayTimeout,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	return llm.UpstreamError(p.Name(), err)
}
