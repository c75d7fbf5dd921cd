package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/agentbase/llm"
)

// SearchBackend 搜索服务
type SearchBackend interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// NewSearchBackend 按配置创建搜索后端
func NewSearchBackend(cfg WebSearchConfig, client *http.Client) (SearchBackend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "mock":
		return MockSearchBackend{}, nil
	case "searxng":
		if cfg.SearxNGURL == "" {
			return nil, fmt.Errorf("searxng backend requires searxng_url")
		}
		return NewSearxNGBackend(cfg.SearxNGURL, client), nil
	}
	return nil, fmt.Errorf("unknown search backend: %s", cfg.Backend)
}

// MockSearchBackend 返回固定的示例结果，不访问网络搜索服务
type MockSearchBackend struct{}

func (MockSearchBackend) Name() string { return "mock" }

func (MockSearchBackend) Search(_ context.Context, query string, maxResults int) ([]SearchResult, error) {
	results := []SearchResult{
		{
			Title:   fmt.Sprintf("Search Result 1 for '%s'", query),
			URL:     "https://example.com/result1",
			Snippet: fmt.Sprintf("This is a mock search result for the query '%s'. In a real implementation, this would come from a search API.", query),
			Source:  "example.com",
		},
		{
			Title:   fmt.Sprintf("Search Result 2 for '%s'", query),
			URL:     "https://example.org/result2",
			Snippet: fmt.Sprintf("Another mock result discussing '%s' with relevant information and context.", query),
			Source:  "example.org",
		},
	}
	if maxResults > 0 && maxResults < len(results) {
		results = results[:maxResults]
	}
	return results, nil
}

// SearxNGBackend 调用 SearxNG 实例的 JSON 接口
type SearxNGBackend struct {
	baseURL string
	client  *http.Client
}

// NewSearxNGBackend 创建 SearxNG 后端
func NewSearxNGBackend(baseURL string, client *http.Client) *SearxNGBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &SearxNGBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *SearxNGBackend) Name() string { return "searxng" }

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Engine  string `json:"engine"`
	} `json:"results"`
}

func (b *SearxNGBackend) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, llm.UpstreamError("searxng", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, llm.MapHTTPError(resp.StatusCode, llm.ReadErrorMessage(resp.Body), "searxng")
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	results := make([]SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		if r.URL == "" {
			continue
		}
		source := r.Engine
		if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
			source = u.Host
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Source:  source,
		})
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
