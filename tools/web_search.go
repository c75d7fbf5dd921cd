package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// UserAgent 抓取页面时使用的 User-Agent
const UserAgent = "AI-Agent-Base/1.0 (Educational Research Tool)"

const maxResultContent = 2000

// WebSearchConfig web_search 工具配置
type WebSearchConfig struct {
	MaxResults         int     `yaml:"max_results" json:"max_results"`
	CacheResults       bool    `yaml:"cache_results" json:"cache_results"`
	QualityThreshold   float64 `yaml:"quality_threshold" json:"quality_threshold"`
	CacheFreshnessDays int     `yaml:"cache_freshness_days" json:"cache_freshness_days"`
	CachePath          string  `yaml:"cache_path" json:"cache_path"`
	// CacheBackend 结果缓存: file（默认）, redis
	CacheBackend string        `yaml:"cache_backend" json:"cache_backend"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	// Backend 搜索后端: mock, searxng
	Backend    string `yaml:"backend" json:"backend"`
	SearxNGURL string `yaml:"searxng_url" json:"searxng_url"`
	// RateLimit 每秒最多发起的搜索次数，0 表示不限制
	RateLimit        float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst" json:"rate_burst"`
	FetchConcurrency int     `yaml:"fetch_concurrency" json:"fetch_concurrency"`
}

// DefaultWebSearchConfig 返回默认配置
func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		MaxResults:         5,
		CacheResults:       true,
		QualityThreshold:   0.8,
		CacheFreshnessDays: 30,
		CachePath:          "./data/web_cache",
		Timeout:            10 * time.Second,
		Backend:            "mock",
		RateLimit:          2,
		RateBurst:          5,
		FetchConcurrency:   4,
	}
}

// Freshness 缓存有效期
func (c WebSearchConfig) Freshness() time.Duration {
	return time.Duration(c.CacheFreshnessDays) * 24 * time.Hour
}

// SearchResult 单条搜索结果。经过抓取与评分的结果带有 Content 与 QualityScore。
type SearchResult struct {
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Snippet      string    `json:"snippet"`
	Source       string    `json:"source,omitempty"`
	Content      string    `json:"content,omitempty"`
	QualityScore float64   `json:"quality_score,omitempty"`
	FetchedAt    time.Time `json:"fetched_at,omitempty"`
}

// WebSearchTool 搜索网页，抓取并评估内容质量，缓存高质量结果
type WebSearchTool struct {
	cfg     WebSearchConfig
	backend SearchBackend
	cache   ResultCache
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	logger  *zap.Logger
}

// WebSearchOption 配置 WebSearchTool
type WebSearchOption func(*WebSearchTool)

// WithSearchBackend 指定搜索后端
func WithSearchBackend(b SearchBackend) WebSearchOption {
	return func(t *WebSearchTool) { t.backend = b }
}

// WithResultCache 指定结果缓存，默认使用 CachePath 下的文件缓存
func WithResultCache(c ResultCache) WebSearchOption {
	return func(t *WebSearchTool) { t.cache = c }
}

// WithHTTPClient 指定抓取页面使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) WebSearchOption {
	return func(t *WebSearchTool) { t.client = c }
}

// NewWebSearchTool 创建网页搜索工具
func NewWebSearchTool(cfg WebSearchConfig, logger *zap.Logger, opts ...WebSearchOption) (*WebSearchTool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultWebSearchConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.CacheFreshnessDays <= 0 {
		cfg.CacheFreshnessDays = def.CacheFreshnessDays
	}
	if cfg.CachePath == "" {
		cfg.CachePath = def.CachePath
	}
	// 纯数字配置按秒解释
	if cfg.Timeout > 0 && cfg.Timeout < time.Millisecond {
		cfg.Timeout *= time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = def.FetchConcurrency
	}

	t := &WebSearchTool{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(zap.String("component", "web_search")),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		t.client = &http.Client{Timeout: cfg.Timeout}
	}
	if t.backend == nil {
		backend, err := NewSearchBackend(cfg, t.client)
		if err != nil {
			return nil, err
		}
		t.backend = backend
	}
	if t.cache == nil && cfg.CacheResults {
		fc, err := NewFileCache(cfg.CachePath, cfg.Freshness(), t.logger)
		if err != nil {
			return nil, err
		}
		t.cache = fc
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return t, nil
}

func (t *WebSearchTool) Name() string     { return "web_search" }
func (t *WebSearchTool) Category() string { return CategoryWeb }

func (t *WebSearchTool) Description() string {
	return "Searches the web for information and caches high-quality results. " +
		"Automatically filters and persists relevant content based on quality metrics. " +
		"Example: 'search for python pytest tutorials' or 'find latest news about AI'"
}

func (t *WebSearchTool) UsageExamples() []string {
	return []string{
		"search for python pytest tutorials",
		"find latest news about artificial intelligence",
		"look up React hooks documentation",
		"search machine learning best practices",
		"find information about climate change",
	}
}

type webSearchInput struct {
	Input string `json:"input" jsonschema:"description=Search query"`
}

func (t *WebSearchTool) ParameterSchema() map[string]any {
	return GenerateSchema[webSearchInput]()
}

func (t *WebSearchTool) Validate(input string) bool { return NonEmpty(input) }

// Backend 返回当前搜索后端
func (t *WebSearchTool) Backend() SearchBackend { return t.backend }

var searchPrefixes = []string{
	"search for", "search", "find", "look up", "look for",
	"google", "bing", "web search", "search web",
}

// ParseSearchQuery 去掉 "search for"、"find" 等常见前缀
func ParseSearchQuery(input string) string {
	query := strings.TrimSpace(input)
	lower := strings.ToLower(query)
	for _, p := range searchPrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		// 前缀必须是完整单词
		if len(lower) > len(p) && lower[len(p)] != ' ' {
			continue
		}
		return strings.TrimSpace(query[len(p):])
	}
	return query
}

func (t *WebSearchTool) Execute(ctx context.Context, input string, _ map[string]any) (*Result, error) {
	query := ParseSearchQuery(input)
	if query == "" {
		return Fail("Please provide a search query."), nil
	}

	if t.cfg.CacheResults && t.cache != nil {
		if cached, ok := t.cache.Get(ctx, query); ok {
			return Succeed(FormatSearchResults(cached), map[string]any{
				"query":         query,
				"source":        "cache",
				"results_count": len(cached),
				"cached":        true,
			}), nil
		}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	hits, err := t.backend.Search(ctx, query, t.cfg.MaxResults)
	if err != nil {
		t.logger.Warn("search backend failed", zap.String("backend", t.backend.Name()), zap.Error(err))
	}
	if len(hits) == 0 {
		return Fail("No search results found or search service unavailable."), nil
	}

	processed := t.process(ctx, query, hits)
	if len(processed) > 0 && t.cfg.CacheResults && t.cache != nil {
		if err := t.cache.Put(ctx, query, processed); err != nil {
			t.logger.Warn("cache search results failed", zap.Error(err))
		}
	}

	return Succeed(FormatSearchResults(processed), map[string]any{
		"query":         query,
		"source":        "web_search",
		"results_count": len(processed),
		"cached":        false,
	}), nil
}

// process 并发抓取结果页面并按质量阈值过滤，保持后端返回顺序
func (t *WebSearchTool) process(ctx context.Context, query string, hits []SearchResult) []SearchResult {
	scored := make([]*SearchResult, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.FetchConcurrency)
	for i, hit := range hits {
		g.Go(func() error {
			content, err := t.fetch(gctx, hit.URL)
			if err != nil {
				t.logger.Debug("fetch failed", zap.String("url", hit.URL), zap.Error(err))
				return nil
			}
			if content == "" {
				return nil
			}
			score := AssessQuality(query, hit.Title, hit.URL, content)
			if score < t.cfg.QualityThreshold {
				return nil
			}
			r := hit
			r.Content = clipRunes(content, maxResultContent)
			r.QualityScore = score
			r.FetchedAt = t.now()
			scored[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	out := make([]SearchResult, 0, len(hits))
	for _, r := range scored {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// CleanupCache 删除早于 maxAge 的缓存项，maxAge<=0 时使用缓存有效期
func (t *WebSearchTool) CleanupCache(ctx context.Context, maxAge time.Duration) (int, error) {
	if t.cache == nil {
		return 0, nil
	}
	if maxAge <= 0 {
		maxAge = t.cfg.Freshness()
	}
	return t.cache.Cleanup(ctx, maxAge)
}

// FormatSearchResults 渲染结果列表
func FormatSearchResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No search results found."
	}
	parts := []string{"Search Results:\n"}
	for i, r := range results {
		parts = append(parts,
			fmt.Sprintf("%d. **%s**", i+1, r.Title),
			fmt.Sprintf("   URL: %s", r.URL),
			fmt.Sprintf("   %s", r.Snippet),
		)
		if r.QualityScore > 0 {
			parts = append(parts, fmt.Sprintf("   Quality Score: %.2f", r.QualityScore))
		}
		if !r.FetchedAt.IsZero() {
			parts = append(parts, fmt.Sprintf("   Fetched: %s", r.FetchedAt.Format("2006-01-02")))
		}
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
