package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/internal/cache"
)

const testPage = `<html><head><title>Go testing</title><style>body{}</style></head>
<body><h1>Introduction to Go testing</h1>
<p>Go testing is built into the toolchain.</p>
<script>var x = 1;</script>
<ul><li>1. table tests</li><li>2. subtests</li></ul>
<p>Summary: use go testing.</p></body></html>`

type staticBackend struct {
	results []SearchResult
	calls   atomic.Int32
}

func (b *staticBackend) Name() string { return "static" }

func (b *staticBackend) Search(_ context.Context, _ string, _ int) ([]SearchResult, error) {
	b.calls.Add(1)
	return b.results, nil
}

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, testPage)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "go   testing\n\n plain text ")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText(strings.NewReader(testPage))
	require.NoError(t, err)
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "body{}")
	assert.Equal(t, "Go testing\nIntroduction to Go testing\nGo testing is built into the toolchain.\n"+
		"1. table tests\n2. subtests\nSummary: use go testing.", text)
}

func TestParseSearchQuery(t *testing.T) {
	assert.Equal(t, "python pytest tutorials", ParseSearchQuery("search for python pytest tutorials"))
	assert.Equal(t, "latest news", ParseSearchQuery("Find latest news"))
	assert.Equal(t, "React hooks", ParseSearchQuery("look up React hooks"))
	assert.Equal(t, "findings on mars", ParseSearchQuery("findings on mars"))
	assert.Equal(t, "", ParseSearchQuery("search"))
}

func TestAssessQuality(t *testing.T) {
	content := strings.Repeat("go testing guide ", 100) + "\nIntroduction\n1. a\n2. b\n"
	score := AssessQuality("go testing", "Go testing", "https://en.wikipedia.org/wiki/Go", content)
	assert.InDelta(t, 0.4+0.2+0.18+0.2, score, 1e-9)

	low := AssessQuality("quantum", "unrelated", "https://example.com", "short")
	assert.Less(t, low, 0.2)

	assert.Equal(t, 0.5, DomainAuthority("example.com"))
	assert.Equal(t, 0.8, DomainAuthority("cs.stanford.edu"))
}

func TestWebSearchTool_FetchFilterAndCache(t *testing.T) {
	pages := newPageServer(t)
	backend := &staticBackend{results: []SearchResult{
		{Title: "Go testing", URL: pages.URL + "/page", Snippet: "html page"},
		{Title: "Missing", URL: pages.URL + "/missing", Snippet: "404"},
		{Title: "Go testing plain", URL: pages.URL + "/plain", Snippet: "text page"},
	}}

	cfg := DefaultWebSearchConfig()
	cfg.QualityThreshold = 0
	cfg.CachePath = t.TempDir()
	cfg.RateLimit = 0
	tool, err := NewWebSearchTool(cfg, zap.NewNop(), WithSearchBackend(backend))
	require.NoError(t, err)

	ctx := context.Background()
	res, err := tool.Execute(ctx, "search for go testing", nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "go testing", res.Metadata["query"])
	assert.Equal(t, "web_search", res.Metadata["source"])
	assert.Equal(t, 2, res.Metadata["results_count"])
	assert.Contains(t, res.Content, "1. **Go testing**")
	assert.Contains(t, res.Content, "2. **Go testing plain**")
	assert.Contains(t, res.Content, "Quality Score:")

	res, err = tool.Execute(ctx, "Go Testing", nil)
	require.NoError(t, err)
	assert.Equal(t, "cache", res.Metadata["source"])
	assert.Equal(t, true, res.Metadata["cached"])
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestWebSearchTool_QualityThreshold(t *testing.T) {
	pages := newPageServer(t)
	backend := &staticBackend{results: []SearchResult{
		{Title: "Plain", URL: pages.URL + "/plain"},
	}}
	cfg := DefaultWebSearchConfig()
	cfg.CacheResults = false
	cfg.QualityThreshold = 0.99
	tool, err := NewWebSearchTool(cfg, zap.NewNop(), WithSearchBackend(backend))
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), "quantum chemistry", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Metadata["results_count"])
	assert.Equal(t, "No search results found.", res.Content)
}

func TestWebSearchTool_NoResults(t *testing.T) {
	cfg := DefaultWebSearchConfig()
	cfg.CacheResults = false
	tool, err := NewWebSearchTool(cfg, zap.NewNop(), WithSearchBackend(&staticBackend{}))
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "No search results found or search service unavailable.", res.Error)

	res, err = tool.Execute(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "Please provide a search query.", res.Error)
}

func TestSearxNGBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Go", "url": "https://go.dev/", "content": "The Go language", "engine": "ddg"},
				{"title": "No URL", "url": ""},
				{"title": "Wiki", "url": "https://en.wikipedia.org/wiki/Go", "content": "wiki", "engine": "wp"},
				{"title": "Third", "url": "https://example.com/3"},
			},
		})
	}))
	defer srv.Close()

	b := NewSearxNGBackend(srv.URL+"/", srv.Client())
	results, err := b.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{Title: "Go", URL: "https://go.dev/", Snippet: "The Go language", Source: "go.dev"}, results[0])
	assert.Equal(t, "en.wikipedia.org", results[1].Source)
}

func TestSearxNGBackend_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewSearxNGBackend(srv.URL, srv.Client()).Search(context.Background(), "q", 5)
	require.Error(t, err)
}

func TestNewSearchBackend(t *testing.T) {
	cfg := DefaultWebSearchConfig()
	b, err := NewSearchBackend(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", b.Name())

	results, err := b.Search(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	cfg.Backend = "searxng"
	_, err = NewSearchBackend(cfg, nil)
	assert.Error(t, err)

	cfg.Backend = "altavista"
	_, err = NewSearchBackend(cfg, nil)
	assert.EqualError(t, err, "unknown search backend: altavista")
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, time.Hour, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	results := []SearchResult{{Title: "a", URL: "https://a"}}
	require.NoError(t, c.Put(ctx, "Query", results))

	got, ok := c.Get(ctx, "query")
	require.True(t, ok)
	assert.Equal(t, results, got)

	now = now.Add(2 * time.Hour)
	_, ok = c.Get(ctx, "query")
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "fresh", results))
	now = now.Add(30 * time.Minute)
	removed, err := c.Cleanup(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := cache.NewManagerFromClient(client, cache.Config{KeyPrefix: "t:", DefaultTTL: time.Minute}, zap.NewNop())
	defer manager.Close()

	c := NewRedisCache(manager, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	results := []SearchResult{{Title: "r", URL: "https://r"}}
	require.NoError(t, c.Put(ctx, "old", results))
	now = now.Add(45 * time.Minute)
	require.NoError(t, c.Put(ctx, "new", results))

	got, ok := c.Get(ctx, "OLD")
	require.True(t, ok)
	assert.Equal(t, results, got)
	assert.True(t, mr.Exists("t:websearch:"+CacheKey("old")))

	removed, err := c.Cleanup(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok = c.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "new")
	assert.True(t, ok)
}
