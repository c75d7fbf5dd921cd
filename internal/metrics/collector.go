package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/llm"
)

var (
	llmBuckets    = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	agentBuckets  = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}
	searchBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	hitBuckets    = []float64{0, 1, 3, 5, 10, 20, 50}
	sizeBuckets   = prometheus.ExponentialBuckets(100, 10, 8)
)

// factory 给所有指标加上同一个 namespace
type factory struct {
	promauto.Factory
	ns string
}

func (f factory) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return f.NewCounterVec(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help}, labels)
}

func (f factory) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: f.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

func (f factory) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return f.NewGaugeVec(prometheus.GaugeOpts{Namespace: f.ns, Name: name, Help: help}, labels)
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
}

type llmMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

type agentMetrics struct {
	queries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	tools        *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
}

type searchMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	results  *prometheus.HistogramVec
}

// Collector 持有独立 Registry 的 Prometheus 指标集合。
// Record* 方法可以直接作为各组件观察者回调的方法值传入。
type Collector struct {
	registry *prometheus.Registry

	http   httpMetrics
	llm    llmMetrics
	agent  agentMetrics
	search searchMetrics

	cacheHits, cacheMisses *prometheus.CounterVec
	dbOpen, dbIdle         *prometheus.GaugeVec
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := factory{Factory: promauto.With(reg), ns: namespace}

	c := &Collector{
		registry: reg,
		http: httpMetrics{
			requests: f.counter("http_requests_total", "HTTP requests by method, route and status class.", "method", "path", "status"),
			duration: f.histogram("http_request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets, "method", "path"),
			size:     f.histogram("http_response_size_bytes", "HTTP response body size.", sizeBuckets, "method", "path"),
		},
		llm: llmMetrics{
			requests: f.counter("llm_requests_total", "LLM completion calls.", "provider", "model", "status"),
			duration: f.histogram("llm_request_duration_seconds", "LLM completion latency.", llmBuckets, "provider", "model"),
			tokens:   f.counter("llm_tokens_used_total", "Tokens consumed, split into prompt and completion.", "provider", "model", "type"),
		},
		agent: agentMetrics{
			queries:      f.counter("agent_queries_total", "Agent queries by outcome (answered or fallback).", "agent_type", "outcome"),
			duration:     f.histogram("agent_query_duration_seconds", "End-to-end agent query latency.", agentBuckets, "agent_type"),
			tools:        f.counter("tool_executions_total", "Tool invocations by result.", "tool", "status"),
			toolDuration: f.histogram("tool_execution_duration_seconds", "Tool invocation latency.", prometheus.DefBuckets, "tool"),
		},
		search: searchMetrics{
			total:    f.counter("vector_searches_total", "Vector similarity searches.", "store", "status"),
			duration: f.histogram("vector_search_duration_seconds", "Vector similarity search latency.", searchBuckets, "store"),
			results:  f.histogram("vector_search_results", "Results returned per vector search.", hitBuckets, "store"),
		},
		cacheHits:   f.counter("cache_hits_total", "Cache hits.", "cache_type"),
		cacheMisses: f.counter("cache_misses_total", "Cache misses.", "cache_type"),
		dbOpen:      f.gauge("db_connections_open", "Open database connections.", "database"),
		dbIdle:      f.gauge("db_connections_idle", "Idle database connections.", "database"),
	}
	logger.Debug("metrics collector ready", zap.String("namespace", namespace))
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler GET /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest path 应当是归一化后的路由，避免标签基数膨胀
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration, size int64) {
	c.http.requests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.http.duration.WithLabelValues(method, path).Observe(d.Seconds())
	c.http.size.WithLabelValues(method, path).Observe(float64(size))
}

// RecordLLMRequest 签名同 llm.RequestObserver
func (c *Collector) RecordLLMRequest(provider, model, status string, d time.Duration, usage llm.ChatUsage) {
	c.llm.requests.WithLabelValues(provider, model, status).Inc()
	c.llm.duration.WithLabelValues(provider, model).Observe(d.Seconds())
	c.llm.tokens.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	c.llm.tokens.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
}

func (c *Collector) RecordAgentQuery(agentType string, d time.Duration, fallback bool) {
	c.agent.queries.WithLabelValues(agentType, pick(fallback, "fallback", "answered")).Inc()
	c.agent.duration.WithLabelValues(agentType).Observe(d.Seconds())
}

func (c *Collector) RecordToolExecution(tool string, success bool, d time.Duration) {
	c.agent.tools.WithLabelValues(tool, pick(success, "success", "failure")).Inc()
	c.agent.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (c *Collector) RecordVectorSearch(store string, d time.Duration, results int, err error) {
	c.search.total.WithLabelValues(store, pick(err != nil, "error", "success")).Inc()
	c.search.duration.WithLabelValues(store).Observe(d.Seconds())
	c.search.results.WithLabelValues(store).Observe(float64(results))
}

func (c *Collector) RecordCacheHit(cacheType string)  { c.cacheHits.WithLabelValues(cacheType).Inc() }
func (c *Collector) RecordCacheMiss(cacheType string) { c.cacheMisses.WithLabelValues(cacheType).Inc() }

func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbOpen.WithLabelValues(database).Set(float64(open))
	c.dbIdle.WithLabelValues(database).Set(float64(idle))
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

// statusClass 200..599 -> "2xx".."5xx"，其它值为 unknown
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
