package main

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/api/handlers"
	"github.com/BaSui01/agentbase/internal/metrics"
	"github.com/BaSui01/agentbase/types"
)

type Middleware func(http.Handler) http.Handler

// Chain 第一个中间件在最外层，nil 项跳过（例如未开启的认证与限流）
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if mw := middlewares[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}

// observed 在 next 返回后把状态码、字节数与耗时交给 done
func observed(next http.Handler, done func(r *http.Request, rw *handlers.StatusRecorder, elapsed time.Duration)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := handlers.NewStatusRecorder(w)
		next.ServeHTTP(rw, r)
		done(r, rw, time.Since(start))
	})
}

// Recovery 把 panic 转成 500 信封；http.ErrAbortHandler 照常向上抛
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("handler panic",
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				handlers.WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 每个请求一条访问日志，5xx 记为 warn
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return observed(next, func(r *http.Request, rw *handlers.StatusRecorder, elapsed time.Duration) {
			log := logger.Info
			if rw.Status >= http.StatusInternalServerError {
				log = logger.Warn
			}
			requestID, _ := types.RequestID(r.Context())
			log("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.Status),
				zap.Duration("duration", elapsed),
				zap.Int64("bytes", rw.Bytes),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", requestID))
		})
	}
}

// MetricsMiddleware 以归一化路径为标签记录 HTTP 指标
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return observed(next, func(r *http.Request, rw *handlers.StatusRecorder, elapsed time.Duration) {
			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.Status, elapsed, rw.Bytes)
		})
	}
}

// idSegment UUID、8 位以上十六进制串或纯数字
var idSegment = regexp.MustCompile(`^[0-9a-fA-F]{8,}(-[0-9a-fA-F]{4,}){0,4}$|^[0-9]+$`)

var staticPaths = stringSet([]string{"/health", "/healthz", "/ready", "/version", "/metrics", "/agents", "/config"})

// normalizePath 把动态段替换为 :id，限制指标标签基数。
// sessions 之后的段总是会话 ID，其格式由客户端决定。
//
//	/agents/general/sessions/general_1a2b3c4d -> /agents/general/sessions/:id
func normalizePath(path string) string {
	if _, ok := staticPaths[path]; ok {
		return path
	}
	segs := strings.Split(path, "/")
	changed := false
	for i := 1; i < len(segs); i++ {
		if segs[i] == "" {
			continue
		}
		if segs[i-1] == "sessions" || idSegment.MatchString(segs[i]) {
			segs[i], changed = ":id", true
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segs, "/")
}

// OTelTracing 提取上游 traceparent 并为每个请求开启 server span。
// 遥测关闭时全局 tracer 为 noop。
func OTelTracing() Middleware {
	tracer := otel.Tracer("agentbase/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+normalizePath(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)))
			defer span.End()

			rw := handlers.NewStatusRecorder(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.Status))
			if rw.Status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.Status))
			}
		})
	}
}

// RequestID 沿用客户端的 X-Request-ID，没有则生成 req-<uuid>。
// 响应信封的 request_id 读取这里设置的响应头。
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = "req-" + uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Content-Security-Policy", "default-src 'self'"},
}

func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range securityHeaders {
				w.Header().Set(h[0], h[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS origins 含 "*" 时放行任意来源；来源不在列表中时不写 CORS 头，预检返回 403
func CORS(origins []string) Middleware {
	allowed := stringSet(origins)
	_, wildcard := allowed["*"]
	permits := func(origin string) bool {
		if origin == "" {
			return false
		}
		_, ok := allowed[origin]
		return wildcard || ok
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			ok := permits(origin)
			if ok {
				h := w.Header()
				if wildcard {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization, X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			switch {
			case preflight && ok:
				w.WriteHeader(http.StatusNoContent)
			case preflight:
				w.WriteHeader(http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
