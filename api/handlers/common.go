package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/types"
)

const maxBodyBytes = 10 << 20

// Response 所有接口共用的响应信封。RequestID 取自 X-Request-ID 响应头。
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func envelope(w http.ResponseWriter, data any, info *ErrorInfo) Response {
	return Response{
		Success:   info == nil,
		Data:      data,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	}
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, envelope(w, data, nil))
}

// WriteError 状态码优先取 err.HTTPStatus，否则按错误码映射
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	WriteErrorDetails(w, err, nil, logger)
}

func WriteErrorDetails(w http.ResponseWriter, err *types.Error, details any, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = types.HTTPStatusFor(err.Code)
	}
	if logger != nil {
		log := logger.Warn
		if status >= http.StatusInternalServerError {
			log = logger.Error
		}
		log("request failed",
			zap.String("code", string(err.Code)),
			zap.Int("status", status),
			zap.String("message", err.Message),
			zap.Error(err.Cause))
	}
	WriteJSON(w, status, envelope(w, nil, &ErrorInfo{
		Code:      string(err.Code),
		Message:   err.Message,
		Details:   details,
		Retryable: err.Retryable,
	}))
}

func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// WriteErr 非 *types.Error 一律按 INTERNAL_ERROR 输出
func WriteErr(w http.ResponseWriter, err error, logger *zap.Logger) {
	var te *types.Error
	if !errors.As(err, &te) {
		te = types.NewError(types.ErrInternalError, err.Error()).WithCause(err)
	}
	WriteError(w, te, logger)
}

// DecodeJSONBody 失败时已经写出 400，调用方直接 return 即可
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	var te *types.Error
	if r.Body == nil || r.Body == http.NoBody {
		te = types.NewError(types.ErrInvalidRequest, "request body is empty")
	} else if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		te = types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
	}
	if te == nil {
		return nil
	}
	WriteError(w, te.WithHTTPStatus(http.StatusBadRequest), logger)
	return te
}

// StatusRecorder 记录首次写出的状态码与响应字节数，供日志和指标中间件使用
type StatusRecorder struct {
	http.ResponseWriter
	Status int
	Bytes  int64

	wroteHeader bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

func (rw *StatusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.Status, rw.wroteHeader = code, true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *StatusRecorder) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Unwrap 让 http.ResponseController 拿到底层 writer（Flush、Hijack）
func (rw *StatusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
