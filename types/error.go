package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 对外暴露的稳定错误码，出现在响应信封的 error.code 中
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	ErrAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	ErrSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	ErrToolValidation   ErrorCode = "TOOL_VALIDATION"
	ErrToolExecution    ErrorCode = "TOOL_EXECUTION"
	ErrUnknownComponent ErrorCode = "UNKNOWN_COMPONENT"
	ErrComponentInit    ErrorCode = "COMPONENT_INIT"
)

// 未列出的错误码按 500 处理
var codeStatus = map[ErrorCode]int{
	ErrInvalidRequest:     http.StatusBadRequest,
	ErrToolValidation:     http.StatusBadRequest,
	ErrUnauthorized:       http.StatusUnauthorized,
	ErrForbidden:          http.StatusForbidden,
	ErrNotFound:           http.StatusNotFound,
	ErrAgentNotFound:      http.StatusNotFound,
	ErrSessionNotFound:    http.StatusNotFound,
	ErrDocumentNotFound:   http.StatusNotFound,
	ErrToolNotFound:       http.StatusNotFound,
	ErrRateLimited:        http.StatusTooManyRequests,
	ErrTimeout:            http.StatusGatewayTimeout,
	ErrUpstreamError:      http.StatusBadGateway,
	ErrServiceUnavailable: http.StatusServiceUnavailable,
}

// HTTPStatusFor 错误码的默认 HTTP 状态
func HTTPStatusFor(code ErrorCode) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error 带错误码的结构化错误。HTTPStatus 为 0 时由 HTTPStatusFor 推导。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	s := "[" + string(e.Code) + "] " + e.Message
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError 在错误链中查找 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsErrorCode 错误链中存在 *Error 且错误码等于 code
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// GetErrorCode 错误链中没有 *Error 时返回空串
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}
