package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/BaSui01/agentbase/types"
)

// Error 是 Provider 级错误，携带统一错误码与来源 Provider。
type Error struct {
	Code       types.ErrorCode `json:"code"`
	Message    string          `json:"message"`
	HTTPStatus int             `json:"http_status"`
	Retryable  bool            `json:"retryable"`
	Provider   string          `json:"provider,omitempty"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ToTypesError 转换为 API 层使用的 types.Error。
func (e *Error) ToTypesError() *types.Error {
	return types.NewError(e.Code, e.Message).
		WithHTTPStatus(e.HTTPStatus).
		WithRetryable(e.Retryable)
}

// AsError 从错误链中提取 *Error。
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// UpstreamError 包装网络层错误，默认可重试。
func UpstreamError(provider string, err error) *Error {
	return &Error{
		Code:       types.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
	}
}

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 Error
func MapHTTPError(status int, msg string, provider string) *Error {
	e := &Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch {
	case status == http.StatusUnauthorized:
		e.Code = types.ErrUnauthorized
	case status == http.StatusForbidden:
		e.Code = types.ErrForbidden
	case status == http.StatusTooManyRequests:
		e.Code = types.ErrRateLimited
		e.Retryable = true
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		e.Code = types.ErrInvalidRequest
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		e.Code = types.ErrTimeout
		e.Retryable = true
	case status >= 500:
		e.Code = types.ErrUpstreamError
		e.Retryable = true
	default:
		e.Code = types.ErrUpstreamError
	}
	return e
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
