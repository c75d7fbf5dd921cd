package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, []int{1, 2, 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, "[1,2,3]", w.Body.String())
}

func TestWriteSuccess_RequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-1")
	WriteSuccess(w, map[string]string{"key": "value"})

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "message is required"), http.StatusBadRequest},
		{"agent not found", types.NewError(types.ErrAgentNotFound, "Agent type 'x' not found"), http.StatusNotFound},
		{"rate limited", types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true), http.StatusTooManyRequests},
		{"explicit status", types.NewError(types.ErrInternalError, "teapot").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot},
		{"upstream", types.NewError(types.ErrUpstreamError, "bad gateway"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, tt.err.Retryable, resp.Error.Retryable)
		})
	}
}

func TestWriteErr_PlainError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErr(w, errors.New("boom"), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Message)
}

func TestWriteErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorDetails(w, types.NewError(types.ErrAgentNotFound, "missing"), map[string]any{"available_agents": []string{"general"}}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"available_agents":["general"]`)
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var dst struct {
			Message string `json:"message"`
		}
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
		require.NoError(t, DecodeJSONBody(w, r, &dst, nil))
		assert.Equal(t, "hi", dst.Message)
	})

	t.Run("invalid json", func(t *testing.T) {
		var dst map[string]any
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{bad"))
		err := DecodeJSONBody(w, r, &dst, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		var dst map[string]any
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		err := DecodeJSONBody(w, r, &dst, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewStatusRecorder(rec)
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, rw.Status)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(5), rw.Bytes)
	assert.Same(t, rec, rw.Unwrap())
}

func TestStatusRecorder_ImplicitOK(t *testing.T) {
	rw := NewStatusRecorder(httptest.NewRecorder())
	_, _ = rw.Write([]byte("a"))
	_, _ = rw.Write([]byte("bc"))
	assert.Equal(t, http.StatusOK, rw.Status)
	assert.Equal(t, int64(3), rw.Bytes)
}
