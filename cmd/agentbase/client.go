package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// =============================================================================
// 🌐 HTTP 客户端
// =============================================================================

const clientTimeout = 30 * time.Second

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s - %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d - %s", e.Status, e.Message)
}

// IsNotFound 报告错误是否为 404
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// apiClient 调用 agentbase REST API
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// do 发送请求并返回完整响应体。非 2xx 时返回 *APIError，
// 错误信息取自统一响应结构的 error.message。
func (c *apiClient) do(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("could not connect to API server at %s (start it with: agentbase serve): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	result := gjson.ParseBytes(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ae := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if msg := result.Get("error.message"); msg.Exists() {
			ae.Code = result.Get("error.code").String()
			ae.Message = msg.String()
		}
		return result, ae
	}
	return result, nil
}

// data 发送请求并返回统一响应结构中的 data 字段
func (c *apiClient) data(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	res, err := c.do(ctx, method, path, body)
	if err != nil {
		return res, err
	}
	return res.Get("data"), nil
}

// healthy 服务端 /health 返回 200 时为 true
func (c *apiClient) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err == nil
}

// =============================================================================
// 💾 本地会话映射
// =============================================================================

// defaultSessionName 未指定 --session 时使用的会话名
const defaultSessionName = "default"

// sessionStore 把 "agent:会话名" 映射到服务端会话 ID，保存在 JSON 文件中
type sessionStore struct {
	path string

	mu       sync.Mutex
	sessions map[string]string
}

// defaultSessionsFile ~/.agentbase_sessions.json
func defaultSessionsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentbase_sessions.json"
	}
	return filepath.Join(home, ".agentbase_sessions.json")
}

// loadSessionStore 文件不存在或损坏时从空映射开始
func loadSessionStore(path string) *sessionStore {
	s := &sessionStore{path: path, sessions: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	_ = json.Unmarshal(data, &s.sessions)
	if s.sessions == nil {
		s.sessions = map[string]string{}
	}
	return s
}

func sessionKey(agentType, name string) string {
	if name == "" {
		name = defaultSessionName
	}
	return agentType + ":" + name
}

// SessionID 返回已保存的会话 ID，不存在时生成 "<agent>_<8 位十六进制>" 并写回文件
func (s *sessionStore) SessionID(agentType, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(agentType, name)
	if id, ok := s.sessions[key]; ok {
		return id, nil
	}
	id := agentType + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	s.sessions[key] = id
	return id, s.save()
}

func (s *sessionStore) save() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o600)
}
