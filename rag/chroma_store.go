package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChromaConfig configures the Chroma VectorStore implementation.
type ChromaConfig struct {
	BaseURL    string        `json:"base_url"`
	Collection string        `json:"collection"`
	APIKey     string        `json:"api_key,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// ChromaStore implements VectorStore using the Chroma REST API (v1).
// The collection is created on first use with get_or_create.
type ChromaStore struct {
	cfg    ChromaConfig
	rest   restClient
	logger *zap.Logger

	mu           sync.Mutex
	collectionID string
}

// NewChromaStore creates a Chroma-backed VectorStore.
func NewChromaStore(cfg ChromaConfig, logger *zap.Logger) *ChromaStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Collection == "" {
		cfg.Collection = "ai_agents"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	token := cfg.APIKey
	return &ChromaStore{
		cfg: cfg,
		rest: newRESTClient("chroma", cfg.BaseURL, cfg.Timeout, func(h http.Header) {
			if token != "" {
				h.Set("X-Chroma-Token", token)
			}
		}),
		logger: logger.With(zap.String("component", "chroma_store")),
	}
}

// chromaScore 把 Chroma 距离转换为相似度分数（越大越相似）
func chromaScore(distance float64) float64 {
	if distance <= 1.0 {
		return 1.0 - distance
	}
	return 1.0 / (1.0 + distance)
}

// chromaWhere 把过滤条件转换为 Chroma where 子句，多个键用 $and 组合
func chromaWhere(filter Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	clauses := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		clauses = append(clauses, map[string]any{k: map[string]any{"$eq": v}})
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return map[string]any{"$and": clauses}
}

// collection 返回集合 ID，首次调用时创建或获取集合
func (s *ChromaStore) collection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	req := map[string]any{
		"name":          s.cfg.Collection,
		"get_or_create": true,
		"metadata":      map[string]any{"description": "AI Agent documents and embeddings"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.rest.do(ctx, http.MethodPost, "/api/v1/collections", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chroma returned empty collection id")
	}
	s.collectionID = resp.ID
	return resp.ID, nil
}

func (s *ChromaStore) path(ctx context.Context, op string) (string, error) {
	id, err := s.collection(ctx)
	if err != nil {
		return "", err
	}
	return "/api/v1/collections/" + url.PathEscape(id) + "/" + op, nil
}

func (s *ChromaStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float64, len(docs))
	contents := make([]string, len(docs))
	metadatas := make([]map[string]any, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document[%d] has no embedding", i)
		}
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		contents[i] = doc.Content
		metadatas[i] = chromaMetadata(doc.Metadata)
	}

	path, err := s.path(ctx, "upsert")
	if err != nil {
		return err
	}
	req := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  contents,
		"metadatas":  metadatas,
	}
	if err := s.rest.do(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("failed to add documents to chroma: %w", err)
	}
	s.logger.Debug("chroma upsert completed", zap.Int("count", len(docs)))
	return nil
}

// chromaMetadata 只保留 Chroma 支持的标量值，其余序列化为字符串；空 map 返回 nil
func chromaMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
			out[k] = v
		case nil:
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func (s *ChromaStore) Search(ctx context.Context, queryEmbedding []float64, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	path, err := s.path(ctx, "query")
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"query_embeddings": [][]float64{queryEmbedding},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if w := chromaWhere(filter); w != nil {
		req["where"] = w
	}

	var resp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	if err := s.rest.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to search chroma: %w", err)
	}
	if len(resp.IDs) == 0 {
		return []SearchResult{}, nil
	}

	out := make([]SearchResult, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		doc := Document{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			doc.Content = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			doc.Metadata = resp.Metadatas[0][i]
		}
		distance := 0.0
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			distance = resp.Distances[0][i]
		}
		out = append(out, SearchResult{Document: doc, Score: chromaScore(distance)})
	}
	return out, nil
}

func (s *ChromaStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	path, err := s.path(ctx, "delete")
	if err != nil {
		return err
	}
	return s.rest.do(ctx, http.MethodPost, path, map[string]any{"ids": ids}, nil)
}

type chromaGetResponse struct {
	IDs       []string         `json:"ids"`
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

func (r chromaGetResponse) documents() []Document {
	out := make([]Document, 0, len(r.IDs))
	for i, id := range r.IDs {
		doc := Document{ID: id}
		if i < len(r.Documents) {
			doc.Content = r.Documents[i]
		}
		if i < len(r.Metadatas) {
			doc.Metadata = r.Metadatas[i]
		}
		out = append(out, doc)
	}
	return out
}

func (s *ChromaStore) get(ctx context.Context, req map[string]any) (chromaGetResponse, error) {
	var resp chromaGetResponse
	path, err := s.path(ctx, "get")
	if err != nil {
		return resp, err
	}
	err = s.rest.do(ctx, http.MethodPost, path, req, &resp)
	return resp, err
}

func (s *ChromaStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	resp, err := s.get(ctx, map[string]any{
		"ids":     []string{id},
		"include": []string{"documents", "metadatas"},
	})
	if err != nil {
		return nil, err
	}
	docs := resp.documents()
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (s *ChromaStore) ListDocuments(ctx context.Context, filter Filter, limit, offset int) ([]Document, error) {
	req := map[string]any{"include": []string{"documents", "metadatas"}}
	if w := chromaWhere(filter); w != nil {
		req["where"] = w
	}
	if limit > 0 {
		req["limit"] = limit
	}
	if offset > 0 {
		req["offset"] = offset
	}
	resp, err := s.get(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.documents(), nil
}

func (s *ChromaStore) Count(ctx context.Context, filter Filter) (int, error) {
	if len(filter) == 0 {
		path, err := s.path(ctx, "count")
		if err != nil {
			return 0, err
		}
		var n int
		if err := s.rest.do(ctx, http.MethodGet, path, nil, &n); err != nil {
			return 0, err
		}
		return n, nil
	}
	resp, err := s.get(ctx, map[string]any{"where": chromaWhere(filter), "include": []string{}})
	if err != nil {
		return 0, err
	}
	return len(resp.IDs), nil
}

// ClearAll 删除并重建集合
func (s *ChromaStore) ClearAll(ctx context.Context) error {
	if err := s.rest.do(ctx, http.MethodDelete, "/api/v1/collections/"+url.PathEscape(s.cfg.Collection), nil, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.collectionID = ""
	s.mu.Unlock()
	_, err := s.collection(ctx)
	return err
}
