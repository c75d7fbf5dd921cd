package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// QdrantConfig Qdrant REST 后端配置。
// 点 ID 由文档 ID 派生（UUIDv5），原始 ID、内容和元数据存放在 payload 中。
type QdrantConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key,omitempty"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty"`

	// AutoCreateCollection 首次写入时按向量维度建集合，已存在（409）视为成功
	AutoCreateCollection bool   `json:"auto_create_collection,omitempty"`
	Distance             string `json:"distance,omitempty"`    // Cosine | Dot | Euclid
	VectorSize           int    `json:"vector_size,omitempty"` // 0 取首个文档的维度
	NoWait               bool   `json:"no_wait,omitempty"`     // 写操作不等待落盘
}

const (
	qdrantScrollPage = 256

	payloadID       = "doc_id"
	payloadContent  = "content"
	payloadMetadata = "metadata"
)

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

// qdrantPointID 同一文档 ID 总是映射到同一个点，重复写入即覆盖
func qdrantPointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

type QdrantStore struct {
	cfg    QdrantConfig
	rest   restClient
	logger *zap.Logger

	createOnce sync.Once
	createErr  error
}

func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	return &QdrantStore{
		cfg: cfg,
		rest: newRESTClient("qdrant", cfg.BaseURL, cfg.Timeout, func(h http.Header) {
			if apiKey != "" {
				h.Set("api-key", apiKey)
			}
		}),
		logger: logger.With(zap.String("component", "qdrant_store")),
	}
}

func (s *QdrantStore) points(op string) string {
	p := "/collections/" + url.PathEscape(s.cfg.Collection) + "/points"
	if op != "" {
		p += "/" + op
	}
	return p
}

// writePath 写操作默认带 wait=true，保证返回后立即可查
func (s *QdrantStore) writePath(op string) string {
	if s.cfg.NoWait {
		return s.points(op)
	}
	return s.points(op) + "?wait=true"
}

func (s *QdrantStore) createCollection(ctx context.Context, size int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	s.createOnce.Do(func() {
		req := map[string]any{"vectors": map[string]any{"size": size, "distance": s.cfg.Distance}}
		err := s.rest.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(s.cfg.Collection), req, nil)
		if err != nil && !hasStatus(err, http.StatusConflict) {
			s.createErr = err
		}
	})
	return s.createErr
}

// qdrantCondition 元数据精确匹配
type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

func newQdrantFilter(filter Filter) *qdrantFilter {
	if len(filter) == 0 {
		return nil
	}
	f := &qdrantFilter{Must: make([]qdrantCondition, 0, len(filter))}
	for k, v := range filter {
		c := qdrantCondition{Key: payloadMetadata + "." + k}
		c.Match.Value = v
		f.Must = append(f.Must, c)
	}
	return f
}

// qdrantDocument 从点的 JSON 还原文档；payload 缺少 doc_id 时退回点 ID
func qdrantDocument(point gjson.Result) Document {
	payload := point.Get("payload")
	doc := Document{
		ID:      payload.Get(payloadID).String(),
		Content: payload.Get(payloadContent).String(),
	}
	if m, ok := payload.Get(payloadMetadata).Value().(map[string]any); ok {
		doc.Metadata = m
	}
	for _, v := range point.Get("vector").Array() {
		doc.Embedding = append(doc.Embedding, v.Float())
	}
	if doc.ID == "" {
		doc.ID = point.Get("id").String()
	}
	return doc
}

func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	size := s.cfg.VectorSize
	for i, doc := range docs {
		switch {
		case doc.ID == "":
			return fmt.Errorf("document[%d] has empty id", i)
		case len(doc.Embedding) == 0:
			return fmt.Errorf("document[%d] has no embedding", i)
		case size == 0:
			size = len(doc.Embedding)
		}
		if len(doc.Embedding) != size {
			return fmt.Errorf("document[%d] embedding dimension mismatch: got=%d want=%d", i, len(doc.Embedding), size)
		}
	}
	if err := s.createCollection(ctx, size); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	pts := make([]point, len(docs))
	for i, doc := range docs {
		pts[i] = point{
			ID:     qdrantPointID(doc.ID),
			Vector: doc.Embedding,
			Payload: map[string]any{
				payloadID:       doc.ID,
				payloadContent:  doc.Content,
				payloadMetadata: doc.Metadata,
			},
		}
	}
	if err := s.rest.do(ctx, http.MethodPut, s.writePath(""), map[string]any{"points": pts}, nil); err != nil {
		return err
	}
	s.logger.Debug("points upserted", zap.Int("count", len(docs)))
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, query []float64, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	if len(query) == 0 {
		return nil, errors.New("query embedding is required")
	}
	req := struct {
		Vector      []float64     `json:"vector"`
		Limit       int           `json:"limit"`
		WithPayload bool          `json:"with_payload"`
		Filter      *qdrantFilter `json:"filter,omitempty"`
	}{query, topK, true, newQdrantFilter(filter)}

	raw, err := s.rest.call(ctx, http.MethodPost, s.points("search"), req)
	if err != nil {
		return nil, err
	}
	hits := gjson.GetBytes(raw, "result").Array()
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{Document: qdrantDocument(h), Score: h.Get("score").Float()})
	}
	return out, nil
}

func (s *QdrantStore) DeleteDocuments(ctx context.Context, ids []string) error {
	var pts []string
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			pts = append(pts, qdrantPointID(id))
		}
	}
	if len(pts) == 0 {
		return nil
	}
	return s.rest.do(ctx, http.MethodPost, s.writePath("delete"), map[string]any{"points": pts}, nil)
}

// GetDocument 点不存在时返回 (nil, nil)
func (s *QdrantStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	raw, err := s.rest.call(ctx, http.MethodGet, s.points(qdrantPointID(id)), nil)
	if hasStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	point := gjson.GetBytes(raw, "result")
	if !point.IsObject() {
		return nil, nil
	}
	doc := qdrantDocument(point)
	return &doc, nil
}

// ListDocuments scroll 的 offset 是点 ID 而不是序号，
// 所以按页读到 offset+limit 条后在本地切片
func (s *QdrantStore) ListDocuments(ctx context.Context, filter Filter, limit, offset int) ([]Document, error) {
	want := offset + limit
	req := struct {
		Limit       int           `json:"limit"`
		WithPayload bool          `json:"with_payload"`
		Filter      *qdrantFilter `json:"filter,omitempty"`
		Offset      any           `json:"offset,omitempty"`
	}{Limit: qdrantScrollPage, WithPayload: true, Filter: newQdrantFilter(filter)}

	var docs []Document
	for {
		raw, err := s.rest.call(ctx, http.MethodPost, s.points("scroll"), req)
		if err != nil {
			return nil, err
		}
		res := gjson.GetBytes(raw, "result")
		for _, p := range res.Get("points").Array() {
			docs = append(docs, qdrantDocument(p))
		}
		next := res.Get("next_page_offset")
		if !next.Exists() || next.Type == gjson.Null || (limit > 0 && len(docs) >= want) {
			break
		}
		req.Offset = next.Value()
	}
	return paginate(docs, limit, offset), nil
}

func (s *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	req := struct {
		Exact  bool          `json:"exact"`
		Filter *qdrantFilter `json:"filter,omitempty"`
	}{true, newQdrantFilter(filter)}
	raw, err := s.rest.call(ctx, http.MethodPost, s.points("count"), req)
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(raw, "result.count").Int()), nil
}

// ClearAll 空 must 过滤器匹配全部点，集合本身保留
func (s *QdrantStore) ClearAll(ctx context.Context) error {
	return s.rest.do(ctx, http.MethodPost, s.writePath("delete"), map[string]any{"filter": qdrantFilter{Must: []qdrantCondition{}}}, nil)
}
