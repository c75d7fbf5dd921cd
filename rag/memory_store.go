package rag

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/llm/embedding"
)

const snapshotFile = "vectors.json"

// InMemoryVectorStore 按插入顺序保存文档，检索时对全部向量算余弦相似度。
// path 非空时每次写操作后把全部文档写成 JSON 快照。
type InMemoryVectorStore struct {
	mu   sync.RWMutex
	docs []Document
	pos  map[string]int // 文档 ID -> docs 下标

	path   string
	logger *zap.Logger
}

func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		pos:    make(map[string]int),
		logger: logger.With(zap.String("component", "memory_vector_store")),
	}
}

// NewPersistentVectorStore 快照位于 dir/vectors.json，不存在时从空库开始
func NewPersistentVectorStore(dir string, logger *zap.Logger) (*InMemoryVectorStore, error) {
	s := NewInMemoryVectorStore(logger)
	s.path = filepath.Join(dir, snapshotFile)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read vector snapshot: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode vector snapshot %s: %w", s.path, err)
	}
	for _, d := range docs {
		s.put(d)
	}
	s.logger.Info("vector snapshot loaded", zap.String("path", s.path), zap.Int("count", len(s.docs)))
	return s, nil
}

func (s *InMemoryVectorStore) put(doc Document) {
	if i, ok := s.pos[doc.ID]; ok {
		s.docs[i] = doc
		return
	}
	s.pos[doc.ID] = len(s.docs)
	s.docs = append(s.docs, doc)
}

// save 调用方持有写锁。先写临时文件再 rename。
func (s *InMemoryVectorStore) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(s.docs)
	if err != nil {
		return fmt.Errorf("encode vector snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write vector snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *InMemoryVectorStore) AddDocuments(_ context.Context, docs []Document) error {
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if d.Embedding == nil {
			return fmt.Errorf("document %s has no embedding", d.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.put(d)
	}
	s.logger.Debug("documents stored", zap.Int("count", len(docs)), zap.Int("total", len(s.docs)))
	return s.save()
}

// Search 分数相同的文档保持插入顺序
func (s *InMemoryVectorStore) Search(_ context.Context, query []float64, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]SearchResult, 0, len(s.docs))
	for _, d := range s.docs {
		if d.Embedding != nil && filter.Matches(d.Metadata) {
			hits = append(hits, SearchResult{Document: d, Score: embedding.CosineSimilarity(query, d.Embedding)})
		}
	}
	slices.SortStableFunc(hits, func(a, b SearchResult) int { return cmp.Compare(b.Score, a.Score) })
	return hits[:min(topK, len(hits))], nil
}

func (s *InMemoryVectorStore) DeleteDocuments(_ context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.docs)
	s.docs = slices.DeleteFunc(s.docs, func(d Document) bool {
		_, ok := drop[d.ID]
		return ok
	})
	if len(s.docs) == before {
		return nil
	}
	clear(s.pos)
	for i, d := range s.docs {
		s.pos[d.ID] = i
	}
	s.logger.Debug("documents deleted", zap.Int("deleted", before-len(s.docs)), zap.Int("remaining", len(s.docs)))
	return s.save()
}

func (s *InMemoryVectorStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.pos[id]
	if !ok {
		return nil, nil
	}
	d := s.docs[i]
	return &d, nil
}

func (s *InMemoryVectorStore) ListDocuments(_ context.Context, filter Filter, limit, offset int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.matching(filter), limit, offset), nil
}

func (s *InMemoryVectorStore) Count(_ context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(filter) == 0 {
		return len(s.docs), nil
	}
	return len(s.matching(filter)), nil
}

// matching 返回副本，调用方可在释放锁后继续使用
func (s *InMemoryVectorStore) matching(filter Filter) []Document {
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		if filter.Matches(d.Metadata) {
			out = append(out, d)
		}
	}
	return out
}

func (s *InMemoryVectorStore) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	clear(s.pos)
	s.logger.Info("vector store cleared")
	return s.save()
}
