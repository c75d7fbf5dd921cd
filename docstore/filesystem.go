package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	contentDir  = "content"
	metadataDir = "metadata"
	indexFile   = "index.json"
)

type indexEntry struct {
	ContentHash string         `json:"content_hash"`
	CreatedAt   time.Time      `json:"created_at"`
	FilePath    string         `json:"file_path,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type metadataRecord struct {
	ID            string         `json:"doc_id"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ContentHash   string         `json:"content_hash"`
	FilePath      string         `json:"file_path,omitempty"`
	ContentLength int            `json:"content_length"`
}

// FileSystemStore 文件系统文档存储：
// content/<id>.txt 保存正文，metadata/<id>.json 保存元数据，index.json 为索引。
type FileSystemStore struct {
	mu     sync.RWMutex
	base   string
	index  map[string]indexEntry
	now    func() time.Time
	logger *zap.Logger
}

// NewFileSystemStore 创建目录结构并加载索引；索引损坏时以空索引启动
func NewFileSystemStore(basePath string, logger *zap.Logger) (*FileSystemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if basePath == "" {
		basePath = "./data/documents"
	}
	for _, dir := range []string{basePath, filepath.Join(basePath, contentDir), filepath.Join(basePath, metadataDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create document dir %s: %w", dir, err)
		}
	}

	s := &FileSystemStore{
		base:   basePath,
		index:  make(map[string]indexEntry),
		now:    time.Now,
		logger: logger.With(zap.String("component", "filesystem_document_store")),
	}
	s.loadIndex()
	return s, nil
}

func (s *FileSystemStore) loadIndex() {
	data, err := os.ReadFile(filepath.Join(s.base, indexFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read document index failed", zap.Error(err))
		}
		return
	}
	var idx map[string]indexEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		s.logger.Warn("document index corrupted, starting empty", zap.Error(err))
		return
	}
	s.index = idx
}

func (s *FileSystemStore) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document index: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.base, indexFile), data)
}

func (s *FileSystemStore) contentPath(id string) string {
	return filepath.Join(s.base, contentDir, id+".txt")
}

func (s *FileSystemStore) metadataPath(id string) string {
	return filepath.Join(s.base, metadataDir, id+".json")
}

// Store 保存文档
func (s *FileSystemStore) Store(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := ContentHash(content)
	if id, ok := s.findByHash(hash); ok {
		return id, nil
	}

	now := s.now()
	id := GenerateID(content, metadata, now)
	rec := metadataRecord{
		ID:            id,
		Metadata:      copyMetadata(metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
		ContentHash:   hash,
		FilePath:      filePath,
		ContentLength: len(content),
	}

	if err := s.writeDocument(id, &content, rec); err != nil {
		_ = os.Remove(s.contentPath(id))
		_ = os.Remove(s.metadataPath(id))
		return "", err
	}

	s.index[id] = indexEntry{ContentHash: hash, CreatedAt: now, FilePath: filePath, Metadata: rec.Metadata}
	if err := s.saveIndex(); err != nil {
		return "", err
	}
	s.logger.Debug("document stored", zap.String("doc_id", id), zap.Int("length", len(content)))
	return id, nil
}

func (s *FileSystemStore) writeDocument(id string, content *string, rec metadataRecord) error {
	if content != nil {
		if err := writeFileAtomic(s.contentPath(id), []byte(*content)); err != nil {
			return fmt.Errorf("write document content: %w", err)
		}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	if err := writeFileAtomic(s.metadataPath(id), data); err != nil {
		return fmt.Errorf("write document metadata: %w", err)
	}
	return nil
}

func (s *FileSystemStore) findByHash(hash string) (string, bool) {
	for id, e := range s.index {
		if e.ContentHash == hash {
			return id, true
		}
	}
	return "", false
}

func (s *FileSystemStore) read(id string) (*StoredDocument, error) {
	metaBytes, err := os.ReadFile(s.metadataPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("read document metadata: %w", err)
	}
	content, err := os.ReadFile(s.contentPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("read document content: %w", err)
	}
	var rec metadataRecord
	if err := json.Unmarshal(metaBytes, &rec); err != nil {
		return nil, fmt.Errorf("decode document metadata: %w", err)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return &StoredDocument{
		ID:          rec.ID,
		Content:     string(content),
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ContentHash: rec.ContentHash,
		FilePath:    rec.FilePath,
	}, nil
}

// Get 按 ID 读取文档
func (s *FileSystemStore) Get(ctx context.Context, id string) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

// Update 更新文档
func (s *FileSystemStore) Update(ctx context.Context, id string, content *string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(id)
	if err != nil {
		return err
	}
	if content != nil {
		doc.Content = *content
		doc.ContentHash = ContentHash(*content)
	}
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	doc.UpdatedAt = s.now()

	rec := metadataRecord{
		ID:            doc.ID,
		Metadata:      doc.Metadata,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		ContentHash:   doc.ContentHash,
		FilePath:      doc.FilePath,
		ContentLength: len(doc.Content),
	}
	if err := s.writeDocument(id, content, rec); err != nil {
		return err
	}
	s.index[id] = indexEntry{ContentHash: doc.ContentHash, CreatedAt: doc.CreatedAt, FilePath: doc.FilePath, Metadata: doc.Metadata}
	return s.saveIndex()
}

// Delete 删除文档，返回文档此前是否存在
func (s *FileSystemStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.index[id]
	for _, p := range []string{s.contentPath(id), s.metadataPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	delete(s.index, id)
	if err := s.saveIndex(); err != nil {
		return false, err
	}
	return existed, nil
}

// collect 读取索引中满足过滤条件的全部文档，调用方持有读锁
func (s *FileSystemStore) collect(filter map[string]any) []*StoredDocument {
	docs := make([]*StoredDocument, 0, len(s.index))
	for id := range s.index {
		doc, err := s.read(id)
		if err != nil {
			s.logger.Warn("skip unreadable document", zap.String("doc_id", id), zap.Error(err))
			continue
		}
		if matchFilter(doc.Metadata, filter) {
			docs = append(docs, doc)
		}
	}
	return docs
}

// List 列出文档
func (s *FileSystemStore) List(ctx context.Context, opts ListOptions) ([]*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := s.collect(opts.Filter)
	s.mu.RUnlock()

	sortDocuments(docs, opts.OrderBy)
	return paginate(docs, opts.Limit, opts.Offset), nil
}

// Search 在正文和元数据值中做大小写不敏感的子串匹配
func (s *FileSystemStore) Search(ctx context.Context, query string, filter map[string]any, limit int) ([]*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := s.collect(filter)
	s.mu.RUnlock()

	sortDocuments(docs, "")
	q := strings.ToLower(query)
	results := make([]*StoredDocument, 0)
	for _, d := range docs {
		if matchQuery(d, q) {
			results = append(results, d)
		}
	}
	return paginate(results, limit, 0), nil
}

// GetByHash 按内容哈希查找文档
func (s *FileSystemStore) GetByHash(ctx context.Context, contentHash string) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.findByHash(contentHash)
	if !ok {
		return nil, notFound(contentHash)
	}
	return s.read(id)
}

// Count 统计满足过滤条件的文档数
func (s *FileSystemStore) Count(ctx context.Context, filter map[string]any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(filter) == 0 {
		return len(s.index), nil
	}
	return len(s.collect(filter)), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
