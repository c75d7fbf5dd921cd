package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentModel documents 表映射，元数据以 JSON 文本保存
type DocumentModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Content     string    `gorm:"type:text;not null"`
	Metadata    string    `gorm:"type:text"`
	ContentHash string    `gorm:"size:64;not null;index:idx_documents_content_hash"`
	FilePath    string    `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"not null;index:idx_documents_created_at"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName 固定表名
func (DocumentModel) TableName() string { return "documents" }

// SQLStore 基于 gorm 的文档存储 (sqlite / postgres / mysql)。
// 元数据过滤在内存中完成，语义与 FileSystemStore 保持一致。
type SQLStore struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLStore 创建 SQL 文档存储；autoMigrate 为 true 时自动建表
func NewSQLStore(db *gorm.DB, autoMigrate bool, logger *zap.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if autoMigrate {
		if err := db.AutoMigrate(&DocumentModel{}); err != nil {
			return nil, fmt.Errorf("migrate documents table: %w", err)
		}
	}
	return &SQLStore{
		db:     db,
		now:    time.Now,
		logger: logger.With(zap.String("component", "sql_document_store")),
	}, nil
}

func (m *DocumentModel) toDocument() (*StoredDocument, error) {
	meta := map[string]any{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
	}
	return &StoredDocument{
		ID:          m.ID,
		Content:     m.Content,
		Metadata:    meta,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		ContentHash: m.ContentHash,
		FilePath:    m.FilePath,
	}, nil
}

func encodeMetadata(meta map[string]any) (string, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// Store 保存文档
func (s *SQLStore) Store(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error) {
	hash := ContentHash(content)

	var existing DocumentModel
	err := s.db.WithContext(ctx).Where("content_hash = ?", hash).Take(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("lookup content hash: %w", err)
	}

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return "", err
	}
	now := s.now()
	model := DocumentModel{
		ID:          GenerateID(content, metadata, now),
		Content:     content,
		Metadata:    metaJSON,
		ContentHash: hash,
		FilePath:    filePath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	s.logger.Debug("document stored", zap.String("doc_id", model.ID))
	return model.ID, nil
}

func (s *SQLStore) load(ctx context.Context, id string) (*DocumentModel, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	return &model, nil
}

// Get 按 ID 读取文档
func (s *SQLStore) Get(ctx context.Context, id string) (*StoredDocument, error) {
	model, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.toDocument()
}

// Update 更新文档
func (s *SQLStore) Update(ctx context.Context, id string, content *string, metadata map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DocumentModel
		if err := tx.Where("id = ?", id).Take(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(id)
			}
			return err
		}
		doc, err := model.toDocument()
		if err != nil {
			return err
		}

		updates := map[string]any{"updated_at": s.now()}
		if content != nil {
			updates["content"] = *content
			updates["content_hash"] = ContentHash(*content)
		}
		if metadata != nil {
			for k, v := range metadata {
				doc.Metadata[k] = v
			}
			metaJSON, err := encodeMetadata(doc.Metadata)
			if err != nil {
				return err
			}
			updates["metadata"] = metaJSON
		}
		return tx.Model(&DocumentModel{}).Where("id = ?", id).Updates(updates).Error
	})
}

// Delete 删除文档
func (s *SQLStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&DocumentModel{})
	if res.Error != nil {
		return false, fmt.Errorf("delete document: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLStore) all(ctx context.Context, filter map[string]any) ([]*StoredDocument, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	docs := make([]*StoredDocument, 0, len(models))
	for i := range models {
		doc, err := models[i].toDocument()
		if err != nil {
			s.logger.Warn("skip undecodable document", zap.String("doc_id", models[i].ID), zap.Error(err))
			continue
		}
		if matchFilter(doc.Metadata, filter) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// List 列出文档
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*StoredDocument, error) {
	docs, err := s.all(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}
	sortDocuments(docs, opts.OrderBy)
	return paginate(docs, opts.Limit, opts.Offset), nil
}

// Search 在正文和元数据值中搜索
func (s *SQLStore) Search(ctx context.Context, query string, filter map[string]any, limit int) ([]*StoredDocument, error) {
	docs, err := s.all(ctx, filter)
	if err != nil {
		return nil, err
	}
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
func (s *SQLStore) GetByHash(ctx context.Context, contentHash string) (*StoredDocument, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).Where("content_hash = ?", contentHash).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(contentHash)
		}
		return nil, fmt.Errorf("query document by hash: %w", err)
	}
	return model.toDocument()
}

// Count 统计文档数
func (s *SQLStore) Count(ctx context.Context, filter map[string]any) (int, error) {
	if len(filter) == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&DocumentModel{}).Count(&n).Error; err != nil {
			return 0, fmt.Errorf("count documents: %w", err)
		}
		return int(n), nil
	}
	docs, err := s.all(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
