package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/llm/embedding"
)

// SearchObserver 在每次相似度搜索结束后回调（用于指标采集）
type SearchObserver func(store string, duration time.Duration, results int, err error)

// KnowledgeBase 组合向量存储与嵌入提供者：写入时补齐向量，检索时嵌入查询
type KnowledgeBase struct {
	store     VectorStore
	embedder  embedding.Provider
	storeName string
	batchSize int
	observer  SearchObserver
	logger    *zap.Logger
}

// KnowledgeBaseOption 配置 KnowledgeBase
type KnowledgeBaseOption func(*KnowledgeBase)

// WithBatchSize 设置嵌入批大小（默认 100）
func WithBatchSize(n int) KnowledgeBaseOption {
	return func(kb *KnowledgeBase) {
		if n > 0 {
			kb.batchSize = n
		}
	}
}

// WithStoreName 设置用于日志与指标的存储名称
func WithStoreName(name string) KnowledgeBaseOption {
	return func(kb *KnowledgeBase) { kb.storeName = name }
}

// WithSearchObserver 注册搜索回调
func WithSearchObserver(obs SearchObserver) KnowledgeBaseOption {
	return func(kb *KnowledgeBase) { kb.observer = obs }
}

// NewKnowledgeBase 创建知识库
func NewKnowledgeBase(store VectorStore, embedder embedding.Provider, logger *zap.Logger, opts ...KnowledgeBaseOption) *KnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	kb := &KnowledgeBase{
		store:     store,
		embedder:  embedder,
		storeName: "vector_store",
		batchSize: embedding.DefaultBatchSize,
		logger:    logger.With(zap.String("component", "knowledge_base")),
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Store 返回底层向量存储
func (kb *KnowledgeBase) Store() VectorStore { return kb.store }

// Embedder 返回嵌入提供者
func (kb *KnowledgeBase) Embedder() embedding.Provider { return kb.embedder }

// AddDocuments 写入文档并返回 ID。缺少 ID 的文档分配 UUID，缺少向量的文档分批嵌入。
func (kb *KnowledgeBase) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}

	prepared := make([]Document, len(docs))
	copy(prepared, docs)

	var missing []int
	var texts []string
	for i := range prepared {
		if prepared[i].ID == "" {
			prepared[i].ID = uuid.NewString()
		}
		if len(prepared[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, prepared[i].Content)
		}
	}

	if len(missing) > 0 {
		vecs, err := embedding.BatchEmbed(ctx, kb.embedder.EmbedDocuments, texts, kb.batchSize, func(batch, total int) {
			kb.logger.Debug("embedded batch", zap.Int("batch", batch), zap.Int("total", total))
		})
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("embed documents: expected %d vectors, got %d", len(missing), len(vecs))
		}
		for j, i := range missing {
			prepared[i].Embedding = vecs[j]
		}
	}

	if err := kb.store.AddDocuments(ctx, prepared); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	ids := make([]string, len(prepared))
	for i, d := range prepared {
		ids[i] = d.ID
	}
	kb.logger.Info("documents added", zap.Int("count", len(ids)), zap.Int("embedded", len(missing)))
	return ids, nil
}

// SimilaritySearch 嵌入查询文本并检索最相似的 k 个文档
func (kb *KnowledgeBase) SimilaritySearch(ctx context.Context, query string, k int, filter Filter) (results []SearchResult, err error) {
	ctx, span := otel.Tracer("agentbase/rag").Start(ctx, "rag.similarity_search")
	span.SetAttributes(
		attribute.String("rag.store", kb.storeName),
		attribute.Int("rag.top_k", k),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("rag.results", len(results)))
		span.End()
		if kb.observer != nil {
			kb.observer(kb.storeName, time.Since(start), len(results), err)
		}
	}()

	vec, err := kb.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err = kb.store.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

func (kb *KnowledgeBase) DeleteDocuments(ctx context.Context, ids []string) error {
	return kb.store.DeleteDocuments(ctx, ids)
}

func (kb *KnowledgeBase) GetDocument(ctx context.Context, id string) (*Document, error) {
	return kb.store.GetDocument(ctx, id)
}

func (kb *KnowledgeBase) ListDocuments(ctx context.Context, filter Filter, limit, offset int) ([]Document, error) {
	return kb.store.ListDocuments(ctx, filter, limit, offset)
}

func (kb *KnowledgeBase) Count(ctx context.Context, filter Filter) (int, error) {
	return kb.store.Count(ctx, filter)
}

// Info 返回知识库描述
func (kb *KnowledgeBase) Info(ctx context.Context) map[string]any {
	info := map[string]any{
		"store":     kb.storeName,
		"embedding": kb.embedder.ModelInfo().Map(),
	}
	if n, err := kb.store.Count(ctx, nil); err == nil {
		info["document_count"] = n
	}
	return info
}
