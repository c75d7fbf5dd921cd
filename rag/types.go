package rag

import (
	"context"
	"fmt"
)

// Document 知识库中的一个文档片段
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
}

// SearchResult 相似度搜索结果，Score 越高越相似
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Filter 元数据精确匹配过滤条件，所有键都必须相等
type Filter map[string]any

// Matches 判断元数据是否满足过滤条件。空过滤条件匹配所有文档。
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// equalValues 比较标量值；JSON 往返后 int 会变成 float64，因此数值统一按 float64 比较。
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// VectorStore 向量数据库接口
type VectorStore interface {
	// 添加文档（同 ID 覆盖），文档必须带有 Embedding
	AddDocuments(ctx context.Context, docs []Document) error

	// 搜索相似文档，filter 为空时不过滤
	Search(ctx context.Context, queryEmbedding []float64, topK int, filter Filter) ([]SearchResult, error)

	// 删除文档，不存在的 ID 被忽略
	DeleteDocuments(ctx context.Context, ids []string) error

	// 获取单个文档，不存在时返回 (nil, nil)
	GetDocument(ctx context.Context, id string) (*Document, error)

	// 分页列出文档，limit <= 0 表示不限制
	ListDocuments(ctx context.Context, filter Filter, limit, offset int) ([]Document, error)

	// 获取文档数量
	Count(ctx context.Context, filter Filter) (int, error)
}

// Clearable 可选能力：清空存储。调用方用类型断言探测。
type Clearable interface {
	ClearAll(ctx context.Context) error
}

// paginate 对已过滤的切片应用 offset/limit
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
