package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/agentbase/types"
)

// StoredDocument 原始文档及其元数据
type StoredDocument struct {
	ID          string         `json:"doc_id"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ContentHash string         `json:"content_hash"`
	FilePath    string         `json:"file_path,omitempty"`
}

// ListOptions 列表查询参数。
// OrderBy 支持 created_at / updated_at，前缀 "-" 表示降序。
type ListOptions struct {
	Filter  map[string]any
	Limit   int
	Offset  int
	OrderBy string
}

// Store 文档存储接口
type Store interface {
	// Store 保存文档并返回 ID；内容相同的文档返回已有 ID
	Store(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error)
	Get(ctx context.Context, id string) (*StoredDocument, error)
	// Update 更新内容（content 为 nil 时保留）并合并元数据
	Update(ctx context.Context, id string, content *string, metadata map[string]any) error
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]*StoredDocument, error)
	Search(ctx context.Context, query string, filter map[string]any, limit int) ([]*StoredDocument, error)
	GetByHash(ctx context.Context, contentHash string) (*StoredDocument, error)
	Count(ctx context.Context, filter map[string]any) (int, error)
}

// ContentHash 返回内容的 SHA-256 十六进制摘要
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// GenerateID 生成 YYYYmmdd_HHMMSS_<内容哈希前16位>_<元数据哈希前8位> 格式的文档 ID
func GenerateID(content string, metadata map[string]any, now time.Time) string {
	if metadata == nil {
		metadata = map[string]any{}
	}
	// encoding/json 对 map 键排序
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte(fmt.Sprint(metadata))
	}
	metaSum := sha256.Sum256(metaJSON)
	return fmt.Sprintf("%s_%s_%s",
		now.Format("20060102_150405"),
		ContentHash(content)[:16],
		hex.EncodeToString(metaSum[:])[:8],
	)
}

func notFound(id string) error {
	return types.Errorf(types.ErrDocumentNotFound, "document %s not found", id)
}

// matchFilter 元数据中不存在的键视为匹配，存在的键必须相等
func matchFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			continue
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// matchQuery 大小写不敏感地匹配内容或任一元数据值
func matchQuery(doc *StoredDocument, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(doc.Content), lowerQuery) {
		return true
	}
	for _, v := range doc.Metadata {
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), lowerQuery) {
			return true
		}
	}
	return false
}

// sortDocuments 按 OrderBy 排序；未指定时按创建时间和 ID 升序
func sortDocuments(docs []*StoredDocument, orderBy string) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")

	key := func(d *StoredDocument) time.Time { return d.CreatedAt }
	if field == "updated_at" {
		key = func(d *StoredDocument) time.Time { return d.UpdatedAt }
	}

	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := key(docs[i]), key(docs[j])
		if ti.Equal(tj) {
			if desc {
				return docs[i].ID > docs[j].ID
			}
			return docs[i].ID < docs[j].ID
		}
		if desc {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
}

func paginate(docs []*StoredDocument, limit, offset int) []*StoredDocument {
	if offset > 0 {
		if offset >= len(docs) {
			return []*StoredDocument{}
		}
		docs = docs[offset:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
