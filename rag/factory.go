// Config → RAG 桥接层。
//
// 将全局 config.VectorStoreConfig 转换为 rag 包的 VectorStore 实例。
package rag

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentbase/config"
	"go.uber.org/zap"
)

// VectorStoreType 标识要创建的向量存储后端。
type VectorStoreType string

const (
	VectorStoreMemory VectorStoreType = "memory"
	VectorStoreChroma VectorStoreType = "chroma"
	VectorStoreQdrant VectorStoreType = "qdrant"
)

// NewVectorStoreFromConfig 根据配置创建 VectorStore。类型为空时使用内存后端；
// 内存后端在 path 非空时启用快照持久化。
func NewVectorStoreFromConfig(cfg config.VectorStoreConfig, logger *zap.Logger) (VectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch VectorStoreType(strings.ToLower(cfg.Type)) {
	case VectorStoreMemory, "":
		if cfg.Path == "" {
			return NewInMemoryVectorStore(logger), nil
		}
		return NewPersistentVectorStore(cfg.Path, logger)

	case VectorStoreChroma:
		return NewChromaStore(ChromaConfig{
			BaseURL:    cfg.URL,
			Collection: cfg.CollectionName,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.Timeout,
		}, logger), nil

	case VectorStoreQdrant:
		return NewQdrantStore(QdrantConfig{
			BaseURL:              cfg.URL,
			APIKey:               cfg.APIKey,
			Collection:           cfg.CollectionName,
			Timeout:              cfg.Timeout,
			AutoCreateCollection: true,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown vector store type: %s", cfg.Type)
	}
}
