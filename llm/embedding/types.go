package embedding

import "context"

// ModelInfo 嵌入模型的静态描述，出现在 agent info 输出中
type ModelInfo struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"`
	Dimension      int    `json:"dimension"`
	MaxInputLength int    `json:"max_input_length"`
	MaxBatchSize   int    `json:"max_batch_size"`
}

func (m ModelInfo) Map() map[string]any {
	return map[string]any{
		"name":             m.Name,
		"provider":         m.Provider,
		"dimension":        m.Dimension,
		"max_input_length": m.MaxInputLength,
		"max_batch_size":   m.MaxBatchSize,
	}
}

// Provider 文本嵌入。Embed 的结果与输入一一对应。
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// EmbedQuery 检索查询，部分后端对查询与文档使用不同任务类型
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	Dimension() int
	Name() string
	// MaxInputLength 单条输入的最大字符数，超出部分被截断
	MaxInputLength() int
	ModelInfo() ModelInfo
}

// meta 为各实现提供 Provider 的元数据方法
type meta struct {
	info ModelInfo
}

func newMeta(provider, model string, dim, maxInput, maxBatch int) meta {
	if maxInput <= 0 {
		maxInput = DefaultMaxInputLength
	}
	if maxBatch <= 0 {
		maxBatch = DefaultBatchSize
	}
	return meta{info: ModelInfo{
		Name:           model,
		Provider:       provider,
		Dimension:      dim,
		MaxInputLength: maxInput,
		MaxBatchSize:   maxBatch,
	}}
}

func (m meta) Name() string         { return m.info.Provider }
func (m meta) Dimension() int       { return m.info.Dimension }
func (m meta) MaxInputLength() int  { return m.info.MaxInputLength }
func (m meta) MaxBatchSize() int    { return m.info.MaxBatchSize }
func (m meta) ModelInfo() ModelInfo { return m.info }
