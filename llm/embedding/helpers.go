package embedding

import (
	"context"
	"fmt"
	"math"
)

const (
	// DefaultBatchSize 是 BatchEmbed 的默认批大小.
	DefaultBatchSize = 100
	// DefaultMaxInputLength 是未声明上限时单条输入的最大字符数.
	DefaultMaxInputLength = 8191
)

// EmbedFunc 对一批文本生成嵌入.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float64, error)

// ProgressFunc 在每批完成后回调, batch 从 1 开始.
type ProgressFunc func(batch, total int)

// CosineSimilarity 计算余弦相似度, 任一向量模长为 0 时返回 0.
// 长度不同时只比较公共前缀.
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		magA += v * v
	}
	for _, v := range b {
		magB += v * v
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Normalize 归一化为单位长度, 零向量原样返回.
func Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	mag := math.Sqrt(sum)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / mag
	}
	return out
}

// BatchEmbed 按 batchSize 分批调用 fn, batchSize <= 0 时使用 DefaultBatchSize.
func BatchEmbed(ctx context.Context, fn EmbedFunc, texts []string, batchSize int, progress ProgressFunc) ([][]float64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	total := (len(texts) + batchSize - 1) / batchSize
	out := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := fn(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d/%d: %w", i/batchSize+1, total, err)
		}
		out = append(out, vecs...)
		if progress != nil {
			progress(i/batchSize+1, total)
		}
	}
	return out, nil
}

// BatchEmbedProvider 是 BatchEmbed 针对 Provider 的便捷形式.
func BatchEmbedProvider(ctx context.Context, p Provider, texts []string, batchSize int, progress ProgressFunc) ([][]float64, error) {
	return BatchEmbed(ctx, p.EmbedDocuments, texts, batchSize, progress)
}

// TruncateText 按 rune 截断, maxLength <= 0 时使用 DefaultMaxInputLength.
func TruncateText(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}
	if len(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength])
}

func embedOne(ctx context.Context, text string, fn EmbedFunc) ([]float64, error) {
	vecs, err := fn(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}
