package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// HashProvider 是本地特征哈希嵌入器, 不依赖网络.
// 词项与相邻词对哈希到固定维度并按符号位累加, 最后归一化.
// 相同文本总是得到相同向量, 适合离线运行与测试.
type HashProvider struct {
	meta
}

type HashConfig struct {
	Dimensions     int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxInputLength int `json:"max_input_length,omitempty" yaml:"max_input_length,omitempty"`
}

// NewHashProvider 默认 384 维
func NewHashProvider(cfg HashConfig) *HashProvider {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	return &HashProvider{meta: newMeta("hash", "feature-hash", cfg.Dimensions, cfg.MaxInputLength, 0)}
}

func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(TruncateText(t, p.MaxInputLength()))
	}
	return out, nil
}

func (p *HashProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return embedOne(ctx, query, p.Embed)
}

func (p *HashProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.Embed(ctx, documents)
}

func (p *HashProvider) vector(text string) []float64 {
	vec := make([]float64, p.Dimension())
	terms := tokenize(text)
	for i, term := range terms {
		p.add(vec, term, 1)
		if i > 0 {
			p.add(vec, terms[i-1]+" "+term, 0.5)
		}
	}
	return Normalize(vec)
}

func (p *HashProvider) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(p.Dimension()))
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize 按非字母数字切分并转小写, CJK 字符各自成词.
func tokenize(text string) []string {
	var terms []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return terms
}
