package tokenizer

import "sync/atomic"

// Fallback 优先使用 primary，primary 出错后永久切换到 secondary。
type Fallback struct {
	primary   Tokenizer
	secondary Tokenizer
	degraded  atomic.Bool
}

// NewFallback 创建降级分词器。
func NewFallback(primary, secondary Tokenizer) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) active() Tokenizer {
	if f.degraded.Load() {
		return f.secondary
	}
	return f.primary
}

func (f *Fallback) CountTokens(text string) (int, error) {
	if !f.degraded.Load() {
		if n, err := f.primary.CountTokens(text); err == nil {
			return n, nil
		}
		f.degraded.Store(true)
	}
	return f.secondary.CountTokens(text)
}

func (f *Fallback) CountMessages(messages []Message) (int, error) {
	if !f.degraded.Load() {
		if n, err := f.primary.CountMessages(messages); err == nil {
			return n, nil
		}
		f.degraded.Store(true)
	}
	return f.secondary.CountMessages(messages)
}

func (f *Fallback) Encode(text string) ([]int, error) {
	if !f.degraded.Load() {
		if ids, err := f.primary.Encode(text); err == nil {
			return ids, nil
		}
		f.degraded.Store(true)
	}
	return f.secondary.Encode(text)
}

func (f *Fallback) Decode(tokens []int) (string, error) {
	return f.active().Decode(tokens)
}

func (f *Fallback) MaxTokens() int { return f.primary.MaxTokens() }

func (f *Fallback) Name() string { return f.active().Name() }

// Degraded 报告是否已降级到 secondary。
func (f *Fallback) Degraded() bool { return f.degraded.Load() }
