package tokenizer

import (
	"errors"
	"unicode/utf8"
)

// 每条消息的角色标记开销与整段对话的结束开销，与 tiktoken 的计法保持一致
const (
	messageOverhead      = 4
	conversationOverhead = 3
	defaultMaxTokens     = 4096
)

var errEstimatorDecode = errors.New("estimator tokenizer does not support decode")

// EstimatorTokenizer 不依赖词表的估算分词器：CJK 约 1.5 字符/token，
// 其余字符约 4 字符/token。用于 Anthropic、Gemini 等没有公开 BPE 的模型，
// 以及 tiktoken 不可用时的降级。
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer maxTokens <= 0 时取 4096
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// estimate 非空文本至少计 1 个 token
func estimate(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	n := int(float64(cjk)/1.5 + float64(other)/4.0)
	if n == 0 {
		n = 1
	}
	return n
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return estimate(text), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := conversationOverhead
	for _, msg := range messages {
		total += estimate(msg.Content) + messageOverhead
	}
	return total, nil
}

// Encode 返回与估算数量等长的伪 token 序列，值为该 token 结束处的字符偏移。
// 估算器无法解码，TruncateToTokens 会据此退回按字符截断。
func (e *EstimatorTokenizer) Encode(text string) ([]int, error) {
	n := estimate(text)
	if n == 0 {
		return nil, nil
	}
	ids := make([]int, n)
	runes := utf8.RuneCountInString(text)
	for i := range ids {
		ids[i] = (i + 1) * runes / n
	}
	return ids, nil
}

func (e *EstimatorTokenizer) Decode([]int) (string, error) {
	return "", errEstimatorDecode
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

// isCJK 中日韩统一表意文字、扩展 A/B、兼容表意文字、CJK 标点与全角字符
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x20000 && r <= 0x2A6DF,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0x3000 && r <= 0x303F,
		r >= 0xFF00 && r <= 0xFFEF:
		return true
	}
	return false
}
