package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer 统一的 token 计数接口
type Tokenizer interface {
	CountTokens(text string) (int, error)
	// CountMessages 包含每条消息的角色与分隔符开销
	CountMessages(messages []Message) (int, error)
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	// MaxTokens 模型上下文窗口
	MaxTokens() int
	Name() string
}

// Message 只含计数需要的字段，tokenizer 因此不依赖 llm 包
type Message struct {
	Role    string
	Content string
}

var registry = struct {
	sync.RWMutex
	byModel map[string]Tokenizer
}{byModel: map[string]Tokenizer{}}

// RegisterTokenizer 注册后 ForModel 优先返回它，model 作为前缀匹配
func RegisterTokenizer(model string, t Tokenizer) {
	registry.Lock()
	defer registry.Unlock()
	registry.byModel[model] = t
}

// GetTokenizer 精确匹配优先，否则取最长前缀
func GetTokenizer(model string) (Tokenizer, error) {
	registry.RLock()
	defer registry.RUnlock()

	if t, ok := registry.byModel[model]; ok {
		return t, nil
	}
	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range registry.byModel {
		if len(prefix) > bestLen && strings.HasPrefix(model, prefix) {
			best, bestLen = t, len(prefix)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
	}
	return best, nil
}

func GetTokenizerOrEstimator(model string) Tokenizer {
	if t, err := GetTokenizer(model); err == nil {
		return t
	}
	return NewEstimatorTokenizer(model, 0)
}

// ForModel 注册表优先；OpenAI 家族用 tiktoken，BPE 数据不可用（如离线）时
// 自动降级为估算；其余模型直接估算。
func ForModel(model string) Tokenizer {
	if t, err := GetTokenizer(model); err == nil {
		return t
	}
	if !IsOpenAIModel(model) {
		return NewEstimatorTokenizer(model, 0)
	}
	tk, _ := NewTiktokenTokenizer(model)
	return NewFallback(tk, NewEstimatorTokenizer(model, tk.MaxTokens()))
}

var openAIPrefixes = []string{"gpt-", "o1", "o3", "o4", "text-embedding-", "text-davinci"}

func IsOpenAIModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range openAIPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

// Count 出错时记 0，用于日志与指标等非关键路径
func Count(t Tokenizer, text string) int {
	n, err := t.CountTokens(text)
	if err != nil {
		return 0
	}
	return n
}

// TruncateToTokens 截断到不超过 maxTokens 个 token。能解码的分词器按 token 截断；
// 否则先按比例估计字符数，再每次收缩 10% 直到满足。
func TruncateToTokens(t Tokenizer, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	n, err := t.CountTokens(text)
	if err != nil || n <= maxTokens {
		return text
	}

	if ids, err := t.Encode(text); err == nil && len(ids) > maxTokens {
		if out, err := t.Decode(ids[:maxTokens]); err == nil {
			return out
		}
	}

	runes := []rune(text)
	for cut := len(runes) * maxTokens / n; cut > 0; cut = cut * 9 / 10 {
		candidate := string(runes[:cut])
		if c, err := t.CountTokens(candidate); err == nil && c <= maxTokens {
			return candidate
		}
	}
	return ""
}
