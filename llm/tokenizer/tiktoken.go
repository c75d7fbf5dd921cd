package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// openAIWindows 按前缀匹配，长前缀排在前面（gpt-4o 先于 gpt-4）
var openAIWindows = []struct {
	prefix string
	encodingInfo
}{
	{"gpt-4o-mini", encodingInfo{"o200k_base", 128000}},
	{"gpt-4o", encodingInfo{"o200k_base", 128000}},
	{"o1", encodingInfo{"o200k_base", 200000}},
	{"o3", encodingInfo{"o200k_base", 200000}},
	{"o4", encodingInfo{"o200k_base", 200000}},
	{"gpt-4-turbo", encodingInfo{"cl100k_base", 128000}},
	{"gpt-4", encodingInfo{"cl100k_base", 8192}},
	{"gpt-3.5-turbo", encodingInfo{"cl100k_base", 16385}},
	{"text-embedding-", encodingInfo{"cl100k_base", 8191}},
}

// lookupEncoding 未知模型按 cl100k_base、8192 处理
func lookupEncoding(model string) encodingInfo {
	m := strings.ToLower(model)
	for _, w := range openAIWindows {
		if strings.HasPrefix(m, w.prefix) {
			return w.encodingInfo
		}
	}
	return encodingInfo{encoding: "cl100k_base", maxTokens: 8192}
}

// TiktokenTokenizer OpenAI 家族的 BPE 计数。BPE 数据首次使用时加载
// （可能需要联网下载），失败后每次调用都返回同一错误，交由 Fallback 降级。
type TiktokenTokenizer struct {
	encodingInfo

	load func() (*tiktoken.Tiktoken, error)
}

func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	info := lookupEncoding(model)
	return &TiktokenTokenizer{
		encodingInfo: info,
		load: sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
			return tiktoken.GetEncoding(info.encoding)
		}),
	}, nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	enc, err := t.load()
	if err != nil {
		return nil, err
	}
	return enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	ids, err := t.Encode(text)
	return len(ids), err
}

// CountMessages 每条消息额外计 role 与 4 个分隔 token，整段对话再加 3
func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	enc, err := t.load()
	if err != nil {
		return 0, err
	}
	total := conversationOverhead
	for _, m := range messages {
		total += messageOverhead + len(enc.Encode(m.Role, nil, nil)) + len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	enc, err := t.load()
	if err != nil {
		return "", err
	}
	return enc.Decode(tokens), nil
}

func (t *TiktokenTokenizer) MaxTokens() int { return t.maxTokens }

func (t *TiktokenTokenizer) Name() string { return "tiktoken[" + t.encoding + "]" }
