// Package tokenizer 为 agent 上下文预算提供 token 计数与截断。
//
// OpenAI 家族模型使用 tiktoken-go 精确计数（BPE 数据不可用时经 Fallback
// 自动降级），其他模型使用区分 CJK 的 EstimatorTokenizer。TruncateToTokens
// 在检索片段超出 rag.max_context_tokens 时裁剪内容。
package tokenizer
