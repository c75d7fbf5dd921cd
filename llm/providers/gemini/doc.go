// Package gemini 基于 google.golang.org/genai 的 Gemini Provider。
//
// system 消息合并为 SystemInstruction，assistant 角色映射为 model。
// 流式输出使用 GenerateContentStream；genai.APIError 按状态码映射为 llm.Error。
package gemini
