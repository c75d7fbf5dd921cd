// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层。

# 概述

[Provider] 屏蔽不同模型服务商在接口、鉴权、错误语义和流式协议上的差异，
agent 流水线只依赖该接口完成补全、流式输出与 token 计数。

# 核心类型

  - [Message]：对话消息（system / user / assistant）
  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [StreamChunk]：流式输出分片，通道关闭表示结束
  - [ModelInfo]：模型能力描述
  - [Error]：Provider 级错误，由 [MapHTTPError] 按 HTTP 状态码映射

# 辅助函数

  - [CountMessageTokens]：按 "role: content" 计数并附加每条消息 4 token 开销
  - [FormatMessagesForPrompt]：渲染为 "System:/Human:/Assistant:" 形式的单一提示词
  - [CollectStream]：将流式输出聚合为完整响应

# 相关子包

  - llm/providers/openai：OpenAI 兼容 HTTP 接口（含 SSE 流式）
  - llm/providers/anthropic：Anthropic Messages API
  - llm/providers/gemini：Google Gemini GenerateContent
  - llm/providers/mock：脚本化回复，用于测试与离线运行
  - llm/tokenizer：tiktoken 计数与 CJK 感知估算
  - llm/embedding：文本嵌入 Provider
*/
package llm
