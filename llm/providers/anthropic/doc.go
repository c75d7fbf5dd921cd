// Package claude 基于 anthropic-sdk-go 的 Claude Provider。
//
// system 消息合并为 Messages API 顶层的 system 字段；流式输出读取
// content_block_delta 与 message_delta 事件。HealthCheck 查询配置的模型，
// SDK 错误按 HTTP 状态码映射为 llm.Error。计数使用估算分词器。
package claude
