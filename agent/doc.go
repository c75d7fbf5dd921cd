// Package agent 实现检索增强的对话管线。
//
// 每个 Agent 对应一种 agent 类型（general、code_assistant、research_agent、
// document_qa），处理一次查询依次经过：加载会话历史、知识库检索并按 token
// 预算裁剪、按类型构建系统提示词、调用 LLM、保存本轮对话。任一阶段失败都会
// 降级继续，最终回复总会返回给调用方。
//
// Manager 按类型持有共享组件构建出的 Agent，供 API 与 CLI 使用。
package agent
