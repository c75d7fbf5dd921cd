/*
Package handlers 提供 agentbase HTTP API 的请求处理器实现。

# 核心类型

  - AgentHandler：对话、会话、文档与工具端点，按路径中的 agent 类型分发
  - ChatStreamHandler：WebSocket 流式对话（sources → delta... → done）
  - ConfigHandler：输出脱敏后的当前配置
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - StatusRecorder    记录状态码与响应字节数

未知 agent 类型返回 404 AGENT_NOT_FOUND，并在 error.details 中列出可用类型。
*/
package handlers
