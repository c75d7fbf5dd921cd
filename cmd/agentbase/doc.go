// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 agentbase 的命令行入口：HTTP 服务端、数据库迁移、
MCP stdio 服务以及调用 REST API 的终端客户端。

# 子命令

  - serve：启动 HTTP API（/agents、/health、/metrics、WebSocket 流式聊天）
  - migrate：up/down/status/version/info/goto/force，基于 golang-migrate
  - mcp：以 Model Context Protocol 暴露 agent 工具与 chat
  - init-config：写出默认 default.yaml
  - config：查看合并后的配置（环境变量 > YAML > 默认值）
  - agents / chat / history / tools / tool / interactive / health：REST 客户端
  - version

# 服务端

Server 按顺序初始化遥测、Prometheus 指标、agent 运行时、健康检查、
维护任务（cron）与配置目录监听，然后用 internal/server.Manager 启动 HTTP。
中间件链从外到内为 Recovery、RequestID、SecurityHeaders、OTelTracing、
MetricsMiddleware、RequestLogger、CORS、RateLimiter、Authentication。
认证支持 API Key（X-API-Key 或 Bearer）与 HS256 JWT，公开路径见 api.PublicPaths。

# 客户端

客户端把 "agent:会话名" 映射到服务端会话 ID，保存在 ~/.agentbase_sessions.json。
默认使用 lipgloss 着色并以 glamour 渲染 markdown 回复，--plain 关闭。

构建信息 Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
