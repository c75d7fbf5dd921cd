// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package server 承载 agentbase serve 的 HTTP 监听。
//
// Manager 在 Start 中同步完成监听（端口占用立即报错），随后在后台处理请求；
// WaitForShutdown 等待 ctx、SIGINT/SIGTERM 或服务异常，然后在
// server.shutdown_timeout 内排空进行中的请求。ConfigFrom 把 server 配置段
// 换算为 http.Server 的超时参数。
package server
