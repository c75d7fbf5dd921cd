// Package api 装配 agentbase 的 HTTP 路由。
//
// # 路由
//
//	GET    /health, /healthz, /ready, /version, /metrics
//	GET    /agents
//	GET    /agents/{type}
//	POST   /agents/{type}/chat
//	GET    /agents/{type}/chat/ws          WebSocket 流式对话
//	GET    /agents/{type}/sessions         ?user_id=&limit=50&offset=0
//	GET    /agents/{type}/sessions/{id}
//	DELETE /agents/{type}/sessions/{id}
//	POST   /agents/{type}/documents
//	GET    /agents/{type}/tools
//	POST   /agents/{type}/tools/{name}
//	GET    /config                         敏感字段已脱敏
//
// 所有 JSON 响应使用统一信封 {success, data, error, timestamp, request_id}，
// 见 handlers.Response。
//
// # 认证
//
// 启用 auth 后，除 PublicPaths 外的路径需要 X-API-Key 头或
// Authorization: Bearer <JWT>。
package api
