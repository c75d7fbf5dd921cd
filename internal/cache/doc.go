// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package cache 封装带键前缀的 Redis 访问。
//
// web_search 的 Redis 结果缓存通过 Manager 读写 JSON 条目；Redis 会话记忆
// 通过 Client 复用同一个连接池。WithLookupObserver 把命中与未命中上报给
// Prometheus 指标。配置了 HealthCheckInterval 时后台定期 PING，Close 后退出。
package cache
