// Package factory 按类型名创建向量存储、文档存储、会话记忆、LLM、嵌入、
// 工具与配置源，并从全局配置装配出全部 agent。
//
// 每类组件一个注册表，RegisterBuiltins 注册内置实现；调用方可以用
// Register* 覆盖或追加实现。数据库连接池与 Redis 客户端由 Env 按需打开，
// 在 SQL/Redis 后端之间共享。
package factory
