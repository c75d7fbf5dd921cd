// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package migration 管理 SQL 文档存储与会话记忆使用的表结构。

迁移文件按方言内嵌（postgres、mysql、sqlite），由 golang-migrate 执行：

	000001_create_documents     documents 表
	000002_create_agent_memory  agent_sessions 与 agent_messages 表

列定义与 docstore、memory 的 GORM 模型一致。生产环境可以关闭
database.auto_migrate，改用 `agentbase migrate up` 管理 Schema。
SQLite 走纯 Go 的 glebarez/go-sqlite，无需 CGO。

DefaultMigrator 实现 Migrator 接口；CLI 把各操作格式化为终端输出，
供 cmd/agentbase 的 migrate 子命令调用。
*/
package migration
