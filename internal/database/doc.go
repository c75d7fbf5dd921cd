// Package database 打开 GORM 连接并管理连接池。
//
// 驱动名支持 sqlite（glebarez 纯 Go 实现）、postgres、mysql。
// SQL 会话记忆与 SQL 文档存储共享同一个 PoolManager。
package database
