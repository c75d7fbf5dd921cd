// Package memory 保存 agent 的对话历史。
//
// Backend 定义会话级别的读写接口，提供三种实现：
//   - InMemoryBackend：进程内 map，超出上限时淘汰最久未活跃的会话
//   - RedisBackend：hash + list + zset 布局，键带 TTL
//   - SQLBackend：gorm 管理的 agent_sessions / agent_messages 两张表
package memory
