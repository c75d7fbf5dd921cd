/*
包 scheduler 用 robfig/cron 调度后台维护任务。

内置两个任务：session_cleanup 调用记忆后端的 CleanupExpiredSessions，
cache_cleanup 清理 web_search 结果缓存。RegisterMaintenance 按
config.SchedulerConfig 注册它们，agentbase serve 在启动时运行调度器。
*/
package scheduler
