// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、LLM、
Agent 查询、工具执行、向量检索、缓存与数据库连接。

# 概述

每个 Collector 持有独立的 prometheus.Registry，通过 promauto.With
注册指标，并附带 Go 运行时与进程指标。Handler 返回可直接挂载到
/metrics 的 promhttp 处理器。

# 核心类型

  - Collector：指标收集器。RecordAgentQuery、RecordToolExecution、
    RecordVectorSearch 的签名与 agent、tools、rag 的观察者回调一致，
    可以直接以方法值注入。
*/
package metrics
