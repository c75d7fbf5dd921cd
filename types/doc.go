// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 agentbase 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、tools、api
等上层模块提供统一的错误契约与 Context 传播工具。

# 核心类型

  - Error / ErrorCode：结构化错误，含 HTTP 状态码与 Retryable 标记
  - HTTPStatusFor：错误码到默认 HTTP 状态码的映射

# Context 传播

  - WithRequestID / WithUserID / WithSessionID / WithAgentType
*/
package types
