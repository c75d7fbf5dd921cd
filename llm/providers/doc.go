// Package providers 汇集各 LLM Provider 共享的配置结构、上下文窗口表与
// 请求参数取值规则。具体实现位于 openai、anthropic、gemini、mock 子包。
package providers
