// Package factory 根据 llm.type 创建 Provider（openai、anthropic/claude、
// gemini、mock）。放在独立子包中，llm 根包因此不必依赖各 provider 实现。
package factory
