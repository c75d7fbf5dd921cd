// Package openai 通过 HTTP 调用 Chat Completions 接口。
//
// 任何兼容该线格式的服务（vLLM、Ollama、DeepSeek 等）都可以通过 base_url 接入，
// base_url 末尾带不带 /v1 均可。流式输出解析 SSE，并请求在最后一个分片附带
// usage。OpenAI 模型用 tiktoken 计数，离线时降级为估算。
package openai
