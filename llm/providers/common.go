package providers

import "github.com/BaSui01/agentbase/llm"

// 请求字段优先于 Provider 配置；零值表示未设置。

func ChooseModel(req *llm.ChatRequest, configured, fallback string) string {
	switch {
	case req != nil && req.Model != "":
		return req.Model
	case configured != "":
		return configured
	}
	return fallback
}

func ChooseTemperature(req *llm.ChatRequest, configured float64) float64 {
	if req != nil && req.Temperature > 0 {
		return req.Temperature
	}
	return configured
}

func ChooseMaxTokens(req *llm.ChatRequest, configured int) int {
	if req != nil && req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return configured
}
