package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// 工具分类
const (
	CategoryGeneral     = "general"
	CategoryMath        = "math"
	CategoryFileSystem  = "filesystem"
	CategoryWeb         = "web"
	CategoryDevelopment = "development"
)

// Result 工具执行结果。工具自身的失败通过 Success=false 与 Error 表达，
// Execute 返回的 error 只用于上下文取消等基础设施错误。
type Result struct {
	Success  bool           `json:"success"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Succeed 构造成功结果
func Succeed(content string, metadata map[string]any) *Result {
	return &Result{Success: true, Content: content, Metadata: metadata}
}

// Fail 构造失败结果
func Fail(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// Tool agent 可调用的工具
type Tool interface {
	Name() string
	Description() string
	Category() string
	Execute(ctx context.Context, input string, params map[string]any) (*Result, error)
	// Validate 执行前的输入检查
	Validate(input string) bool
	UsageExamples() []string
	ParameterSchema() map[string]any
}

// DefaultInput 默认参数结构：单个必填字符串 input
type DefaultInput struct {
	Input string `json:"input" jsonschema:"description=Input text for the tool"`
}

// GenerateSchema 由 Go 结构体生成 JSON Schema（内联定义，不使用 $ref）
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DefaultParameterSchema 返回 DefaultInput 的 schema
func DefaultParameterSchema() map[string]any {
	return GenerateSchema[DefaultInput]()
}

// NonEmpty 默认输入校验：去掉空白后非空
func NonEmpty(input string) bool {
	return strings.TrimSpace(input) != ""
}
