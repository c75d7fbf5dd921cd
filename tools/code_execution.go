package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/BaSui01/agentbase/codeexec"
)

// CodeExecutionTool 在受限环境中执行代码片段
type CodeExecutionTool struct {
	executor *codeexec.Executor
}

// NewCodeExecutionTool 包装一个已装配好后端的执行器
func NewCodeExecutionTool(executor *codeexec.Executor) *CodeExecutionTool {
	return &CodeExecutionTool{executor: executor}
}

func (t *CodeExecutionTool) Name() string     { return "code_execution" }
func (t *CodeExecutionTool) Category() string { return CategoryDevelopment }

func (t *CodeExecutionTool) Description() string {
	names := make([]string, 0, 4)
	for _, l := range t.executor.SupportedLanguages() {
		names = append(names, string(l))
	}
	return "Executes code in a sandboxed environment. Supports " + strings.Join(names, ", ") + ". " +
		"Includes safety restrictions and timeout limits. " +
		"Example: 'run python: print(2 + 2)' or 'execute: console.log(\"Hello World\")'"
}

func (t *CodeExecutionTool) UsageExamples() []string {
	return []string{
		"run python: print('Hello World')",
		"execute: console.log('Hello')",
		"```python\nprint(2+2)\n```",
		"bash: echo $((6 * 7))",
	}
}

type codeExecutionInput struct {
	Input string `json:"input" jsonschema:"description=Code to execute with optional language specification"`
}

func (t *CodeExecutionTool) ParameterSchema() map[string]any {
	return GenerateSchema[codeExecutionInput]()
}

// Validate 输入必须能解析出语言与代码
func (t *CodeExecutionTool) Validate(input string) bool {
	_, _, err := t.executor.Parse(input)
	return err == nil
}

// Executor 返回底层执行器
func (t *CodeExecutionTool) Executor() *codeexec.Executor { return t.executor }

func (t *CodeExecutionTool) Execute(ctx context.Context, input string, _ map[string]any) (*Result, error) {
	res, err := t.executor.Run(ctx, input)
	if err != nil {
		var (
			langErr *codeexec.LanguageError
			sv      *codeexec.SecurityViolation
		)
		switch {
		case errors.Is(err, codeexec.ErrNoCode), errors.As(err, &langErr), errors.As(err, &sv):
			return Fail(err.Error()), nil
		default:
			return Fail("Code execution error: " + err.Error()), nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !res.TimedOut {
		return nil, ctxErr
	}

	return &Result{
		Success: res.Success,
		Content: res.Output,
		Error:   res.Error,
		Metadata: map[string]any{
			"language":       string(res.Language),
			"execution_time": res.ExecutionTime.Seconds(),
			"exit_code":      res.ExitCode,
			"timeout":        res.TimedOut,
			"backend":        res.Backend,
		},
	}, nil
}
