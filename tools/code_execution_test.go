package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/codeexec"
)

type stubBackend struct{}

func (stubBackend) Name() string { return "stub" }

func (stubBackend) Supports(lang codeexec.Language) bool { return lang != codeexec.LangGo }

func (stubBackend) Run(_ context.Context, req *codeexec.Request) (*codeexec.RunOutput, error) {
	return &codeexec.RunOutput{Stdout: "ran " + string(req.Language) + "\n"}, nil
}

func (stubBackend) Close() error { return nil }

func newTestCodeTool() *CodeExecutionTool {
	return NewCodeExecutionTool(codeexec.NewExecutor(codeexec.DefaultConfig(), zap.NewNop(), stubBackend{}))
}

func TestCodeExecutionTool_Execute(t *testing.T) {
	tool := newTestCodeTool()

	res, err := tool.Execute(context.Background(), "run python: print(2 + 2)", nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "ran python\n", res.Content)
	assert.Equal(t, "python", res.Metadata["language"])
	assert.Equal(t, 0, res.Metadata["exit_code"])
	assert.Equal(t, false, res.Metadata["timeout"])
	assert.IsType(t, float64(0), res.Metadata["execution_time"])
}

func TestCodeExecutionTool_InputErrors(t *testing.T) {
	tool := newTestCodeTool()
	ctx := context.Background()

	res, err := tool.Execute(ctx, "please do something", nil)
	require.NoError(t, err)
	assert.Equal(t, "Please specify the programming language and code to execute.", res.Error)

	res, err = tool.Execute(ctx, "run python: import subprocess", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Security violation: Unsafe import detected: subprocess", res.Error)

	res, err = tool.Execute(ctx, "```js\nrequire('child_process')\n```", nil)
	require.NoError(t, err)
	assert.Equal(t, `Security violation: Unsafe pattern detected: require("child_process")`, res.Error)
}

func TestCodeExecutionTool_Describe(t *testing.T) {
	tool := newTestCodeTool()
	assert.Equal(t, "code_execution", tool.Name())
	assert.Equal(t, CategoryDevelopment, tool.Category())
	assert.Contains(t, tool.Description(), "python, javascript, bash")
	assert.True(t, tool.Validate("bash: echo hi"))
	assert.False(t, tool.Validate("hello"))

	schema := tool.ParameterSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"input"}, schema["required"])
}
