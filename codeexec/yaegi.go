package codeexec

import (
	"context"
	"errors"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// GoBackend 使用 yaegi 在进程内解释执行 Go 代码。
// 只导出 safeGoPackages 中的标准库符号，os、net、os/exec 等均不可导入。
type GoBackend struct {
	symbols interp.Exports
}

// NewGoBackend 创建 Go 解释器后端
func NewGoBackend() *GoBackend {
	return &GoBackend{symbols: safeSymbols()}
}

// safeSymbols 过滤 stdlib.Symbols，键形如 "encoding/json/json"
func safeSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		i := strings.LastIndex(key, "/")
		if i < 0 {
			continue
		}
		if safeGoPackages[key[:i]] {
			out[key] = syms
		}
	}
	return out
}

func (g *GoBackend) Name() string { return "go" }

func (g *GoBackend) Supports(lang Language) bool { return lang == LangGo }

func (g *GoBackend) Run(ctx context.Context, req *Request) (*RunOutput, error) {
	limit := req.Config.MaxOutputLength * 4
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}

	i := interp.New(interp.Options{
		Stdout: stdout,
		Stderr: stderr,
		Env:    []string{},
	})
	if err := i.Use(g.symbols); err != nil {
		return nil, err
	}

	// 完整程序（package main + func main）会自动执行 main；否则按语句片段求值
	_, err := i.EvalWithContext(ctx, req.Code)
	out := &RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		out.ExitCode = -1
		out.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		return out, ctx.Err()
	default:
		if out.Stderr != "" && !strings.HasSuffix(out.Stderr, "\n") {
			out.Stderr += "\n"
		}
		out.Stderr += err.Error()
		out.ExitCode = 1
	}
	return out, nil
}

func (g *GoBackend) Close() error { return nil }
