package codeexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type interpreter struct {
	command   string
	extension string
}

// ProcessBackend 以本地子进程运行代码
type ProcessBackend struct {
	interpreters map[Language]interpreter
	logger       *zap.Logger
}

// NewProcessBackend 创建子进程后端
func NewProcessBackend(logger *zap.Logger) *ProcessBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessBackend{
		interpreters: map[Language]interpreter{
			LangPython:     {command: "python3", extension: ".py"},
			LangJavaScript: {command: "node", extension: ".js"},
			LangBash:       {command: "bash", extension: ".sh"},
		},
		logger: logger.With(zap.String("backend", "process")),
	}
}

func (p *ProcessBackend) Name() string { return "process" }

func (p *ProcessBackend) Supports(lang Language) bool {
	_, ok := p.interpreters[lang]
	return ok
}

func (p *ProcessBackend) Run(ctx context.Context, req *Request) (*RunOutput, error) {
	interp, ok := p.interpreters[req.Language]
	if !ok {
		return nil, fmt.Errorf("process backend does not support %s", req.Language)
	}

	f, err := os.CreateTemp(req.WorkDir, "exec-*"+interp.extension)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(req.Code); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	name, args := limitedCommand(req.Language, interp.command, path, req.Config)
	cmd := exec.Command(name, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = sandboxEnv(req.WorkDir, req.Config.EnableNetwork)
	setProcessGroup(cmd)

	limit := req.Config.MaxOutputLength * 4
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", interp.command, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		out := &RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitCode()
		default:
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		if err := killProcessGroup(cmd); err != nil {
			p.logger.Warn("kill process group failed", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		return &RunOutput{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: -1,
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		}, ctx.Err()
	}
}

func (p *ProcessBackend) Close() error { return nil }

// limitedCommand 在类 Unix 系统上通过 sh 的 ulimit 施加 CPU 与虚拟内存限制。
// node 预留大量虚拟地址空间，改用 --max-old-space-size 限制堆。
func limitedCommand(lang Language, command, path string, cfg Config) (string, []string) {
	args := []string{path}
	if lang == LangJavaScript {
		args = []string{"--max-old-space-size=" + strconv.Itoa(cfg.MaxMemoryMB), path}
	}
	if runtime.GOOS == "windows" {
		return command, args
	}

	limits := []string{"ulimit -t " + strconv.Itoa(cfg.MaxCPUTime)}
	if lang != LangJavaScript {
		limits = append(limits, "ulimit -v "+strconv.Itoa(cfg.MaxMemoryMB*1024))
	}
	script := strings.Join(limits, " 2>/dev/null; ") + ` 2>/dev/null; exec "$@"`
	return "/bin/sh", append([]string{"-c", script, "sh", command}, args...)
}

// sandboxEnv 只保留运行解释器所需的最小环境变量
func sandboxEnv(workDir string, network bool) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"LANG=C.UTF-8",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONIOENCODING=utf-8",
	}
	if root := os.Getenv("SYSTEMROOT"); root != "" {
		env = append(env, "SYSTEMROOT="+root)
	}
	if !network {
		env = append(env,
			"http_proxy=localhost:1",
			"https_proxy=localhost:1",
			"HTTP_PROXY=localhost:1",
			"HTTPS_PROXY=localhost:1",
			"no_proxy=",
		)
	}
	return env
}

// cappedBuffer 超过 limit 的输出直接丢弃
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }
