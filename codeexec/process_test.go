//go:build unix

package codeexec

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestProcessBackend_Bash(t *testing.T) {
	requireBash(t)
	cfg := DefaultConfig()
	cfg.WorkingDirectory = t.TempDir()
	e := NewExecutor(cfg, zap.NewNop(), NewProcessBackend(zap.NewNop()))

	res, err := e.Execute(context.Background(), LangBash, "echo hello; echo oops >&2; exit 4")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "hello\n\nSTDERR:\noops\n", res.Output)
}

func TestProcessBackend_Timeout(t *testing.T) {
	requireBash(t)
	cfg := DefaultConfig()
	cfg.TimeoutSeconds = 1
	cfg.WorkingDirectory = t.TempDir()
	e := NewExecutor(cfg, zap.NewNop(), NewProcessBackend(zap.NewNop()))

	start := time.Now()
	res, err := e.Execute(context.Background(), LangBash, "sleep 30")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLimitedCommand(t *testing.T) {
	cfg := DefaultConfig()
	name, args := limitedCommand(LangPython, "python3", "/tmp/x.py", cfg)
	assert.Equal(t, "/bin/sh", name)
	assert.Equal(t, "ulimit -t 10 2>/dev/null; ulimit -v 131072 2>/dev/null; exec \"$@\"", args[1])
	assert.Equal(t, []string{"sh", "python3", "/tmp/x.py"}, args[2:])

	_, args = limitedCommand(LangJavaScript, "node", "/tmp/x.js", cfg)
	assert.Equal(t, "ulimit -t 10 2>/dev/null; exec \"$@\"", args[1])
	assert.Equal(t, []string{"sh", "node", "--max-old-space-size=128", "/tmp/x.js"}, args[2:])
}
