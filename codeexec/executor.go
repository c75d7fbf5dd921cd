package codeexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const truncatedSuffix = "\n... (output truncated)"

// ErrNoCode 输入中没有可识别的语言或代码
var ErrNoCode = errors.New("Please specify the programming language and code to execute.")

// LanguageError 语言不在允许列表中
type LanguageError struct {
	Language Language
	Allowed  []Language
}

func (e *LanguageError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, l := range e.Allowed {
		names[i] = string(l)
	}
	return fmt.Sprintf("Language '%s' not supported. Allowed: %s", e.Language, strings.Join(names, ", "))
}

// Request 交给后端执行的请求
type Request struct {
	Language Language
	Code     string
	WorkDir  string
	Config   Config
}

// RunOutput 后端返回的原始输出
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Backend 执行后端
type Backend interface {
	Name() string
	Supports(lang Language) bool
	Run(ctx context.Context, req *Request) (*RunOutput, error)
	Close() error
}

// Result 一次执行的结果
type Result struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Error         string        `json:"error,omitempty"`
	Language      Language      `json:"language"`
	Backend       string        `json:"backend"`
	ExecutionTime time.Duration `json:"execution_time"`
	ExitCode      int           `json:"exit_code"`
	TimedOut      bool          `json:"timeout"`
	Truncated     bool          `json:"truncated,omitempty"`
}

// Stats 执行统计
type Stats struct {
	TotalExecutions   int64         `json:"total_executions"`
	SuccessExecutions int64         `json:"success_executions"`
	FailedExecutions  int64         `json:"failed_executions"`
	TimeoutExecutions int64         `json:"timeout_executions"`
	TotalDuration     time.Duration `json:"total_duration"`
}

// Executor 解析、校验并分发代码执行请求
type Executor struct {
	config    Config
	languages []Language
	validator *Validator
	backends  []Backend
	logger    *zap.Logger

	mu    sync.RWMutex
	stats Stats
}

// NewExecutor 创建执行器。backends 按顺序匹配，第一个支持该语言的后端负责执行。
func NewExecutor(cfg Config, logger *zap.Logger, backends ...Backend) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = os.TempDir()
	}
	return &Executor{
		config:    cfg,
		languages: cfg.Languages(),
		validator: NewValidator(cfg.MaxCodeLength),
		backends:  backends,
		logger:    logger.With(zap.String("component", "code_executor")),
	}
}

// NewExecutorFromConfig 按 Backend 配置装配后端；EnableGo 时附加 yaegi 后端
func NewExecutorFromConfig(cfg Config, logger *zap.Logger) (*Executor, error) {
	cfg = cfg.withDefaults()
	var backends []Backend
	if cfg.EnableGo {
		backends = append(backends, NewGoBackend())
	}
	switch cfg.Backend {
	case "process":
		backends = append(backends, NewProcessBackend(logger))
	case "docker":
		d, err := NewDockerBackend(logger)
		if err != nil {
			return nil, err
		}
		backends = append(backends, d)
	default:
		return nil, fmt.Errorf("unknown code execution backend: %s", cfg.Backend)
	}
	return NewExecutor(cfg, logger, backends...), nil
}

// Config 返回补齐默认值后的配置
func (e *Executor) Config() Config { return e.config }

// SupportedLanguages 返回允许的语言
func (e *Executor) SupportedLanguages() []Language {
	out := make([]Language, len(e.languages))
	copy(out, e.languages)
	return out
}

// Parse 解析自由文本输入
func (e *Executor) Parse(input string) (Language, string, error) {
	lang, code, ok := ParseInput(input, e.languages)
	if !ok || strings.TrimSpace(code) == "" {
		return "", "", ErrNoCode
	}
	return lang, code, nil
}

// Run 解析输入并执行
func (e *Executor) Run(ctx context.Context, input string) (*Result, error) {
	lang, code, err := e.Parse(input)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, lang, code)
}

// Execute 校验并执行代码。输入问题以 error 返回（ErrNoCode、*LanguageError、
// *SecurityViolation），运行期失败体现在 Result 中。
func (e *Executor) Execute(ctx context.Context, lang Language, code string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrNoCode
	}
	if !containsLang(e.languages, lang) {
		return nil, &LanguageError{Language: lang, Allowed: e.SupportedLanguages()}
	}
	if err := e.validator.Validate(lang, code); err != nil {
		return nil, err
	}

	backend := e.backendFor(lang)
	if backend == nil {
		return nil, &LanguageError{Language: lang, Allowed: e.SupportedLanguages()}
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout())
	defer cancel()

	e.logger.Debug("executing code",
		zap.String("language", string(lang)),
		zap.String("backend", backend.Name()),
		zap.Int("code_length", len(code)))

	out, err := backend.Run(runCtx, &Request{
		Language: lang,
		Code:     code,
		WorkDir:  e.config.WorkingDirectory,
		Config:   e.config,
	})
	result := e.buildResult(runCtx, lang, backend.Name(), out, err)
	result.ExecutionTime = time.Since(start)

	e.mu.Lock()
	e.stats.TotalExecutions++
	e.stats.TotalDuration += result.ExecutionTime
	switch {
	case result.Success:
		e.stats.SuccessExecutions++
	case result.TimedOut:
		e.stats.FailedExecutions++
		e.stats.TimeoutExecutions++
	default:
		e.stats.FailedExecutions++
	}
	e.mu.Unlock()

	if result.TimedOut {
		e.logger.Warn("code execution timed out", zap.String("language", string(lang)))
	}
	return result, nil
}

func (e *Executor) buildResult(runCtx context.Context, lang Language, backend string, out *RunOutput, err error) *Result {
	result := &Result{Language: lang, Backend: backend}

	timedOut := (out != nil && out.TimedOut) || errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if timedOut {
		result.Output = fmt.Sprintf("Execution timed out after %d seconds", e.config.TimeoutSeconds)
		result.ExitCode = -1
		result.TimedOut = true
		result.Error = "Timeout"
		return result
	}
	if err != nil {
		result.ExitCode = -1
		result.Error = err.Error()
		return result
	}

	output := out.Stdout
	if out.Stderr != "" {
		output += "\nSTDERR:\n" + out.Stderr
	}
	result.Output, result.Truncated = truncateOutput(output, e.config.MaxOutputLength)
	result.ExitCode = out.ExitCode
	result.Success = out.ExitCode == 0
	if !result.Success {
		result.Error = out.Stderr
	}
	return result
}

// truncateOutput 按字符截断并追加截断提示
func truncateOutput(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	return string([]rune(s)[:max]) + truncatedSuffix, true
}

func (e *Executor) backendFor(lang Language) Backend {
	for _, b := range e.backends {
		if b.Supports(lang) {
			return b
		}
	}
	return nil
}

// Stats 返回执行统计
func (e *Executor) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// EnvironmentStatus 单个语言的环境检测结果
type EnvironmentStatus struct {
	Available bool   `json:"available"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
}

var probes = map[Language]string{
	LangPython:     "print('Python OK')",
	LangJavaScript: "console.log('JavaScript OK')",
	LangBash:       "echo 'Bash OK'",
	LangGo:         "import \"fmt\"\nfmt.Println(\"Go OK\")",
}

// TestEnvironment 对每种允许的语言运行一段探测代码
func (e *Executor) TestEnvironment(ctx context.Context) map[Language]EnvironmentStatus {
	out := make(map[Language]EnvironmentStatus, len(e.languages))
	for _, lang := range e.languages {
		code, ok := probes[lang]
		if !ok {
			continue
		}
		res, err := e.Execute(ctx, lang, code)
		if err != nil {
			out[lang] = EnvironmentStatus{Error: err.Error()}
			continue
		}
		out[lang] = EnvironmentStatus{Available: res.Success, Output: res.Output, Error: res.Error}
	}
	return out
}

// Close 释放所有后端
func (e *Executor) Close() error {
	var errs []error
	for _, b := range e.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
