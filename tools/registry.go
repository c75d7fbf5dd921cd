package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentbase/types"
	"go.uber.org/zap"
)

// ExecutionObserver 每次工具执行后回调（指标采集）
type ExecutionObserver func(tool string, success bool, duration time.Duration)

// Registry 工具注册表，并发安全
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	observer ExecutionObserver
	logger   *zap.Logger
}

// NewRegistry 创建空注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// SetObserver 设置执行观察者
func (r *Registry) SetObserver(fn ExecutionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Register 注册工具，同名工具会被替换
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		r.logger.Warn("replacing registered tool", zap.String("tool", tool.Name()))
	}
	r.tools[tool.Name()] = tool
}

// Unregister 移除工具，返回是否存在
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List 返回排序后的工具名
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All 按名称顺序返回全部工具
func (r *Registry) All() []Tool {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

// ByCategory 返回指定分类的工具
func (r *Registry) ByCategory(category string) []Tool {
	out := make([]Tool, 0)
	for _, t := range r.All() {
		if t.Category() == category {
			out = append(out, t)
		}
	}
	return out
}

// Len 返回工具数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute 查找、校验并执行工具
func (r *Registry) Execute(ctx context.Context, name, input string, params map[string]any) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, types.NewError(types.ErrToolNotFound, fmt.Sprintf("Tool '%s' not found", name))
	}
	if !tool.Validate(input) {
		return nil, types.NewError(types.ErrToolValidation, fmt.Sprintf("invalid input for tool '%s'", name))
	}

	start := time.Now()
	res, err := tool.Execute(ctx, input, params)
	elapsed := time.Since(start)

	success := err == nil && res != nil && res.Success
	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer(name, success, elapsed)
	}

	if err != nil {
		r.logger.Error("tool execution failed", zap.String("tool", name), zap.Error(err))
		return nil, types.NewError(types.ErrToolExecution, fmt.Sprintf("tool '%s' failed", name)).WithCause(err)
	}
	r.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.Bool("success", success),
		zap.Duration("duration", elapsed),
	)
	return res, nil
}

// Describe 返回工具的描述信息，供 API 和 CLI 展示
func Describe(t Tool) map[string]any {
	return map[string]any{
		"name":             t.Name(),
		"description":      t.Description(),
		"category":         t.Category(),
		"usage_examples":   t.UsageExamples(),
		"parameter_schema": t.ParameterSchema(),
	}
}
