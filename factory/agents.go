package factory

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/agent"
	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/docstore"
	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/memory"
	"github.com/BaSui01/agentbase/rag"
	"github.com/BaSui01/agentbase/tools"
)

// Observers 各组件的指标回调，均可为 nil
type Observers struct {
	Query  agent.QueryObserver
	Search rag.SearchObserver
	Tool   tools.ExecutionObserver
	LLM    llm.RequestObserver
}

// Components 所有 agent 共享的组件
type Components struct {
	Knowledge *rag.KnowledgeBase
	Documents docstore.Store
	Memory    memory.Backend
	LLM       llm.Provider
}

// Runtime 构建完成的 agent 集合及其依赖
type Runtime struct {
	Agents     *agent.Manager
	Components Components
	Env        *Env
}

// Close 释放数据库与 Redis 连接
func (r *Runtime) Close() error {
	return r.Env.Close()
}

// CreateComponents 按配置创建共享组件
func (f *Factory) CreateComponents(ctx context.Context, env *Env, obs Observers) (Components, error) {
	cfg := env.Config
	var c Components

	store, err := f.CreateVectorStore(env, cfg.VectorStore)
	if err != nil {
		return c, fmt.Errorf("vector store: %w", err)
	}
	embedder, err := f.CreateEmbedding(ctx, env, cfg.Embedding)
	if err != nil {
		return c, fmt.Errorf("embedding provider: %w", err)
	}
	kbOpts := []rag.KnowledgeBaseOption{rag.WithStoreName(key(cfg.VectorStore.Type, DefaultVectorStore))}
	if cfg.Embedding.BatchSize > 0 {
		kbOpts = append(kbOpts, rag.WithBatchSize(cfg.Embedding.BatchSize))
	}
	if obs.Search != nil {
		kbOpts = append(kbOpts, rag.WithSearchObserver(obs.Search))
	}
	c.Knowledge = rag.NewKnowledgeBase(store, embedder, env.Logger, kbOpts...)

	if c.Documents, err = f.CreateDocumentStore(env, cfg.DocumentStore); err != nil {
		return c, fmt.Errorf("document store: %w", err)
	}
	if c.Memory, err = f.CreateMemoryBackend(env, cfg.Memory); err != nil {
		return c, fmt.Errorf("memory backend: %w", err)
	}
	provider, err := f.CreateLLMProvider(ctx, env, cfg.LLM)
	if err != nil {
		return c, fmt.Errorf("llm provider: %w", err)
	}
	c.LLM = llm.Instrument(provider, obs.LLM)
	return c, nil
}

// toolSet 缓存已创建的工具，多个 agent 共用同一实例
type toolSet struct {
	f     *Factory
	env   *Env
	built map[string]tools.Tool
}

func (s *toolSet) get(name string) (tools.Tool, error) {
	if t, ok := s.built[name]; ok {
		return t, nil
	}
	t, err := s.f.CreateTool(s.env, name, s.env.Config.Tool(name))
	if err != nil {
		return nil, err
	}
	s.built[name] = t
	return t, nil
}

func (s *toolSet) registry(names []string, obs tools.ExecutionObserver) *tools.Registry {
	reg := tools.NewRegistry(s.env.Logger)
	if obs != nil {
		reg.SetObserver(obs)
	}
	for _, name := range names {
		t, err := s.get(name)
		if err != nil {
			s.env.Logger.Warn("skipping tool", zap.String("tool", name), zap.Error(err))
			continue
		}
		reg.Register(t)
	}
	return reg
}

// CreateToolRegistry 创建包含 names 所列工具的注册表。未知或创建失败的工具记录警告后跳过。
func (f *Factory) CreateToolRegistry(env *Env, names []string) *tools.Registry {
	s := &toolSet{f: f, env: env, built: map[string]tools.Tool{}}
	return s.registry(names, nil)
}

// CreateConfigChain 组合环境变量、YAML 目录与内置默认值，优先级依次降低
func (f *Factory) CreateConfigChain(dir, envPrefix string) (config.Provider, error) {
	var chain []config.Provider
	for _, kind := range []string{"env", "yaml", "defaults"} {
		p, err := f.CreateConfigProvider(kind, map[string]any{"config_dir": dir, "prefix": envPrefix})
		if err != nil {
			return nil, fmt.Errorf("%s config provider: %w", kind, err)
		}
		chain = append(chain, p)
	}
	return config.NewCompositeProvider(chain...), nil
}

// BuildAgents 创建共享组件，并为配置中的每个 agent 类型构建一个 Agent
func (f *Factory) BuildAgents(ctx context.Context, env *Env, obs Observers) (*Runtime, error) {
	comps, err := f.CreateComponents(ctx, env, obs)
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	agentTypes := make([]string, 0, len(env.Config.Agents))
	for t := range env.Config.Agents {
		agentTypes = append(agentTypes, t)
	}
	sort.Strings(agentTypes)

	set := &toolSet{f: f, env: env, built: map[string]tools.Tool{}}
	mgr := agent.NewManager()
	for _, t := range agentTypes {
		ac, _ := env.Config.Agent(t)
		a := agent.New(t, ac, agent.Dependencies{
			Knowledge: comps.Knowledge,
			Documents: comps.Documents,
			Memory:    comps.Memory,
			LLM:       comps.LLM,
			Tools:     set.registry(ac.Tools, obs.Tool),
		}, agent.WithLogger(env.Logger), agent.WithQueryObserver(obs.Query))
		mgr.Register(a)
	}

	env.Logger.Info("agents initialized",
		zap.Strings("types", mgr.Types()),
		zap.String("llm", comps.LLM.Name()),
		zap.String("embedding", comps.Knowledge.Embedder().Name()))
	return &Runtime{Agents: mgr, Components: comps, Env: env}, nil
}
