package agent

import (
	"sort"
	"sync"

	"github.com/BaSui01/agentbase/types"
)

// Manager 按类型持有 agent 实例
type Manager struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewManager 创建 Manager 并注册给定 agent
func NewManager(agents ...*Agent) *Manager {
	m := &Manager{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		m.Register(a)
	}
	return m
}

// Register 注册 agent，同类型覆盖
func (m *Manager) Register(a *Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.Type()] = a
}

// Get 按类型查找 agent
func (m *Manager) Get(agentType string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentType]
	if !ok {
		return nil, types.Errorf(types.ErrAgentNotFound, "Agent type '%s' not found", agentType)
	}
	return a, nil
}

// Types 返回已注册的类型（已排序）
func (m *Manager) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.agents))
	for t := range m.agents {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Infos 返回每个 agent 的描述
func (m *Manager) Infos() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]any, len(m.agents))
	for t, a := range m.agents {
		out[t] = a.Info()
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}
