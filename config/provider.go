package config

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrReadOnly is returned by providers that cannot accept writes.
var ErrReadOnly = errors.New("config provider is read-only")

// Provider gives dotted-key access to configuration values ("llm.model").
type Provider interface {
	// Get returns the value at key, or def when missing.
	Get(key string, def any) any
	// Set stores value at key. Read-only providers return ErrReadOnly.
	Set(key string, value any) error
	// Has reports whether key is present.
	Has(key string) bool
	// Section returns a copy of the nested map under section.
	Section(section string) map[string]any
	// Keys returns sorted leaf keys, optionally restricted to a prefix.
	Keys(prefix string) []string
}

// MapProvider is an in-memory Provider backed by a nested map.
type MapProvider struct {
	mu       sync.RWMutex
	data     map[string]any
	readOnly bool
}

// NewMapProvider wraps data. The map is deep-copied.
func NewMapProvider(data map[string]any) *MapProvider {
	return &MapProvider{data: deepCopyMap(data)}
}

// NewDefaultsProvider returns a read-only provider holding the minimal defaults
// used when nothing else is configured.
func NewDefaultsProvider() *MapProvider {
	p := NewMapProvider(map[string]any{
		"vector_store": map[string]any{"type": "memory", "path": "./data/vectors"},
		"memory":       map[string]any{"type": "in_memory"},
		"llm":          map[string]any{"type": "openai", "model": "gpt-3.5-turbo"},
		"embedding":    map[string]any{"type": "openai", "model": "text-embedding-ada-002"},
	})
	p.readOnly = true
	return p
}

func (p *MapProvider) Get(key string, def any) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := getPath(p.data, key); ok {
		return v
	}
	return def
}

func (p *MapProvider) Set(key string, value any) error {
	if p.readOnly {
		return ErrReadOnly
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	setPath(p.data, key, value)
	return nil
}

func (p *MapProvider) Has(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := getPath(p.data, key)
	return ok
}

func (p *MapProvider) Section(section string) map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sectionOf(p.data, section)
}

func (p *MapProvider) Keys(prefix string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return filterKeys(flattenKeys(p.data, ""), prefix)
}

// All returns a deep copy of the underlying data.
func (p *MapProvider) All() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return deepCopyMap(p.data)
}

// =============================================================================
// 🔍 点分键辅助函数
// =============================================================================

func getPath(data map[string]any, key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	var cur any = data
	for _, part := range strings.Split(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(data map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	cur := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func sectionOf(data map[string]any, section string) map[string]any {
	v, ok := getPath(data, section)
	if !ok {
		return map[string]any{}
	}
	m, ok := asMap(v)
	if !ok {
		return map[string]any{}
	}
	return deepCopyMap(m)
}

// asMap accepts both map[string]any and the map[any]any shape some decoders produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func flattenKeys(data map[string]any, prefix string) []string {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if m, ok := asMap(v); ok && len(m) > 0 {
			keys = append(keys, flattenKeys(m, full)...)
			continue
		}
		keys = append(keys, full)
	}
	sort.Strings(keys)
	return keys
}

func filterKeys(keys []string, prefix string) []string {
	if prefix == "" {
		return keys
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func deepCopyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if m, ok := asMap(v); ok {
			out[k] = deepCopyMap(m)
			continue
		}
		if s, ok := v.([]any); ok {
			cp := make([]any, len(s))
			copy(cp, s)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// deepMerge merges src into dst recursively; src wins on conflicts.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		dstMap, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			dst[k] = deepMerge(deepCopyMap(dstMap), srcMap)
			continue
		}
		if srcIsMap {
			dst[k] = deepCopyMap(srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}
