package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// EnvProvider maps dotted keys onto prefixed environment variables:
// "llm.api_key" ↔ AGENT_LLM_API_KEY.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an EnvProvider. An empty prefix uses DefaultEnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: strings.TrimSuffix(strings.ToUpper(prefix), "_") + "_"}
}

// EnvKey returns the environment variable name for key.
func (p *EnvProvider) EnvKey(key string) string {
	return p.prefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (p *EnvProvider) Get(key string, def any) any {
	v, ok := os.LookupEnv(p.EnvKey(key))
	if !ok {
		return def
	}
	return coerceEnvValue(v)
}

// Set writes to the process environment.
func (p *EnvProvider) Set(key string, value any) error {
	return os.Setenv(p.EnvKey(key), toString(value))
}

func (p *EnvProvider) Has(key string) bool {
	_, ok := os.LookupEnv(p.EnvKey(key))
	return ok
}

// Section collects AGENT_<SECTION>_* variables; the remainder is lower-cased
// and kept as a single key (AGENT_LLM_API_KEY → section "llm", key "api_key").
func (p *EnvProvider) Section(section string) map[string]any {
	sectionPrefix := p.EnvKey(section) + "_"
	out := map[string]any{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, sectionPrefix) {
			continue
		}
		out[strings.ToLower(strings.TrimPrefix(name, sectionPrefix))] = coerceEnvValue(value)
	}
	return out
}

// Keys lists prefixed variables as lower-cased keys with the first "_" turned
// into "." (AGENT_LLM_MODEL → "llm.model").
func (p *EnvProvider) Keys(prefix string) []string {
	keys := make([]string, 0)
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, p.prefix) {
			continue
		}
		rest := strings.ToLower(strings.TrimPrefix(name, p.prefix))
		if section, key, found := strings.Cut(rest, "_"); found {
			rest = section + "." + key
		}
		keys = append(keys, rest)
	}
	sort.Strings(keys)
	return filterKeys(keys, prefix)
}

// coerceEnvValue converts "true"/"false" to bool, then tries int, then float.
func coerceEnvValue(v string) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprint(t)
	}
}
