package config

import (
	"errors"
	"sort"
)

// CompositeProvider chains providers in precedence order (first wins).
type CompositeProvider struct {
	providers []Provider
}

// NewCompositeProvider creates a provider where providers[0] has the highest precedence.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{providers: providers}
}

// Providers returns the chained providers in precedence order.
func (c *CompositeProvider) Providers() []Provider {
	return c.providers
}

func (c *CompositeProvider) Get(key string, def any) any {
	for _, p := range c.providers {
		if p.Has(key) {
			return p.Get(key, def)
		}
	}
	return def
}

// Set writes to the first provider that accepts writes.
func (c *CompositeProvider) Set(key string, value any) error {
	for _, p := range c.providers {
		err := p.Set(key, value)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrReadOnly) {
			return err
		}
	}
	return ErrReadOnly
}

func (c *CompositeProvider) Has(key string) bool {
	for _, p := range c.providers {
		if p.Has(key) {
			return true
		}
	}
	return false
}

// Section merges sections from lowest to highest precedence.
func (c *CompositeProvider) Section(section string) map[string]any {
	merged := map[string]any{}
	for i := len(c.providers) - 1; i >= 0; i-- {
		merged = deepMerge(merged, c.providers[i].Section(section))
	}
	return merged
}

// Keys returns the sorted union of every provider's keys.
func (c *CompositeProvider) Keys(prefix string) []string {
	seen := map[string]struct{}{}
	for _, p := range c.providers {
		for _, k := range p.Keys(prefix) {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
