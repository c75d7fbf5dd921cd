package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles are loaded in order from the config directory; later files win.
var DefaultConfigFiles = []string{"default.yaml", "local.yaml", "production.yaml"}

// YAMLProvider loads and deep-merges YAML files from a config directory.
type YAMLProvider struct {
	mu          sync.RWMutex
	dir         string
	extraPaths  []string
	data        map[string]any
	loadedFiles []string
	loadedAt    time.Time
}

// NewYAMLProvider creates a provider rooted at dir and loads it.
// Missing files are skipped; a missing directory yields an empty provider.
func NewYAMLProvider(dir string) (*YAMLProvider, error) {
	p := &YAMLProvider{dir: dir, data: map[string]any{}}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Dir returns the configuration directory.
func (p *YAMLProvider) Dir() string { return p.dir }

// Paths returns every file path the provider reads, loaded or not.
func (p *YAMLProvider) Paths() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	paths := make([]string, 0, len(DefaultConfigFiles)+len(p.extraPaths))
	for _, name := range DefaultConfigFiles {
		paths = append(paths, filepath.Join(p.dir, name))
	}
	return append(paths, p.extraPaths...)
}

// Reload re-reads every configured file.
func (p *YAMLProvider) Reload() error {
	merged := map[string]any{}
	loaded := make([]string, 0)

	for _, path := range p.Paths() {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		merged = deepMerge(merged, doc)
		loaded = append(loaded, path)
	}

	p.mu.Lock()
	p.data = merged
	p.loadedFiles = loaded
	p.loadedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// AddPath registers an additional file (highest precedence) and reloads.
func (p *YAMLProvider) AddPath(path string) error {
	p.mu.Lock()
	p.extraPaths = append(p.extraPaths, path)
	p.mu.Unlock()
	return p.Reload()
}

// Save writes the merged configuration to path (default.yaml in the config dir when empty).
func (p *YAMLProvider) Save(path string) error {
	if path == "" {
		path = filepath.Join(p.dir, DefaultConfigFiles[0])
	}
	p.mu.RLock()
	data, err := yaml.Marshal(p.data)
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Info describes the provider state.
func (p *YAMLProvider) Info() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	files := make([]string, len(p.loadedFiles))
	copy(files, p.loadedFiles)
	return map[string]any{
		"config_dir":   p.dir,
		"loaded_files": files,
		"total_keys":   len(flattenKeys(p.data, "")),
		"loaded_at":    p.loadedAt,
	}
}

// All returns a deep copy of the merged data.
func (p *YAMLProvider) All() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return deepCopyMap(p.data)
}

func (p *YAMLProvider) Get(key string, def any) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := getPath(p.data, key); ok {
		return v
	}
	return def
}

func (p *YAMLProvider) Set(key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	setPath(p.data, key, value)
	return nil
}

func (p *YAMLProvider) Has(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := getPath(p.data, key)
	return ok
}

func (p *YAMLProvider) Section(section string) map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sectionOf(p.data, section)
}

func (p *YAMLProvider) Keys(prefix string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return filterKeys(flattenKeys(p.data, ""), prefix)
}
