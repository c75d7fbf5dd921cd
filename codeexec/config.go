package codeexec

import "time"

// Language 支持的语言
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangBash       Language = "bash"
	LangGo         Language = "go"
)

// Config 代码执行配置
type Config struct {
	TimeoutSeconds   int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxOutputLength  int      `yaml:"max_output_length" json:"max_output_length"`
	AllowedLanguages []string `yaml:"allowed_languages" json:"allowed_languages"`
	// WorkingDirectory 为空时使用系统临时目录
	WorkingDirectory string `yaml:"working_directory" json:"working_directory"`
	EnableNetwork    bool   `yaml:"enable_network" json:"enable_network"`
	MaxMemoryMB      int    `yaml:"max_memory_mb" json:"max_memory_mb"`
	MaxCPUTime       int    `yaml:"max_cpu_time" json:"max_cpu_time"`
	// Backend 执行后端: process, docker
	Backend string `yaml:"backend" json:"backend"`
	// EnableGo 启用 yaegi 解释器并允许 go 语言
	EnableGo bool `yaml:"enable_go" json:"enable_go"`
	// DockerImages 覆盖各语言使用的镜像
	DockerImages  map[string]string `yaml:"docker_images" json:"docker_images"`
	MaxCodeLength int               `yaml:"max_code_length" json:"max_code_length"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:   30,
		MaxOutputLength:  10000,
		AllowedLanguages: []string{"python", "javascript", "bash"},
		MaxMemoryMB:      128,
		MaxCPUTime:       10,
		Backend:          "process",
		MaxCodeLength:    10000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = def.TimeoutSeconds
	}
	if c.MaxOutputLength <= 0 {
		c.MaxOutputLength = def.MaxOutputLength
	}
	if c.AllowedLanguages == nil {
		c.AllowedLanguages = def.AllowedLanguages
	}
	if c.MaxMemoryMB <= 0 {
		c.MaxMemoryMB = def.MaxMemoryMB
	}
	if c.MaxCPUTime <= 0 {
		c.MaxCPUTime = def.MaxCPUTime
	}
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.MaxCodeLength <= 0 {
		c.MaxCodeLength = def.MaxCodeLength
	}
	return c
}

// Timeout 单次执行超时
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Languages 返回允许的语言，EnableGo 时追加 go
func (c Config) Languages() []Language {
	out := make([]Language, 0, len(c.AllowedLanguages)+1)
	seen := map[Language]bool{}
	for _, l := range c.AllowedLanguages {
		lang := Language(l)
		if lang == LangGo && !c.EnableGo {
			continue
		}
		if !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	if c.EnableGo && !seen[LangGo] {
		out = append(out, LangGo)
	}
	return out
}
