package codeexec

import (
	"fmt"
	"regexp"
	"strings"
)

// SecurityViolation 代码未通过安全检查
type SecurityViolation struct {
	Reason string
}

func (e *SecurityViolation) Error() string {
	return "Security violation: " + e.Reason
}

var (
	unsafePythonModules = []string{"os", "subprocess", "sys", "socket", "urllib", "requests"}
	unsafeNodeModules   = []string{"fs", "child_process", "net"}
	unsafeBashCommands  = []string{"rm", "mv", "cp", "chmod", "sudo", "su", "wget", "curl"}

	dangerousPatterns = []string{
		"open(", "file(", "write(", "delete", "remove",
		"/etc/", "/var/", "/usr/", "/bin/", "/sbin/",
		"__import__", "eval(", "exec(",
	}

	safeGoPackages = map[string]bool{
		"fmt": true, "strings": true, "strconv": true, "math": true, "math/rand": true,
		"sort": true, "bytes": true, "regexp": true, "time": true, "unicode": true,
		"unicode/utf8": true, "encoding/json": true, "encoding/base64": true,
		"encoding/hex": true, "errors": true, "container/list": true, "container/heap": true,
		"slices": true, "maps": true,
	}

	pythonImportRe = regexp.MustCompile(`(?m)(?:^|[;:\s])(?:import|from)\s+([A-Za-z_][\w.]*(?:\s*,\s*[A-Za-z_][\w.]*)*)`)
	nodeRequireRe  = regexp.MustCompile(`(?:require\(\s*|from\s+|import\s+)['"](?:node:)?([\w/]+)['"]`)
	goImportRe     = regexp.MustCompile(`"([\w./-]+)"`)
)

// Validator 执行前的静态检查
type Validator struct {
	maxCodeLength int
	bashCommands  []*regexp.Regexp
}

// NewValidator 创建校验器
func NewValidator(maxCodeLength int) *Validator {
	v := &Validator{maxCodeLength: maxCodeLength}
	for _, c := range unsafeBashCommands {
		// 命令需作为独立单词出现；引号与反斜杠（\rm、"rm"、'rm'）不能绕过
		v.bashCommands = append(v.bashCommands,
			regexp.MustCompile(`(?:^|[\s;&|(\\'"`+"`"+`])`+regexp.QuoteMeta(c)+`(?:$|[\s;&|)\\'"`+"`"+`])`))
	}
	return v
}

// Validate 返回 nil 或 *SecurityViolation
func (v *Validator) Validate(lang Language, code string) error {
	if v.maxCodeLength > 0 && len(code) > v.maxCodeLength {
		return &SecurityViolation{Reason: fmt.Sprintf("Code too long (max %d characters)", v.maxCodeLength)}
	}

	switch lang {
	case LangPython:
		for _, m := range pythonImports(code) {
			for _, bad := range unsafePythonModules {
				if m == bad {
					return &SecurityViolation{Reason: "Unsafe import detected: " + bad}
				}
			}
		}
	case LangJavaScript:
		for _, m := range nodeRequireRe.FindAllStringSubmatch(code, -1) {
			for _, bad := range unsafeNodeModules {
				if m[1] == bad {
					return &SecurityViolation{Reason: fmt.Sprintf("Unsafe pattern detected: require(%q)", bad)}
				}
			}
		}
	case LangBash:
		for i, re := range v.bashCommands {
			if re.MatchString(code) {
				return &SecurityViolation{Reason: "Unsafe command detected: " + unsafeBashCommands[i]}
			}
		}
	case LangGo:
		for _, pkg := range goImports(code) {
			if !safeGoPackages[pkg] {
				return &SecurityViolation{Reason: "Unsafe import detected: " + pkg}
			}
		}
	}

	for _, p := range dangerousPatterns {
		if strings.Contains(code, p) {
			return &SecurityViolation{Reason: "Potentially dangerous operation: " + p}
		}
	}
	return nil
}

// pythonImports 返回 import/from 语句中的顶层模块名
func pythonImports(code string) []string {
	var out []string
	for _, m := range pythonImportRe.FindAllStringSubmatch(code, -1) {
		for _, name := range strings.Split(m[1], ",") {
			root, _, _ := strings.Cut(strings.TrimSpace(name), ".")
			if root != "" {
				out = append(out, root)
			}
		}
	}
	return out
}

// goImports 提取 import 声明（单行或分组）中的包路径
func goImports(code string) []string {
	var out []string
	lines := strings.Split(code, "\n")
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock, strings.HasPrefix(trimmed, "import "):
			if m := goImportRe.FindStringSubmatch(trimmed); m != nil {
				out = append(out, m[1])
			}
		}
	}
	return out
}
