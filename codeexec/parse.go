package codeexec

import "strings"

var languageAliases = map[string]Language{
	"python":     LangPython,
	"python3":    LangPython,
	"py":         LangPython,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"node":       LangJavaScript,
	"bash":       LangBash,
	"sh":         LangBash,
	"shell":      LangBash,
	"go":         LangGo,
	"golang":     LangGo,
}

var (
	pythonHints     = []string{"print(", "def ", "import ", "for ", "if "}
	javascriptHints = []string{"console.log", "function ", "const ", "let ", "var "}
)

// ParseInput 从自由文本中解析语言与代码，依次尝试：
//
//	run|execute <lang>: code
//	```lang 代码块
//	以 lang 或 lang: 开头
//	根据代码特征推断 python / javascript
func ParseInput(input string, allowed []Language) (Language, string, bool) {
	text := strings.TrimSpace(input)
	lower := strings.ToLower(text)

	if strings.HasPrefix(lower, "run ") || strings.HasPrefix(lower, "execute ") {
		if head, code, ok := strings.Cut(text, ":"); ok {
			head = strings.ToLower(head)
			for _, lang := range allowed {
				if strings.Contains(head, string(lang)) {
					return lang, strings.TrimSpace(code), true
				}
			}
		}
	}

	if strings.HasPrefix(text, "```") {
		first, rest, _ := strings.Cut(text, "\n")
		tag := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(first, "```")))
		if lang, ok := languageAliases[tag]; ok && containsLang(allowed, lang) {
			lines := strings.Split(rest, "\n")
			if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
				lines = lines[:n-1]
			}
			return lang, strings.Join(lines, "\n"), true
		}
	}

	for _, lang := range allowed {
		name := string(lang)
		if !strings.HasPrefix(lower, name) {
			continue
		}
		// 语言名后必须是分隔符，避免 "google" 被识别为 go
		if len(lower) > len(name) {
			next := lower[len(name)]
			if next != ':' && next != ' ' && next != '\n' && next != '\t' {
				continue
			}
		}
		code := strings.TrimSpace(text[len(name):])
		code = strings.TrimSpace(strings.TrimPrefix(code, ":"))
		return lang, code, true
	}

	if containsLang(allowed, LangPython) && containsAny(text, pythonHints) {
		return LangPython, text, true
	}
	if containsLang(allowed, LangJavaScript) && containsAny(text, javascriptHints) {
		return LangJavaScript, text, true
	}
	return "", "", false
}

func containsLang(langs []Language, l Language) bool {
	for _, x := range langs {
		if x == l {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
