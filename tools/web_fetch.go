package tools

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxPageBytes = 2 << 20

func (t *WebSearchTool) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return normalizeLines(string(data)), nil
	}
	return ExtractText(body)
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Table: true, atom.Section: true, atom.Article: true, atom.Header: true,
	atom.Footer: true, atom.Pre: true, atom.Blockquote: true, atom.Title: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Svg: true,
}

// ExtractText 提取 HTML 可见文本，块级元素之间换行
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var sb strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return "", err
			}
			return normalizeLines(sb.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] {
				skip++
			}
			if blockElements[a] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] && skip > 0 {
				skip--
			}
			if blockElements[a] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// normalizeLines 折叠行内空白并去掉空行
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if f := strings.Join(strings.Fields(line), " "); f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, "\n")
}

// ====== 质量评估 ======

var domainAuthority = []struct {
	domain string
	score  float64
}{
	{"wikipedia.org", 0.9},
	{"github.com", 0.8},
	{"stackoverflow.com", 0.8},
	{"medium.com", 0.7},
	{"arxiv.org", 0.9},
	{"gov", 0.8},
	{"edu", 0.8},
}

// AssessQuality 综合语义重合度、长度、域名权威度与结构给出 0~1 的质量分
func AssessQuality(query, title, pageURL, content string) float64 {
	score := 0.0

	queryWords := wordSet(query)
	if len(queryWords) > 0 {
		contentOverlap := overlap(queryWords, wordSet(content))
		titleOverlap := overlap(queryWords, wordSet(title))
		score += (contentOverlap*0.7 + titleOverlap*0.3) * 0.4
	}

	score += math.Min(float64(len([]rune(content)))/1000, 1) * 0.2

	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Host
	}
	score += DomainAuthority(host) * 0.2
	score += StructureScore(content) * 0.2

	return math.Min(score, 1)
}

// DomainAuthority 粗略的域名权威度，未知域名为 0.5
func DomainAuthority(host string) float64 {
	for _, d := range domainAuthority {
		if strings.Contains(host, d.domain) {
			return d.score
		}
	}
	return 0.5
}

// StructureScore 根据总结性段落、列表标记和分行情况评估结构
func StructureScore(content string) float64 {
	score := 0.0
	lower := strings.ToLower(content)
	for _, w := range []string{"introduction", "conclusion", "summary"} {
		if strings.Contains(lower, w) {
			score += 0.3
			break
		}
	}
	for _, m := range []string{"1.", "2.", "•", "-", "*"} {
		if strings.Contains(content, m) {
			score += 0.3
			break
		}
	}
	if len(strings.Split(content, "\n")) > 3 {
		score += 0.4
	}
	return math.Min(score, 1)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func overlap(query, other map[string]struct{}) float64 {
	n := 0
	for w := range query {
		if _, ok := other[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(query))
}
