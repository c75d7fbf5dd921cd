package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// =============================================================================
// 🎨 输出样式
// =============================================================================

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
)

// printer 终端输出；plain 模式下不使用样式，也不渲染 markdown
type printer struct {
	out    io.Writer
	errOut io.Writer
	plain  bool

	renderer *glamour.TermRenderer
}

func newPrinter(out, errOut io.Writer, plain bool) *printer {
	p := &printer{out: out, errOut: errOut, plain: plain}
	if !plain {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			p.renderer = r
		}
	}
	return p
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *printer) println(a ...any) { fmt.Fprintln(p.out, a...) }

func (p *printer) printf(format string, a ...any) { fmt.Fprintf(p.out, format, a...) }

// title 标题加等宽下划线
func (p *printer) title(text string) {
	p.println(p.style(titleStyle, text))
	p.println(strings.Repeat("=", len([]rune(text))))
}

func (p *printer) label(name, value string) {
	p.printf("  %s %s\n", p.style(labelStyle, name+":"), value)
}

func (p *printer) markdown(text string) {
	if p.renderer != nil {
		if out, err := p.renderer.Render(text); err == nil {
			fmt.Fprint(p.out, out)
			return
		}
	}
	p.println(text)
}

func (p *printer) warnf(format string, a ...any) {
	fmt.Fprintln(p.errOut, p.style(warningStyle, fmt.Sprintf(format, a...)))
}

func (p *printer) errorf(format string, a ...any) {
	fmt.Fprintln(p.errOut, p.style(errorStyle, fmt.Sprintf(format, a...)))
}

// =============================================================================
// 🧑‍💻 客户端命令
// =============================================================================

// clientOptions 客户端命令共享的 flag
type clientOptions struct {
	root         *rootOptions
	sessionsFile string
	plain        bool
}

// clientApp 一次命令执行所需的客户端、会话映射与输出
type clientApp struct {
	api      *apiClient
	sessions *sessionStore
	out      *printer
}

func (o *clientOptions) app(cmd *cobra.Command) *clientApp {
	return &clientApp{
		api:      newAPIClient(o.root.apiURL, o.root.apiKey),
		sessions: loadSessionStore(o.sessionsFile),
		out:      newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), o.plain),
	}
}

func addClientCommands(root *cobra.Command, opts *rootOptions) {
	o := &clientOptions{root: opts}
	root.PersistentFlags().BoolVar(&o.plain, "plain", false, "disable colors and markdown rendering")
	root.PersistentFlags().StringVar(&o.sessionsFile, "sessions-file", defaultSessionsFile(), "local session mapping file")
	_ = root.PersistentFlags().MarkHidden("sessions-file")

	var session string
	var sources bool

	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "List available agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).listAgents(cmd)
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat <agent> <message>",
		Short: "Chat with an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).chat(cmd, args[0], args[1], session, sources)
		},
	}
	chatCmd.Flags().StringVarP(&session, "session", "s", "", `session name (default "default")`)
	chatCmd.Flags().BoolVar(&sources, "sources", false, "show sources in the response")

	historyCmd := &cobra.Command{
		Use:   "history <agent>",
		Short: "Show conversation history for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).history(cmd, args[0], session)
		},
	}
	historyCmd.Flags().StringVarP(&session, "session", "s", "", `session name (default "default")`)

	toolsCmd := &cobra.Command{
		Use:   "tools <agent>",
		Short: "List available tools for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).listTools(cmd, args[0])
		},
	}

	toolCmd := &cobra.Command{
		Use:   "tool <agent> <tool> <input>",
		Short: "Execute a tool directly",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).executeTool(cmd, args[0], args[1], args[2])
		},
	}

	interactiveCmd := &cobra.Command{
		Use:   "interactive <agent>",
		Short: "Start an interactive chat session with an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).interactive(cmd, args[0], session)
		},
	}
	interactiveCmd.Flags().StringVarP(&session, "session", "s", "", `session name (default "default")`)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check API server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app(cmd).health(cmd)
		},
	}

	for _, c := range []*cobra.Command{agentsCmd, chatCmd, historyCmd, toolsCmd, toolCmd, interactiveCmd} {
		c.PreRun = func(cmd *cobra.Command, args []string) {
			app := o.app(cmd)
			if !app.api.healthy(cmd.Context()) {
				app.out.warnf("Warning: API server at %s is not responding", app.api.baseURL)
				app.out.warnf("Start the server with: agentbase serve")
			}
		}
	}
	root.AddCommand(agentsCmd, chatCmd, historyCmd, toolsCmd, toolCmd, interactiveCmd, healthCmd)
}

func agentPath(agentType string, parts ...string) string {
	p := "/agents/" + url.PathEscape(agentType)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// truncate 按字符截断，超出时追加 "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (a *clientApp) listAgents(cmd *cobra.Command) error {
	data, err := a.api.data(cmd.Context(), http.MethodGet, "/agents", nil)
	if err != nil {
		return err
	}
	a.out.title("Available Agents")
	data.Get("agents").ForEach(func(name, info gjson.Result) bool {
		a.out.println()
		a.out.println(a.out.style(titleStyle, name.String()+":"))
		a.out.label("Description", truncate(info.Get("system_prompt").String(), 100))
		var toolNames []string
		for _, t := range info.Get("tools").Array() {
			toolNames = append(toolNames, t.String())
		}
		a.out.label("Tools", strings.Join(toolNames, ", "))
		return true
	})
	return nil
}

func (a *clientApp) chat(cmd *cobra.Command, agentType, message, session string, showSources bool) error {
	sessionID, err := a.sessions.SessionID(agentType, session)
	if err != nil {
		a.out.warnf("could not save session mapping: %v", err)
	}
	data, err := a.api.data(cmd.Context(), http.MethodPost, agentPath(agentType, "chat"), map[string]any{
		"message":    message,
		"session_id": sessionID,
	})
	if err != nil {
		return err
	}

	a.out.println()
	a.out.title(titleCase(agentType) + " Agent:")
	a.out.markdown(data.Get("content").String())

	if showSources {
		if srcs := data.Get("sources").Array(); len(srcs) > 0 {
			a.out.println()
			a.out.println(a.out.style(labelStyle, "Sources:"))
			for i, src := range srcs {
				if u := src.Get("url").String(); u != "" {
					a.out.printf("  %d. %s\n", i+1, orDefault(src.Get("title").String(), "Web Source"))
					a.out.printf("     %s\n", a.out.style(mutedStyle, u))
					continue
				}
				a.out.printf("  %d. %s\n", i+1, orDefault(src.Get("metadata.title").String(), "Document"))
			}
		}
	}
	a.out.println()
	a.out.println(a.out.style(mutedStyle, "Session: "+orDefault(data.Get("session_id").String(), sessionID)))
	return nil
}

func (a *clientApp) history(cmd *cobra.Command, agentType, session string) error {
	sessionID, err := a.sessions.SessionID(agentType, session)
	if err != nil {
		a.out.warnf("could not save session mapping: %v", err)
	}
	data, err := a.api.data(cmd.Context(), http.MethodGet, agentPath(agentType, "sessions", sessionID), nil)
	if err != nil {
		if IsNotFound(err) {
			a.out.errorf("No conversation history found for this session.")
			return nil
		}
		return err
	}

	a.out.println()
	a.out.title("Session History: " + sessionID)
	a.out.label("Agent", data.Get("agent_type").String())
	a.out.label("Created", data.Get("created_at").String())
	a.out.label("Messages", data.Get("message_count").String())
	a.out.println()
	for _, msg := range data.Get("messages").Array() {
		ts := msg.Get("timestamp").String()
		if len(ts) > 19 {
			ts = ts[:19]
		}
		ts = strings.Replace(ts, "T", " ", 1)
		a.out.printf("[%s] %s:\n", a.out.style(mutedStyle, ts), a.out.style(labelStyle, titleCase(msg.Get("role").String())))
		a.out.printf("  %s\n\n", msg.Get("content").String())
	}
	return nil
}

func (a *clientApp) listTools(cmd *cobra.Command, agentType string) error {
	data, err := a.api.data(cmd.Context(), http.MethodGet, agentPath(agentType, "tools"), nil)
	if err != nil {
		return err
	}
	a.out.println()
	a.out.title("Tools for " + agentType + " agent:")
	for _, t := range data.Get("tools").Array() {
		a.out.println()
		a.out.println(a.out.style(titleStyle, t.Get("name").String()+":"))
		a.out.label("Description", t.Get("description").String())
		examples := t.Get("usage_examples").Array()
		if len(examples) == 0 {
			continue
		}
		a.out.printf("  %s\n", a.out.style(labelStyle, "Examples:"))
		for i, ex := range examples {
			if i == 2 {
				break
			}
			a.out.printf("    - %s\n", ex.String())
		}
	}
	return nil
}

func (a *clientApp) executeTool(cmd *cobra.Command, agentType, toolName, input string) error {
	data, err := a.api.data(cmd.Context(), http.MethodPost, agentPath(agentType, "tools", toolName), map[string]any{
		"input": input,
	})
	if err != nil {
		return err
	}
	if !data.Get("success").Bool() {
		return fmt.Errorf("tool execution failed: %s", orDefault(data.Get("error").String(), "unknown error"))
	}
	a.out.println()
	a.out.title("Tool Result (" + toolName + "):")
	a.out.println(data.Get("content").String())
	if meta := data.Get("metadata"); meta.Exists() && len(meta.Map()) > 0 {
		a.out.println()
		a.out.println(a.out.style(mutedStyle, "Metadata: "+meta.Raw))
	}
	return nil
}

func (a *clientApp) interactive(cmd *cobra.Command, agentType, session string) error {
	a.out.printf("Starting interactive session with %s agent\n", agentType)
	a.out.println("Type 'quit' or 'exit' to end the session")
	a.out.println("Type 'history' to see conversation history")
	a.out.println("Type 'tools' to see available tools")
	a.out.println(strings.Repeat("=", 50))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		a.out.printf("\n[%s] ", a.out.style(titleStyle, agentType))
		if !scanner.Scan() {
			a.out.println()
			a.out.println("Goodbye!")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch strings.ToLower(line) {
		case "quit", "exit":
			a.out.println("Goodbye!")
			return nil
		case "history":
			err = a.history(cmd, agentType, session)
		case "tools":
			err = a.listTools(cmd, agentType)
		default:
			err = a.chat(cmd, agentType, line, session, true)
		}
		if err != nil {
			a.out.errorf("Error: %v", err)
		}
	}
}

func (a *clientApp) health(cmd *cobra.Command) error {
	body, err := a.api.do(cmd.Context(), http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	a.out.label("Status", a.out.style(titleStyle, body.Get("status").String()))
	if v := body.Get("version").String(); v != "" {
		a.out.label("Version", v)
	}
	var agents []string
	for _, t := range body.Get("agents_available").Array() {
		agents = append(agents, t.String())
	}
	a.out.label("Agents", strings.Join(agents, ", "))
	return nil
}

// titleCase "code_assistant" -> "Code_Assistant"
func titleCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteRune(r)
		}
		upper = !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
