package agent

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/docstore"
	"github.com/BaSui01/agentbase/llm"
	"github.com/BaSui01/agentbase/llm/tokenizer"
	"github.com/BaSui01/agentbase/memory"
	"github.com/BaSui01/agentbase/rag"
	"github.com/BaSui01/agentbase/tools"
	"github.com/BaSui01/agentbase/types"
)

const (
	// FallbackContent LLM 调用失败时返回给用户的内容
	FallbackContent = "I apologize, but I'm having trouble generating a response right now. Please try again."
	// ErrorContent 处理流程出现其他错误时返回的内容
	ErrorContent = "I apologize, but I encountered an error processing your request. Please try again."
	// FallbackModel 降级回复的模型名
	FallbackModel = "fallback"

	sourcePreviewChars = 200
)

// Query 一次用户请求
type Query struct {
	Text      string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Source 回答引用的知识库片段
type Source struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
	URL      string         `json:"url,omitempty"`
	Title    string         `json:"title,omitempty"`
}

// Response agent 回复
type Response struct {
	Content   string         `json:"content"`
	Sources   []Source       `json:"sources"`
	Metadata  map[string]any `json:"metadata"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionHistory 会话信息及完整消息列表
type SessionHistory struct {
	*memory.Session
	Messages []memory.ChatMessage `json:"messages"`
}

// Dependencies agent 依赖的共享组件
type Dependencies struct {
	Knowledge *rag.KnowledgeBase
	Documents docstore.Store
	Memory    memory.Backend
	LLM       llm.Provider
	Tools     *tools.Registry
}

// QueryObserver 每次 ProcessQuery 结束后回调（用于指标采集）
type QueryObserver func(agentType string, duration time.Duration, fallback bool)

// Option 配置 Agent
type Option func(*Agent)

// WithPromptBuilder 替换系统提示词构建器
func WithPromptBuilder(b PromptBuilder) Option {
	return func(a *Agent) { a.prompt = b }
}

// WithQueryObserver 注册查询回调
func WithQueryObserver(obs QueryObserver) Option {
	return func(a *Agent) { a.observer = obs }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Agent 上下文组装管线：历史 + 检索 + 提示词 + LLM + 持久化
type Agent struct {
	agentType string
	cfg       config.AgentConfig
	deps      Dependencies
	prompt    PromptBuilder
	observer  QueryObserver
	tracer    trace.Tracer
	now       func() time.Time
	logger    *zap.Logger
}

// New 创建 agent。deps.Tools 为 nil 时使用空注册表。
func New(agentType string, cfg config.AgentConfig, deps Dependencies, opts ...Option) *Agent {
	a := &Agent{
		agentType: agentType,
		cfg:       cfg.WithDefaults(),
		deps:      deps,
		prompt:    PromptBuilderFor(agentType),
		tracer:    otel.Tracer("agentbase/agent"),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.deps.Tools == nil {
		a.deps.Tools = tools.NewRegistry(a.logger)
	}
	a.cfg.SystemPrompt = BasePrompt(agentType, a.cfg.SystemPrompt)
	a.logger = a.logger.With(zap.String("agent_type", agentType))
	a.logger.Info("agent initialized", zap.Strings("tools", a.deps.Tools.List()))
	return a
}

// Type 返回 agent 类型
func (a *Agent) Type() string { return a.agentType }

// Config 返回补齐默认值后的配置
func (a *Agent) Config() config.AgentConfig { return a.cfg }

// Tools 返回工具注册表
func (a *Agent) Tools() *tools.Registry { return a.deps.Tools }

// NewSessionID 生成 <agent_type>_<8 位十六进制> 格式的会话 ID
func (a *Agent) NewSessionID() string {
	return a.agentType + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// retrieval 检索阶段的产物
type retrieval struct {
	Context string
	Sources []Source
}

// turn 一次请求在调用 LLM 之前准备好的全部状态
type turn struct {
	sessionID string
	query     Query
	retrieved retrieval
	request   *llm.ChatRequest
	tok       tokenizer.Tokenizer
}

// ProcessQuery 处理一次查询。除上下文取消外，各阶段失败都会降级而不是返回错误。
func (a *Agent) ProcessQuery(ctx context.Context, q Query) (resp *Response) {
	start := a.now()
	if q.SessionID == "" {
		q.SessionID = a.NewSessionID()
	}

	ctx, span := a.tracer.Start(ctx, "agent.process_query", trace.WithAttributes(
		attribute.String("agent.type", a.agentType),
		attribute.String("agent.session_id", q.SessionID),
	))
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic while processing query", zap.Any("panic", r), zap.Stack("stack"))
			resp = a.errorResponse(q.SessionID, fmt.Errorf("panic: %v", r))
		}
		_, failed := resp.Metadata["error"]
		fallback := failed || resp.Metadata["model"] == FallbackModel
		if failed {
			span.SetStatus(codes.Error, fmt.Sprint(resp.Metadata["error"]))
		}
		span.SetAttributes(
			attribute.Int("agent.context_sources", len(resp.Sources)),
			attribute.Bool("agent.fallback", fallback),
		)
		span.End()
		if a.observer != nil {
			a.observer(a.agentType, a.now().Sub(start), fallback)
		}
	}()

	if err := ctx.Err(); err != nil {
		return a.errorResponse(q.SessionID, err)
	}

	t := a.prepare(ctx, q)

	var llmErr error
	out, err := a.deps.LLM.Completion(ctx, t.request)
	if err != nil {
		a.logger.Error("llm generation failed", zap.String("session_id", t.sessionID), zap.Error(err))
		llmErr = err
		out = &llm.ChatResponse{Model: FallbackModel, Content: FallbackContent}
	}

	a.saveTurn(ctx, t, out.Content, out.Usage)
	return a.buildResponse(t, out, llmErr)
}

func (a *Agent) prepare(ctx context.Context, q Query) *turn {
	model := a.cfg.LLM.Model
	if model == "" {
		model = a.deps.LLM.ModelInfo().Name
	}
	t := &turn{
		sessionID: q.SessionID,
		query:     q,
		tok:       tokenizer.ForModel(model),
	}

	history := a.loadHistory(ctx, t.sessionID)
	t.retrieved = a.retrieve(ctx, q.Text, t.tok)

	messages := []llm.Message{llm.SystemMessage(a.prompt(PromptInput{
		Base:    a.cfg.SystemPrompt,
		Context: t.retrieved.Context,
		Sources: t.retrieved.Sources,
		Tools:   a.deps.Tools.List(),
		Request: q.Context,
	}))}
	for _, m := range history {
		switch m.Role {
		case memory.RoleUser:
			messages = append(messages, llm.UserMessage(m.Content))
		case memory.RoleAssistant:
			messages = append(messages, llm.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, llm.UserMessage(q.Text))

	t.request = &llm.ChatRequest{
		Model:       a.cfg.LLM.Model,
		Messages:    messages,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
		Metadata: map[string]string{
			"agent_type": a.agentType,
			"session_id": t.sessionID,
		},
	}
	return t
}

// loadHistory 读取最近 max_history_messages 条消息，失败时视为空历史
func (a *Agent) loadHistory(ctx context.Context, sessionID string) []memory.ChatMessage {
	msgs, err := a.deps.Memory.GetRecentMessages(ctx, sessionID, a.cfg.MaxHistoryMessages)
	if err != nil {
		a.logger.Warn("failed to load conversation history", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return msgs
}

// retrieve 检索并按相似度阈值过滤，拼接后的上下文不超过 max_context_tokens。
// 超出预算的片段被裁剪或丢弃，Sources 只包含实际进入上下文的片段。
func (a *Agent) retrieve(ctx context.Context, query string, tok tokenizer.Tokenizer) retrieval {
	if a.deps.Knowledge == nil {
		return retrieval{}
	}
	results, err := a.deps.Knowledge.SimilaritySearch(ctx, query, a.cfg.RAG.TopK, rag.Filter{"agent_type": a.agentType})
	if err != nil {
		a.logger.Warn("failed to retrieve context", zap.Error(err))
		return retrieval{}
	}

	budget := a.cfg.RAG.MaxContextTokens
	var chunks []string
	var sources []Source
	for _, r := range results {
		if r.Score < a.cfg.RAG.Threshold() {
			continue
		}
		content := r.Document.Content
		if len(chunks) > 0 {
			// 分隔符 "\n\n" 也计入预算
			budget -= tokenizer.Count(tok, "\n\n")
		}
		n := tokenizer.Count(tok, content)
		if n > budget {
			content = tokenizer.TruncateToTokens(tok, content, budget)
			if content == "" {
				break
			}
			n = budget
		}
		budget -= n
		chunks = append(chunks, content)
		sources = append(sources, newSource(r))
		if budget <= 0 {
			break
		}
	}
	return retrieval{Context: strings.Join(chunks, "\n\n"), Sources: sources}
}

func newSource(r rag.SearchResult) Source {
	meta := r.Document.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	s := Source{
		Content:  preview(r.Document.Content),
		Score:    r.Score,
		Metadata: meta,
	}
	if u, ok := meta["source_url"]; ok {
		s.URL = fmt.Sprint(u)
		s.Title = "Web Document"
		if t, ok := meta["original_title"]; ok {
			s.Title = fmt.Sprint(t)
		}
	}
	return s
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= sourcePreviewChars {
		return content
	}
	return string([]rune(content)[:sourcePreviewChars]) + "..."
}

// saveTurn 追加用户与助手消息，失败只记录日志
func (a *Agent) saveTurn(ctx context.Context, t *turn, answer string, usage llm.ChatUsage) {
	now := a.now()
	userTokens := usage.PromptTokens
	if userTokens == 0 {
		userTokens = tokenizer.Count(t.tok, t.query.Text)
	}
	answerTokens := usage.CompletionTokens
	if answerTokens == 0 {
		answerTokens = tokenizer.Count(t.tok, answer)
	}
	msgs := []memory.ChatMessage{
		{Role: memory.RoleUser, Content: t.query.Text, Timestamp: now, Metadata: map[string]any{"tokens": userTokens}},
		{Role: memory.RoleAssistant, Content: answer, Timestamp: now, Metadata: map[string]any{"tokens": answerTokens}},
	}
	for _, m := range msgs {
		if err := a.deps.Memory.AppendMessage(ctx, t.sessionID, m, a.agentType, t.query.UserID); err != nil {
			a.logger.Warn("failed to save conversation turn", zap.String("session_id", t.sessionID), zap.Error(err))
			return
		}
	}
}

func (a *Agent) buildResponse(t *turn, out *llm.ChatResponse, llmErr error) *Response {
	usage := map[string]any{}
	if llmErr == nil {
		usage = out.Usage.Map()
	}
	meta := map[string]any{
		"model":           out.Model,
		"usage":           usage,
		"context_sources": len(t.retrieved.Sources),
		"agent_type":      a.agentType,
	}
	if llmErr != nil {
		meta["llm_error"] = llmErr.Error()
	}
	sources := t.retrieved.Sources
	if sources == nil {
		sources = []Source{}
	}
	return &Response{
		Content:   out.Content,
		Sources:   sources,
		Metadata:  meta,
		SessionID: t.sessionID,
		Timestamp: a.now(),
	}
}

func (a *Agent) errorResponse(sessionID string, err error) *Response {
	a.logger.Error("error processing query", zap.String("session_id", sessionID), zap.Error(err))
	return &Response{
		Content:   ErrorContent,
		Sources:   []Source{},
		Metadata:  map[string]any{"error": err.Error(), "agent_type": a.agentType},
		SessionID: sessionID,
		Timestamp: a.now(),
	}
}

// AddDocument 写入文档存储并加入向量知识库，返回文档 ID
func (a *Agent) AddDocument(ctx context.Context, content string, metadata map[string]any, filePath string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "agent.add_document", trace.WithAttributes(attribute.String("agent.type", a.agentType)))
	defer span.End()

	meta := make(map[string]any, len(metadata)+2)
	maps.Copy(meta, metadata)
	meta["agent_type"] = a.agentType
	meta["added_at"] = a.now().Format(time.RFC3339)

	id, err := a.deps.Documents.Store(ctx, content, meta, filePath)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("document addition failed: %w", err)
	}
	if filePath != "" {
		meta["file_path"] = filePath
	}
	if a.deps.Knowledge != nil {
		if _, err := a.deps.Knowledge.AddDocuments(ctx, []rag.Document{{ID: id, Content: content, Metadata: meta}}); err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("document addition failed: %w", err)
		}
	}
	a.logger.Info("document added to knowledge base", zap.String("doc_id", id))
	return id, nil
}

// GetSessionHistory 返回会话信息和全部消息
func (a *Agent) GetSessionHistory(ctx context.Context, sessionID string) (*SessionHistory, error) {
	info, err := a.deps.Memory.GetSessionInfo(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := a.deps.Memory.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []memory.ChatMessage{}
	}
	return &SessionHistory{Session: info, Messages: msgs}, nil
}

// DeleteSession 删除会话，返回会话此前是否存在
func (a *Agent) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	return a.deps.Memory.DeleteSession(ctx, sessionID)
}

// ListSessions 列出本 agent 类型的会话
func (a *Agent) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*memory.Session, error) {
	return a.deps.Memory.ListSessions(ctx, memory.SessionFilter{
		UserID:    userID,
		AgentType: a.agentType,
		Limit:     limit,
		Offset:    offset,
	})
}

// ListTools 返回工具名称列表（已排序）
func (a *Agent) ListTools() []string {
	return a.deps.Tools.List()
}

// ToolDetails 返回全部工具的描述
func (a *Agent) ToolDetails() []map[string]any {
	all := a.deps.Tools.All()
	out := make([]map[string]any, 0, len(all))
	for _, t := range all {
		out = append(out, tools.Describe(t))
	}
	return out
}

// ExecuteTool 执行工具。工具不存在、输入无效或执行出错都以失败结果返回。
func (a *Agent) ExecuteTool(ctx context.Context, name, input string, params map[string]any) *tools.Result {
	res, err := a.deps.Tools.Execute(ctx, name, input, params)
	if err != nil {
		if te, ok := types.AsError(err); ok && te.Code != types.ErrToolExecution {
			return tools.Fail(te.Message)
		}
		return tools.Fail(err.Error())
	}
	return res
}

// Info 返回 agent 描述
func (a *Agent) Info() map[string]any {
	return map[string]any{
		"agent_type":           a.agentType,
		"system_prompt":        a.cfg.SystemPrompt,
		"tools":                a.ListTools(),
		"rag_settings":         a.cfg.RAG,
		"llm_settings":         a.cfg.LLM,
		"max_history_messages": a.cfg.MaxHistoryMessages,
		"component_info":       a.componentInfo(),
	}
}

func (a *Agent) componentInfo() map[string]any {
	info := map[string]any{
		"document_store": typeName(a.deps.Documents),
		"memory_backend": typeName(a.deps.Memory),
		"llm_provider":   a.deps.LLM.Name(),
	}
	if kb := a.deps.Knowledge; kb != nil {
		info["vector_store"] = typeName(kb.Store())
		info["embedding_provider"] = kb.Embedder().Name()
	}
	return info
}

// typeName "*docstore.FilesystemStore" -> "FilesystemStore"
func typeName(v any) string {
	if v == nil {
		return ""
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
