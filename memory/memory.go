package memory

import (
	"context"
	"sort"
	"time"

	"github.com/BaSui01/agentbase/types"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultRecentMessages GetRecentMessages 的默认条数
const DefaultRecentMessages = 10

// ChatMessage 会话中的一条消息
type ChatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage 创建带当前时间戳的消息
func NewMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: time.Now()}
}

// Tokens 返回 metadata["tokens"] 中记录的 token 数
func (m ChatMessage) Tokens() int {
	switch v := m.Metadata["tokens"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Session 会话摘要信息，不含消息正文
type Session struct {
	ID           string         `json:"session_id"`
	AgentType    string         `json:"agent_type"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActive   time.Time      `json:"last_active"`
	MessageCount int            `json:"message_count"`
	TotalTokens  int            `json:"total_tokens"`
	UserID       string         `json:"user_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SessionFilter 会话列表过滤条件，空字段不过滤，Limit<=0 表示不限
type SessionFilter struct {
	UserID    string
	AgentType string
	Limit     int
	Offset    int
}

func (f SessionFilter) match(s *Session) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.AgentType != "" && s.AgentType != f.AgentType {
		return false
	}
	return true
}

// Backend 会话记忆后端
type Backend interface {
	// SaveSession 覆盖会话消息；已存在的会话保留 agent 类型和用户，metadata 非空时替换
	SaveSession(ctx context.Context, id string, msgs []ChatMessage, agentType, userID string, meta map[string]any) error
	LoadSession(ctx context.Context, id string) ([]ChatMessage, error)
	GetSessionInfo(ctx context.Context, id string) (*Session, error)
	// DeleteSession 返回会话此前是否存在
	DeleteSession(ctx context.Context, id string) (bool, error)
	// ListSessions 按 last_active 降序返回
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)
	// AppendMessage 追加消息，会话不存在时创建
	AppendMessage(ctx context.Context, id string, msg ChatMessage, agentType, userID string) error
	GetRecentMessages(ctx context.Context, id string, limit int) ([]ChatMessage, error)
	CountSessions(ctx context.Context, filter SessionFilter) (int, error)
	// CleanupExpiredSessions 删除 last_active 早于 maxAge 的会话并返回数量
	CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error)
}

func sessionNotFound(id string) error {
	return types.Errorf(types.ErrSessionNotFound, "session %s not found", id)
}

func sumTokens(msgs []ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += m.Tokens()
	}
	return total
}

// filterSessions 过滤、排序并分页
func filterSessions(all []*Session, filter SessionFilter) []*Session {
	out := make([]*Session, 0, len(all))
	for _, s := range all {
		if filter.match(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActive.After(out[j].LastActive)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*Session{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

func recent(msgs []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 {
		limit = DefaultRecentMessages
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
