package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSessions 内存后端默认会话上限
const DefaultMaxSessions = 1000

// InMemoryBackend 进程内会话存储；超过上限时淘汰最久未活跃的会话
type InMemoryBackend struct {
	mu          sync.RWMutex
	messages    map[string][]ChatMessage
	sessions    map[string]*Session
	maxSessions int
	now         func() time.Time
	logger      *zap.Logger
}

// NewInMemoryBackend 创建内存后端，maxSessions<=0 时使用默认值
func NewInMemoryBackend(maxSessions int, logger *zap.Logger) *InMemoryBackend {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryBackend{
		messages:    make(map[string][]ChatMessage),
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		now:         time.Now,
		logger:      logger.With(zap.String("component", "in_memory_backend")),
	}
}

func (b *InMemoryBackend) SaveSession(ctx context.Context, id string, msgs []ChatMessage, agentType, userID string, meta map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := make([]ChatMessage, len(msgs))
	copy(stored, msgs)
	b.messages[id] = stored
	b.touch(id, agentType, userID, meta)
	b.evictExcess()
	return nil
}

// touch 更新或创建会话信息，调用方持有写锁
func (b *InMemoryBackend) touch(id, agentType, userID string, meta map[string]any) {
	now := b.now()
	msgs := b.messages[id]
	s, ok := b.sessions[id]
	if !ok {
		s = &Session{
			ID:        id,
			AgentType: agentType,
			CreatedAt: now,
			UserID:    userID,
		}
		b.sessions[id] = s
	}
	s.LastActive = now
	s.MessageCount = len(msgs)
	s.TotalTokens = sumTokens(msgs)
	if meta != nil {
		s.Metadata = copyMeta(meta)
	}
}

func (b *InMemoryBackend) evictExcess() {
	excess := len(b.sessions) - b.maxSessions
	if excess <= 0 {
		return
	}
	ordered := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LastActive.Before(ordered[j].LastActive)
	})
	for _, s := range ordered[:excess] {
		delete(b.sessions, s.ID)
		delete(b.messages, s.ID)
	}
	b.logger.Debug("evicted sessions", zap.Int("count", excess))
}

func (b *InMemoryBackend) LoadSession(ctx context.Context, id string) ([]ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs, ok := b.messages[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (b *InMemoryBackend) GetSessionInfo(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	cp := *s
	return &cp, nil
}

func (b *InMemoryBackend) DeleteSession(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[id]
	delete(b.sessions, id)
	delete(b.messages, id)
	return ok, nil
}

func (b *InMemoryBackend) snapshot() []*Session {
	all := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		cp := *s
		all = append(all, &cp)
	}
	return all
}

func (b *InMemoryBackend) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	all := b.snapshot()
	b.mu.RUnlock()
	return filterSessions(all, filter), nil
}

func (b *InMemoryBackend) AppendMessage(ctx context.Context, id string, msg ChatMessage, agentType, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[id] = append(b.messages[id], msg)
	b.touch(id, agentType, userID, nil)
	b.evictExcess()
	return nil
}

func (b *InMemoryBackend) GetRecentMessages(ctx context.Context, id string, limit int) ([]ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return recent(b.messages[id], limit), nil
}

func (b *InMemoryBackend) CountSessions(ctx context.Context, filter SessionFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.sessions {
		if filter.match(s) {
			n++
		}
	}
	return n, nil
}

func (b *InMemoryBackend) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-maxAge)
	removed := 0
	for id, s := range b.sessions {
		if s.LastActive.Before(cutoff) {
			delete(b.sessions, id)
			delete(b.messages, id)
			removed++
		}
	}
	if removed > 0 {
		b.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return removed, nil
}

// Stats 返回会话与消息统计
func (b *InMemoryBackend) Stats() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, msgs := range b.messages {
		total += len(msgs)
	}
	avg := 0.0
	if len(b.sessions) > 0 {
		avg = float64(total) / float64(len(b.sessions))
	}
	return map[string]any{
		"total_sessions":               len(b.sessions),
		"total_messages":               total,
		"max_sessions":                 b.maxSessions,
		"average_messages_per_session": avg,
	}
}
