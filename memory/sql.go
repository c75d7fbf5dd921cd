package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionModel agent_sessions 表
type SessionModel struct {
	ID           string    `gorm:"primaryKey;size:128"`
	AgentType    string    `gorm:"size:64;index:idx_agent_sessions_agent_type"`
	UserID       string    `gorm:"size:128;index:idx_agent_sessions_user_id"`
	CreatedAt    time.Time `gorm:"not null"`
	LastActive   time.Time `gorm:"not null;index:idx_agent_sessions_last_active"`
	MessageCount int       `gorm:"not null;default:0"`
	TotalTokens  int       `gorm:"not null;default:0"`
	Metadata     string    `gorm:"type:text"`
}

func (SessionModel) TableName() string { return "agent_sessions" }

// MessageModel agent_messages 表，按自增 ID 保持消息顺序
type MessageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:128;not null;index:idx_agent_messages_session_id"`
	Role      string    `gorm:"size:32;not null"`
	Content   string    `gorm:"type:text;not null"`
	Metadata  string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"not null"`
}

func (MessageModel) TableName() string { return "agent_messages" }

// SQLBackend 基于 gorm 的会话存储
type SQLBackend struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLBackend 创建 SQL 后端；autoMigrate 为 true 时自动建表
func NewSQLBackend(db *gorm.DB, autoMigrate bool, logger *zap.Logger) (*SQLBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if autoMigrate {
		if err := db.AutoMigrate(&SessionModel{}, &MessageModel{}); err != nil {
			return nil, fmt.Errorf("migrate memory tables: %w", err)
		}
	}
	return &SQLBackend{
		db:     db,
		now:    time.Now,
		logger: logger.With(zap.String("component", "sql_memory_backend")),
	}, nil
}

func marshalMeta(meta map[string]any) (string, error) {
	if meta == nil {
		return "", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMeta(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}

func (m *SessionModel) toSession() *Session {
	return &Session{
		ID:           m.ID,
		AgentType:    m.AgentType,
		CreatedAt:    m.CreatedAt,
		LastActive:   m.LastActive,
		MessageCount: m.MessageCount,
		TotalTokens:  m.TotalTokens,
		UserID:       m.UserID,
		Metadata:     unmarshalMeta(m.Metadata),
	}
}

func toMessageModel(sessionID string, msg ChatMessage) (MessageModel, error) {
	meta, err := marshalMeta(msg.Metadata)
	if err != nil {
		return MessageModel{}, err
	}
	return MessageModel{
		SessionID: sessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Metadata:  meta,
		Timestamp: msg.Timestamp,
	}, nil
}

func (b *SQLBackend) SaveSession(ctx context.Context, id string, msgs []ChatMessage, agentType, userID string, meta map[string]any) error {
	now := b.now()
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess SessionModel
		err := tx.Where("id = ?", id).Take(&sess).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sess = SessionModel{ID: id, AgentType: agentType, UserID: userID, CreatedAt: now}
		case err != nil:
			return fmt.Errorf("query session: %w", err)
		}

		sess.LastActive = now
		sess.MessageCount = len(msgs)
		sess.TotalTokens = sumTokens(msgs)
		if meta != nil {
			raw, err := marshalMeta(meta)
			if err != nil {
				return err
			}
			sess.Metadata = raw
		}
		if err := tx.Save(&sess).Error; err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		if err := tx.Where("session_id = ?", id).Delete(&MessageModel{}).Error; err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}
		models := make([]MessageModel, 0, len(msgs))
		for _, m := range msgs {
			mm, err := toMessageModel(id, m)
			if err != nil {
				return err
			}
			models = append(models, mm)
		}
		return tx.Create(&models).Error
	})
}

func (b *SQLBackend) loadMessages(ctx context.Context, id string, limit int) ([]ChatMessage, error) {
	var models []MessageModel
	q := b.db.WithContext(ctx).Where("session_id = ?", id)
	if limit > 0 {
		q = q.Order("id DESC").Limit(limit)
	} else {
		q = q.Order("id ASC")
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	if limit > 0 {
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}
	msgs := make([]ChatMessage, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, ChatMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  unmarshalMeta(m.Metadata),
		})
	}
	return msgs, nil
}

func (b *SQLBackend) LoadSession(ctx context.Context, id string) ([]ChatMessage, error) {
	if _, err := b.GetSessionInfo(ctx, id); err != nil {
		return nil, err
	}
	return b.loadMessages(ctx, id, 0)
}

func (b *SQLBackend) GetSessionInfo(ctx context.Context, id string) (*Session, error) {
	var sess SessionModel
	if err := b.db.WithContext(ctx).Where("id = ?", id).Take(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sessionNotFound(id)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess.toSession(), nil
}

func (b *SQLBackend) DeleteSession(ctx context.Context, id string) (bool, error) {
	var deleted int64
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&MessageModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&SessionModel{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return deleted > 0, nil
}

func (b *SQLBackend) scoped(ctx context.Context, filter SessionFilter) *gorm.DB {
	q := b.db.WithContext(ctx).Model(&SessionModel{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.AgentType != "" {
		q = q.Where("agent_type = ?", filter.AgentType)
	}
	return q
}

func (b *SQLBackend) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	q := b.scoped(ctx, filter).Order("last_active DESC").Order("id ASC")
	limit := filter.Limit
	if limit <= 0 && filter.Offset > 0 {
		// MySQL 不接受没有 LIMIT 的 OFFSET
		limit = math.MaxInt32
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var models []SessionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*Session, 0, len(models))
	for i := range models {
		out = append(out, models[i].toSession())
	}
	return out, nil
}

func (b *SQLBackend) AppendMessage(ctx context.Context, id string, msg ChatMessage, agentType, userID string) error {
	now := b.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	mm, err := toMessageModel(id, msg)
	if err != nil {
		return err
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess SessionModel
		err := tx.Where("id = ?", id).Take(&sess).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sess = SessionModel{ID: id, AgentType: agentType, UserID: userID, CreatedAt: now}
		case err != nil:
			return fmt.Errorf("query session: %w", err)
		}
		sess.LastActive = now
		sess.MessageCount++
		sess.TotalTokens += msg.Tokens()
		if err := tx.Save(&sess).Error; err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return tx.Create(&mm).Error
	})
}

func (b *SQLBackend) GetRecentMessages(ctx context.Context, id string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultRecentMessages
	}
	return b.loadMessages(ctx, id, limit)
}

func (b *SQLBackend) CountSessions(ctx context.Context, filter SessionFilter) (int, error) {
	var n int64
	if err := b.scoped(ctx, filter).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

func (b *SQLBackend) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := b.now().Add(-maxAge)
	var removed int64
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&SessionModel{}).Select("id").Where("last_active < ?", cutoff)
		if err := tx.Where("session_id IN (?)", expired).Delete(&MessageModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("last_active < ?", cutoff).Delete(&SessionModel{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	if removed > 0 {
		b.logger.Info("expired sessions removed", zap.Int64("count", removed))
	}
	return int(removed), nil
}
