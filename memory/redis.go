package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions Redis 后端选项
type RedisOptions struct {
	// KeyPrefix 默认 "agentbase:memory:"
	KeyPrefix string
	// SessionTimeout 会话键的 TTL，<=0 表示不过期
	SessionTimeout time.Duration
}

// RedisBackend 基于 Redis 的会话存储。
//
// 键布局：
//
//	<prefix>session:<id>   hash，会话信息
//	<prefix>messages:<id>  list，JSON 编码的消息
//	<prefix>sessions       zset，score 为 last_active (UnixNano)
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewRedisBackend 创建 Redis 后端
func NewRedisBackend(client *redis.Client, opts RedisOptions, logger *zap.Logger) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "agentbase:memory:"
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: prefix,
		ttl:       opts.SessionTimeout,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "redis_memory_backend")),
	}, nil
}

// Ping 检查 Redis 连接
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) sessionKey(id string) string  { return b.keyPrefix + "session:" + id }
func (b *RedisBackend) messagesKey(id string) string { return b.keyPrefix + "messages:" + id }
func (b *RedisBackend) indexKey() string             { return b.keyPrefix + "sessions" }

func (b *RedisBackend) expire(ctx context.Context, pipe redis.Pipeliner, id string) {
	if b.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, b.sessionKey(id), b.ttl)
	pipe.Expire(ctx, b.messagesKey(id), b.ttl)
}

func encodeMessages(msgs []ChatMessage) ([]any, error) {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message: %w", err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

func decodeMessages(raw []string) ([]ChatMessage, error) {
	msgs := make([]ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (b *RedisBackend) SaveSession(ctx context.Context, id string, msgs []ChatMessage, agentType, userID string, meta map[string]any) error {
	exists, err := b.client.Exists(ctx, b.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	encoded, err := encodeMessages(msgs)
	if err != nil {
		return err
	}

	now := b.now()
	fields := map[string]any{
		"last_active":   now.Format(time.RFC3339Nano),
		"message_count": len(msgs),
		"total_tokens":  sumTokens(msgs),
	}
	if exists == 0 {
		fields["agent_type"] = agentType
		fields["user_id"] = userID
		fields["created_at"] = now.Format(time.RFC3339Nano)
	}
	if meta != nil {
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal session metadata: %w", err)
		}
		fields["metadata"] = string(data)
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.messagesKey(id))
	if len(encoded) > 0 {
		pipe.RPush(ctx, b.messagesKey(id), encoded...)
	}
	pipe.HSet(ctx, b.sessionKey(id), fields)
	pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: id})
	b.expire(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (b *RedisBackend) LoadSession(ctx context.Context, id string) ([]ChatMessage, error) {
	exists, err := b.client.Exists(ctx, b.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return nil, sessionNotFound(id)
	}
	raw, err := b.client.LRange(ctx, b.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return decodeMessages(raw)
}

func parseSession(id string, h map[string]string) *Session {
	s := &Session{
		ID:        id,
		AgentType: h["agent_type"],
		UserID:    h["user_id"],
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, h["created_at"])
	s.LastActive, _ = time.Parse(time.RFC3339Nano, h["last_active"])
	s.MessageCount, _ = strconv.Atoi(h["message_count"])
	s.TotalTokens, _ = strconv.Atoi(h["total_tokens"])
	if raw := h["metadata"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &s.Metadata)
	}
	return s
}

func (b *RedisBackend) GetSessionInfo(ctx context.Context, id string) (*Session, error) {
	h, err := b.client.HGetAll(ctx, b.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(h) == 0 {
		return nil, sessionNotFound(id)
	}
	return parseSession(id, h), nil
}

func (b *RedisBackend) DeleteSession(ctx context.Context, id string) (bool, error) {
	pipe := b.client.TxPipeline()
	del := pipe.Del(ctx, b.sessionKey(id), b.messagesKey(id))
	pipe.ZRem(ctx, b.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// allSessions 读取索引中的全部会话，过期的索引项顺带清理
func (b *RedisBackend) allSessions(ctx context.Context) ([]*Session, error) {
	ids, err := b.client.ZRevRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list session index: %w", err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := b.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, b.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	stale := make([]any, 0)
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sessions = append(sessions, parseSession(ids[i], h))
	}
	if len(stale) > 0 {
		if err := b.client.ZRem(ctx, b.indexKey(), stale...).Err(); err != nil {
			b.logger.Warn("prune session index failed", zap.Error(err))
		}
	}
	return sessions, nil
}

func (b *RedisBackend) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	all, err := b.allSessions(ctx)
	if err != nil {
		return nil, err
	}
	return filterSessions(all, filter), nil
}

func (b *RedisBackend) AppendMessage(ctx context.Context, id string, msg ChatMessage, agentType, userID string) error {
	now := b.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	sk := b.sessionKey(id)
	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, b.messagesKey(id), string(data))
	pipe.HSetNX(ctx, sk, "agent_type", agentType)
	pipe.HSetNX(ctx, sk, "user_id", userID)
	pipe.HSetNX(ctx, sk, "created_at", now.Format(time.RFC3339Nano))
	pipe.HSet(ctx, sk, "last_active", now.Format(time.RFC3339Nano))
	pipe.HIncrBy(ctx, sk, "message_count", 1)
	pipe.HIncrBy(ctx, sk, "total_tokens", int64(msg.Tokens()))
	pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: id})
	b.expire(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (b *RedisBackend) GetRecentMessages(ctx context.Context, id string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultRecentMessages
	}
	raw, err := b.client.LRange(ctx, b.messagesKey(id), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	return decodeMessages(raw)
}

func (b *RedisBackend) CountSessions(ctx context.Context, filter SessionFilter) (int, error) {
	all, err := b.allSessions(ctx)
	if err != nil {
		return 0, err
	}
	filter.Limit, filter.Offset = 0, 0
	return len(filterSessions(all, filter)), nil
}

func (b *RedisBackend) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := b.now().Add(-maxAge).UnixNano()
	ids, err := b.client.ZRangeByScore(ctx, b.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("query expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := b.client.TxPipeline()
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		pipe.Del(ctx, b.sessionKey(id), b.messagesKey(id))
		members = append(members, id)
	}
	pipe.ZRem(ctx, b.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	b.logger.Info("expired sessions removed", zap.Int("count", len(ids)))
	return len(ids), nil
}
