package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BaSui01/agentbase/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func msg(role, content string, ts time.Time) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: ts}
}

// runBackendContract 对任意 Backend 实现执行同一组行为测试
func runBackendContract(t *testing.T, newBackend func(t *testing.T, c *clock) Backend) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)

		msgs := []ChatMessage{
			msg(RoleUser, "hi", c.t),
			msg(RoleAssistant, "hello", c.t),
		}
		require.NoError(t, b.SaveSession(ctx, "s1", msgs, "general", "u1", map[string]any{"channel": "web"}))

		loaded, err := b.LoadSession(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "hi", loaded[0].Content)
		assert.Equal(t, RoleAssistant, loaded[1].Role)

		info, err := b.GetSessionInfo(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "general", info.AgentType)
		assert.Equal(t, "u1", info.UserID)
		assert.Equal(t, 2, info.MessageCount)
		assert.Equal(t, "web", info.Metadata["channel"])
		assert.WithinDuration(t, c.t, info.CreatedAt, time.Second)
	})

	t.Run("save keeps owner", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)

		require.NoError(t, b.SaveSession(ctx, "s1", []ChatMessage{msg(RoleUser, "a", c.t)}, "general", "u1", nil))
		c.advance(time.Minute)
		require.NoError(t, b.SaveSession(ctx, "s1", []ChatMessage{msg(RoleUser, "b", c.t)}, "research_agent", "u2", nil))

		info, err := b.GetSessionInfo(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "general", info.AgentType)
		assert.Equal(t, "u1", info.UserID)
		assert.Equal(t, 1, info.MessageCount)
		assert.True(t, info.LastActive.After(info.CreatedAt))
	})

	t.Run("missing session", func(t *testing.T) {
		b := newBackend(t, newClock())

		_, err := b.LoadSession(ctx, "ghost")
		assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))
		_, err = b.GetSessionInfo(ctx, "ghost")
		assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))

		recent, err := b.GetRecentMessages(ctx, "ghost", 5)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("append creates session", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)

		user := msg(RoleUser, "question", c.t)
		reply := msg(RoleAssistant, "answer", c.t)
		reply.Metadata = map[string]any{"tokens": 42}
		require.NoError(t, b.AppendMessage(ctx, "s2", user, "code_assistant", "dev"))
		require.NoError(t, b.AppendMessage(ctx, "s2", reply, "code_assistant", "dev"))

		info, err := b.GetSessionInfo(ctx, "s2")
		require.NoError(t, err)
		assert.Equal(t, "code_assistant", info.AgentType)
		assert.Equal(t, "dev", info.UserID)
		assert.Equal(t, 2, info.MessageCount)
		assert.Equal(t, 42, info.TotalTokens)

		loaded, err := b.LoadSession(ctx, "s2")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "answer", loaded[1].Content)
	})

	t.Run("recent messages", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)

		for i := 0; i < 15; i++ {
			require.NoError(t, b.AppendMessage(ctx, "s3", msg(RoleUser, fmt.Sprintf("m%d", i), c.t), "general", ""))
		}

		last3, err := b.GetRecentMessages(ctx, "s3", 3)
		require.NoError(t, err)
		require.Len(t, last3, 3)
		assert.Equal(t, "m12", last3[0].Content)
		assert.Equal(t, "m14", last3[2].Content)

		def, err := b.GetRecentMessages(ctx, "s3", 0)
		require.NoError(t, err)
		assert.Len(t, def, DefaultRecentMessages)
	})

	t.Run("delete", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)
		require.NoError(t, b.AppendMessage(ctx, "s4", msg(RoleUser, "x", c.t), "general", ""))

		ok, err := b.DeleteSession(ctx, "s4")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.DeleteSession(ctx, "s4")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = b.LoadSession(ctx, "s4")
		assert.Error(t, err)
	})

	t.Run("list and count", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)

		seed := []struct{ id, agent, user string }{
			{"a", "general", "alice"},
			{"b", "general", "bob"},
			{"c", "research_agent", "alice"},
			{"d", "general", "alice"},
		}
		for _, s := range seed {
			require.NoError(t, b.AppendMessage(ctx, s.id, msg(RoleUser, "hi", c.t), s.agent, s.user))
			c.advance(time.Minute)
		}

		all, err := b.ListSessions(ctx, SessionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "d", all[0].ID)
		assert.Equal(t, "a", all[3].ID)

		general, err := b.ListSessions(ctx, SessionFilter{AgentType: "general", UserID: "alice"})
		require.NoError(t, err)
		require.Len(t, general, 2)
		assert.Equal(t, "d", general[0].ID)

		page, err := b.ListSessions(ctx, SessionFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "c", page[0].ID)
		assert.Equal(t, "b", page[1].ID)

		n, err := b.CountSessions(ctx, SessionFilter{UserID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = b.CountSessions(ctx, SessionFilter{})
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("cleanup expired", func(t *testing.T) {
		c := newClock()
		b := newBackend(t, c)

		require.NoError(t, b.AppendMessage(ctx, "old", msg(RoleUser, "x", c.t), "general", ""))
		c.advance(48 * time.Hour)
		require.NoError(t, b.AppendMessage(ctx, "fresh", msg(RoleUser, "y", c.t), "general", ""))

		removed, err := b.CleanupExpiredSessions(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = b.GetSessionInfo(ctx, "old")
		assert.Error(t, err)
		_, err = b.GetSessionInfo(ctx, "fresh")
		assert.NoError(t, err)
	})
}
