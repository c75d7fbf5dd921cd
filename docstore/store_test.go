package docstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/BaSui01/agentbase/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID_Format(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	id := GenerateID("hello", map[string]any{"b": 1, "a": "x"}, now)

	assert.Regexp(t, regexp.MustCompile(`^20250314_092653_[0-9a-f]{16}_[0-9a-f]{8}$`), id)
	assert.Equal(t, ContentHash("hello")[:16], id[16:32])

	// 元数据键顺序不影响 ID
	other := GenerateID("hello", map[string]any{"a": "x", "b": 1}, now)
	assert.Equal(t, id, other)
}

func TestMatchFilter(t *testing.T) {
	meta := map[string]any{"type": "pdf", "page": float64(3)}

	assert.True(t, matchFilter(meta, nil))
	assert.True(t, matchFilter(meta, map[string]any{"type": "pdf"}))
	assert.True(t, matchFilter(meta, map[string]any{"page": 3}))
	assert.True(t, matchFilter(meta, map[string]any{"missing": "anything"}))
	assert.False(t, matchFilter(meta, map[string]any{"type": "txt"}))
}

// clock 返回可手动推进的时间源
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// runStoreContract 对任意 Store 实现执行同一组行为测试
func runStoreContract(t *testing.T, newStore func(t *testing.T, c *clock) Store) {
	ctx := context.Background()

	t.Run("store and get", func(t *testing.T) {
		c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		s := newStore(t, c)

		id, err := s.Store(ctx, "Go is great", map[string]any{"source": "notes"}, "notes.txt")
		require.NoError(t, err)

		doc, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Go is great", doc.Content)
		assert.Equal(t, "notes", doc.Metadata["source"])
		assert.Equal(t, "notes.txt", doc.FilePath)
		assert.Equal(t, ContentHash("Go is great"), doc.ContentHash)
		assert.WithinDuration(t, c.t, doc.CreatedAt, time.Second)
	})

	t.Run("dedup by content", func(t *testing.T) {
		c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		s := newStore(t, c)

		id1, err := s.Store(ctx, "same", map[string]any{"v": 1}, "")
		require.NoError(t, err)
		c.advance(time.Minute)
		id2, err := s.Store(ctx, "same", map[string]any{"v": 2}, "")
		require.NoError(t, err)

		assert.Equal(t, id1, id2)
		n, err := s.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		byHash, err := s.GetByHash(ctx, ContentHash("same"))
		require.NoError(t, err)
		assert.Equal(t, id1, byHash.ID)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now()})
		_, err := s.Get(ctx, "nope")
		assert.True(t, types.IsErrorCode(err, types.ErrDocumentNotFound))
	})

	t.Run("update merges metadata", func(t *testing.T) {
		c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		s := newStore(t, c)

		id, err := s.Store(ctx, "v1", map[string]any{"a": "1", "b": "2"}, "")
		require.NoError(t, err)

		c.advance(time.Hour)
		newContent := "v2"
		require.NoError(t, s.Update(ctx, id, &newContent, map[string]any{"b": "3", "c": "4"}))

		doc, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "v2", doc.Content)
		assert.Equal(t, ContentHash("v2"), doc.ContentHash)
		assert.Equal(t, map[string]any{"a": "1", "b": "3", "c": "4"}, doc.Metadata)
		assert.True(t, doc.UpdatedAt.After(doc.CreatedAt))

		err = s.Update(ctx, "missing", nil, map[string]any{"x": 1})
		assert.True(t, types.IsErrorCode(err, types.ErrDocumentNotFound))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now()})
		id, err := s.Store(ctx, "bye", nil, "")
		require.NoError(t, err)

		ok, err := s.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, id)
		assert.Error(t, err)
	})

	t.Run("list filter order paginate", func(t *testing.T) {
		c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		s := newStore(t, c)

		var ids []string
		for i, kind := range []string{"pdf", "txt", "pdf", "md"} {
			id, err := s.Store(ctx, "doc "+string(rune('a'+i)), map[string]any{"kind": kind}, "")
			require.NoError(t, err)
			ids = append(ids, id)
			c.advance(time.Minute)
		}
		_, err := s.Store(ctx, "untagged", map[string]any{}, "")
		require.NoError(t, err)

		all, err := s.List(ctx, ListOptions{OrderBy: "created_at"})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, ids[0], all[0].ID)

		desc, err := s.List(ctx, ListOptions{OrderBy: "-created_at", Limit: 2})
		require.NoError(t, err)
		require.Len(t, desc, 2)
		assert.Equal(t, "untagged", desc[0].Content)
		assert.Equal(t, ids[3], desc[1].ID)

		// 缺少 kind 键的文档同样通过过滤
		pdfs, err := s.List(ctx, ListOptions{Filter: map[string]any{"kind": "pdf"}, OrderBy: "created_at"})
		require.NoError(t, err)
		require.Len(t, pdfs, 3)
		assert.Equal(t, ids[0], pdfs[0].ID)
		assert.Equal(t, ids[2], pdfs[1].ID)

		page, err := s.List(ctx, ListOptions{OrderBy: "created_at", Offset: 4, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 1)

		n, err := s.Count(ctx, map[string]any{"kind": "txt"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("search", func(t *testing.T) {
		c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		s := newStore(t, c)

		_, err := s.Store(ctx, "Kubernetes operators in Go", map[string]any{"topic": "infra"}, "")
		require.NoError(t, err)
		c.advance(time.Second)
		_, err = s.Store(ctx, "Baking bread", map[string]any{"topic": "Cooking"}, "")
		require.NoError(t, err)
		c.advance(time.Second)
		_, err = s.Store(ctx, "Sourdough starter", map[string]any{"topic": "cooking"}, "")
		require.NoError(t, err)

		res, err := s.Search(ctx, "KUBERNETES", nil, 0)
		require.NoError(t, err)
		require.Len(t, res, 1)

		res, err = s.Search(ctx, "cooking", nil, 0)
		require.NoError(t, err)
		assert.Len(t, res, 2)

		res, err = s.Search(ctx, "cooking", map[string]any{"topic": "cooking"}, 0)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "Sourdough starter", res[0].Content)

		res, err = s.Search(ctx, "o", nil, 2)
		require.NoError(t, err)
		assert.Len(t, res, 2)
	})
}
