package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleDocs() []Document {
	return []Document{
		{ID: "a", Content: "alpha", Metadata: map[string]any{"agent_type": "general", "n": 1}, Embedding: []float64{1, 0, 0}},
		{ID: "b", Content: "beta", Metadata: map[string]any{"agent_type": "general", "n": 2}, Embedding: []float64{0.8, 0.2, 0}},
		{ID: "c", Content: "gamma", Metadata: map[string]any{"agent_type": "code_assistant"}, Embedding: []float64{0, 1, 0}},
	}
}

func TestFilter_Matches(t *testing.T) {
	meta := map[string]any{"agent_type": "general", "n": float64(2)}
	assert.True(t, Filter(nil).Matches(meta))
	assert.True(t, Filter{"agent_type": "general"}.Matches(meta))
	assert.True(t, Filter{"n": 2}.Matches(meta))
	assert.False(t, Filter{"agent_type": "other"}.Matches(meta))
	assert.False(t, Filter{"missing": "x"}.Matches(meta))
	assert.False(t, Filter{"agent_type": "general"}.Matches(nil))
}

func TestInMemoryVectorStore_SearchAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryVectorStore(zap.NewNop())
	require.NoError(t, s.AddDocuments(ctx, sampleDocs()))

	results, err := s.Search(ctx, []float64{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "b", results[1].Document.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	results, err = s.Search(ctx, []float64{0, 1, 0}, 5, Filter{"agent_type": "general"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Document.ID)

	results, err = s.Search(ctx, []float64{1, 0, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryVectorStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryVectorStore(nil)
	require.NoError(t, s.AddDocuments(ctx, sampleDocs()))

	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count(ctx, Filter{"agent_type": "general"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// upsert keeps count stable
	require.NoError(t, s.AddDocuments(ctx, []Document{{ID: "a", Content: "alpha2", Embedding: []float64{1, 0, 0}}}))
	doc, err := s.GetDocument(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "alpha2", doc.Content)
	n, _ = s.Count(ctx, nil)
	assert.Equal(t, 3, n)

	docs, err := s.ListDocuments(ctx, nil, 2, 1)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)

	docs, err = s.ListDocuments(ctx, nil, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, s.DeleteDocuments(ctx, []string{"a", "missing"}))
	doc, err = s.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, doc)
	doc, err = s.GetDocument(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "gamma", doc.Content)

	require.NoError(t, s.ClearAll(ctx))
	n, _ = s.Count(ctx, nil)
	assert.Zero(t, n)
}

func TestInMemoryVectorStore_RejectsMissingEmbedding(t *testing.T) {
	s := NewInMemoryVectorStore(nil)
	err := s.AddDocuments(context.Background(), []Document{{ID: "x", Content: "no vector"}})
	assert.Error(t, err)
	err = s.AddDocuments(context.Background(), []Document{{Content: "no id", Embedding: []float64{1}}})
	assert.Error(t, err)
}

func TestPersistentVectorStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewPersistentVectorStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.AddDocuments(ctx, sampleDocs()))
	require.NoError(t, s.DeleteDocuments(ctx, []string{"c"}))

	reopened, err := NewPersistentVectorStore(dir, nil)
	require.NoError(t, err)
	n, err := reopened.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// JSON 往返后数值元数据仍可过滤
	n, err = reopened.Count(ctx, Filter{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{2, 3}, paginate(items, 2, 1))
	assert.Equal(t, []int{3, 4}, paginate(items, 0, 2))
	assert.Equal(t, []int{}, paginate(items, 2, 9))
	assert.Equal(t, []int{1, 2, 3, 4}, paginate(items, 10, -1))
}
