package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("a")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "non-empty text counts at least one token")

	n, err = e.CountTokens("你好世界")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 4096, e.MaxTokens())
}

func TestEstimator_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("any", 100)
	n, err := e.CountMessages([]Message{{Role: "user", Content: "abcdefgh"}})
	require.NoError(t, err)
	assert.Equal(t, 2+4+3, n)
}

func TestGetTokenizer_LongestPrefix(t *testing.T) {
	short := NewEstimatorTokenizer("short", 10)
	long := NewEstimatorTokenizer("long", 20)
	RegisterTokenizer("test-model", short)
	RegisterTokenizer("test-model-large", long)

	got, err := GetTokenizer("test-model-large-v2")
	require.NoError(t, err)
	assert.Equal(t, 20, got.MaxTokens())

	_, err = GetTokenizer("unregistered-xyz")
	assert.Error(t, err)
	assert.Equal(t, "estimator", GetTokenizerOrEstimator("unregistered-xyz").Name())
}

func TestIsOpenAIModel(t *testing.T) {
	assert.True(t, IsOpenAIModel("gpt-3.5-turbo"))
	assert.True(t, IsOpenAIModel("text-embedding-ada-002"))
	assert.False(t, IsOpenAIModel("claude-3-haiku"))
	assert.False(t, IsOpenAIModel("gemini-1.5-flash"))
}

func TestForModel_NonOpenAI(t *testing.T) {
	assert.Equal(t, "estimator", ForModel("claude-3-5-sonnet").Name())
}

func TestLookupEncoding(t *testing.T) {
	assert.Equal(t, "o200k_base", lookupEncoding("gpt-4o-mini-2024").encoding)
	assert.Equal(t, 128000, lookupEncoding("gpt-4-turbo-preview").maxTokens)
	assert.Equal(t, 8192, lookupEncoding("gpt-4-0613").maxTokens)
	assert.Equal(t, "cl100k_base", lookupEncoding("unknown").encoding)
}

type failingTokenizer struct{ *EstimatorTokenizer }

func newFailing() failingTokenizer { return failingTokenizer{NewEstimatorTokenizer("f", 0)} }

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("offline") }
func (failingTokenizer) Encode(string) ([]int, error)    { return nil, errors.New("offline") }
func (failingTokenizer) CountMessages([]Message) (int, error) {
	return 0, errors.New("offline")
}

func TestFallback_Degrades(t *testing.T) {
	f := NewFallback(newFailing(), NewEstimatorTokenizer("m", 50))
	assert.False(t, f.Degraded())

	n, err := f.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, f.Degraded())
	assert.Equal(t, "estimator", f.Name())
}

func TestTruncateToTokens(t *testing.T) {
	e := NewEstimatorTokenizer("m", 0)
	text := strings.Repeat("word ", 100)

	out := TruncateToTokens(e, text, 10)
	n, err := e.CountTokens(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 10)
	assert.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(text, out))

	assert.Equal(t, "short", TruncateToTokens(e, "short", 10))
	assert.Empty(t, TruncateToTokens(e, text, 0))
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(newFailing(), "x"))
	assert.Equal(t, 2, Count(NewEstimatorTokenizer("m", 0), "abcdefgh"))
}
