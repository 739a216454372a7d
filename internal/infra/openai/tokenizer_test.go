package openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizer_Truncate(t *testing.T) {
	tokenizer, err := NewTokenizer()
	require.NoError(t, err)

	t.Run("制限以内ならそのまま返す", func(t *testing.T) {
		got, cut := tokenizer.Truncate("supply and install doors", 100)
		assert.Equal(t, "supply and install doors", got)
		assert.False(t, cut)
	})

	t.Run("制限超過なら切り詰める", func(t *testing.T) {
		long := strings.Repeat("excavation in ordinary soil ", 100)
		got, cut := tokenizer.Truncate(long, 10)
		assert.True(t, cut)
		assert.LessOrEqual(t, tokenizer.CountTokens(got), 10)
		assert.NotEmpty(t, got)
	})

	t.Run("ゼロ以下の上限は無効", func(t *testing.T) {
		got, cut := tokenizer.Truncate("anything", 0)
		assert.Equal(t, "anything", got)
		assert.False(t, cut)
	})
}

func TestTokenizer_CountTokens(t *testing.T) {
	tokenizer, err := NewTokenizer()
	require.NoError(t, err)

	assert.Zero(t, tokenizer.CountTokens(""))
	assert.Greater(t, tokenizer.CountTokens("brickwork in cement mortar"), 0)
}
