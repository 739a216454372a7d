package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/boq-match/internal/core/matching"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
	assert.Equal(t, 100, embedder.MaxBatchSize())
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestBatchEmbedRejectsInvalidBatch(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	t.Run("空のバッチ", func(t *testing.T) {
		_, err := embedder.BatchEmbed(context.Background(), nil, matching.RoleDocument)
		assert.Error(t, err)
	})

	t.Run("最大サイズ超過", func(t *testing.T) {
		texts := make([]string, 101)
		for i := range texts {
			texts[i] = "text"
		}
		_, err := embedder.BatchEmbed(context.Background(), texts, matching.RoleDocument)
		assert.ErrorContains(t, err, "exceeds maximum")
	})
}
