package matching

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []*CatalogEntry {
	return []*CatalogEntry{
		{
			ID:          uuid.New(),
			Description: "Excavation in ordinary soil including disposal",
			Rate:        450,
			Unit:        "m3",
		},
		{
			ID:          uuid.New(),
			Description: "Brickwork in cement mortar for superstructure",
			Rate:        6200,
			Unit:        "m3",
		},
		{
			ID:          uuid.New(),
			Description: "Supply and fixing of flush doors",
			Rate:        3500,
			Unit:        "sqm",
		},
	}
}

func TestLexicalMatcher_Match(t *testing.T) {
	normalizer := NewNormalizer(DefaultVocabulary())
	catalog := testCatalog()
	matcher := NewLexicalMatcher(normalizer, catalog, DefaultLexicalThreshold)

	t.Run("一致する明細は対応エントリにマッチする", func(t *testing.T) {
		item := LineItem{Description: "Excavation in ordinary soil including disposal", Quantity: 10}
		candidate, ok := matcher.Match(item).Get()
		require.True(t, ok)
		assert.Equal(t, catalog[0].ID, candidate.CatalogID)
		assert.InDelta(t, 1.0, candidate.CombinedScore, 1e-9)
	})

	t.Run("同義語の違いを越えてマッチする", func(t *testing.T) {
		// blockwork → brick、mortar → concrete に畳み込まれる
		item := LineItem{Description: "Blockwork in mortar for superstructure", Quantity: 5}
		candidate, ok := matcher.Match(item).Get()
		require.True(t, ok)
		assert.Equal(t, catalog[1].ID, candidate.CatalogID)
	})

	t.Run("無関係な明細は閾値を超えずNoneになる", func(t *testing.T) {
		item := LineItem{Description: "Quantum flux capacitor recalibration", Quantity: 1}
		result := matcher.Match(item)
		assert.True(t, result.IsAbsent())
	})

	t.Run("正規化後に空になる明細はNoneになる", func(t *testing.T) {
		item := LineItem{Description: "120 250 13", Quantity: 1}
		result := matcher.Match(item)
		assert.True(t, result.IsAbsent())
	})

	t.Run("信頼度は0.01以上1以下", func(t *testing.T) {
		items := []LineItem{
			{Description: "Excavation in ordinary soil including disposal"},
			{Description: "Brickwork for boundary walls in cement"},
			{Description: "Doors supply and fixing works"},
		}
		for _, item := range items {
			if candidate, ok := matcher.Match(item).Get(); ok {
				assert.GreaterOrEqual(t, candidate.CombinedScore, 0.01)
				assert.LessOrEqual(t, candidate.CombinedScore, 1.0)
			}
		}
	})

	t.Run("full_contextがあればそちらのスコアも採用する", func(t *testing.T) {
		entry := &CatalogEntry{
			ID:          uuid.New(),
			Description: "Item 4.2(a)",
			FullContext: "Concrete works: reinforced concrete grade M25 in columns",
			Rate:        8000,
		}
		m := NewLexicalMatcher(normalizer, []*CatalogEntry{entry}, DefaultLexicalThreshold)

		item := LineItem{Description: "Reinforced concrete grade M25 in columns"}
		candidate, ok := m.Match(item).Get()
		require.True(t, ok)
		assert.Equal(t, entry.ID, candidate.CatalogID)
	})

	t.Run("閾値ゼロ以下はデフォルト閾値になる", func(t *testing.T) {
		m := NewLexicalMatcher(normalizer, catalog, 0)
		assert.InDelta(t, DefaultLexicalThreshold, m.threshold, 1e-9)
	})
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"concrete", "concrete", 0},
		{"brick", "block", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "a=%q b=%q", tt.a, tt.b)
	}
}

func TestLevenshteinRatio(t *testing.T) {
	assert.InDelta(t, 1.0, levenshteinRatio("concrete", "concrete"), 1e-9)
	assert.InDelta(t, 0.0, levenshteinRatio("", ""), 1e-9)
	assert.Greater(t, levenshteinRatio("concrete slab", "concrete slabs"), 0.9)
}
