package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Normalize(t *testing.T) {
	normalizer := NewNormalizer(DefaultVocabulary())

	t.Run("小文字化と記号除去", func(t *testing.T) {
		got := normalizer.Normalize("Supply & Install DOORS (hardwood)")
		assert.Equal(t, "provide install door hardwood", got.Text)
	})

	t.Run("数値と単位の除去", func(t *testing.T) {
		got := normalizer.Normalize("supply 12mm steel bars 250 no")
		assert.NotContains(t, got.Tokens, "12mm")
		assert.NotContains(t, got.Tokens, "250")
		assert.Contains(t, got.Tokens, "steel")
	})

	t.Run("同義語を代表語へ畳み込む", func(t *testing.T) {
		tests := []struct {
			input string
			want  string
		}{
			{input: "brickwork", want: "brick"},
			{input: "cement mortar", want: "concrete concrete"},
			{input: "excavation", want: "excavate"},
			{input: "timber lumber", want: "wood wood"},
		}
		for _, tt := range tests {
			got := normalizer.Normalize(tt.input)
			assert.Equal(t, tt.want, got.Text, "input=%q", tt.input)
		}
	})

	t.Run("同義語の連鎖も1回の正規化で終端語に到達する", func(t *testing.T) {
		// steelwork → steel、brickworks → (接尾辞) brickwork → brick
		assert.Equal(t, "steel", normalizer.Normalize("steelwork").Text)
		assert.Equal(t, "brick", normalizer.Normalize("brickworks").Text)
	})

	t.Run("ストップワードを除去する", func(t *testing.T) {
		got := normalizer.Normalize("the supply of doors to the site")
		assert.NotContains(t, got.Tokens, "the")
		assert.NotContains(t, got.Tokens, "of")
		assert.NotContains(t, got.Tokens, "to")
	})

	t.Run("冪等性: 正規化済みテキストを再度正規化しても変わらない", func(t *testing.T) {
		inputs := []string{
			"Brickworks in cement mortar 1:4 in superstructure",
			"Providing and laying 150mm thick PCC 1:2:4",
			"Steelwork fabrication & erection for roof trusses",
			"Excavations in hard rock by chiselling, 2.5m depth",
			"Supply and installation of 900x2100 flush doors",
		}
		for _, input := range inputs {
			once := normalizer.Normalize(input)
			twice := normalizer.Normalize(once.Text)
			assert.Equal(t, once.Text, twice.Text, "input=%q", input)
			assert.Equal(t, once.Tokens, twice.Tokens, "input=%q", input)
		}
	})

	t.Run("キーワードとして寸法と仕様指定を抽出する", func(t *testing.T) {
		got := normalizer.Normalize("Concrete grade M25 for 300mm columns")
		assert.Contains(t, got.Keywords, "300mm")
		assert.Contains(t, got.Keywords, "grade m25")
	})

	t.Run("空文字列", func(t *testing.T) {
		got := normalizer.Normalize("")
		assert.Empty(t, got.Text)
		assert.Empty(t, got.Tokens)
	})

	t.Run("代替語彙でも決定的に動作する", func(t *testing.T) {
		vocab := Vocabulary{
			Synonyms:  map[string]string{"foo": "bar"},
			StopWords: map[string]struct{}{"baz": {}},
			Units:     []string{"kg"},
		}
		n := NewNormalizer(vocab)
		got := n.Normalize("foo baz 10kg qux")
		assert.Equal(t, "bar qux", got.Text)
	})
}

func TestResolveSynonymChains(t *testing.T) {
	t.Run("2段の連鎖を終端語まで解決する", func(t *testing.T) {
		resolved := resolveSynonymChains(map[string]string{
			"a": "b",
			"b": "c",
		})
		assert.Equal(t, "c", resolved["a"])
		assert.Equal(t, "c", resolved["b"])
	})

	t.Run("循環があっても停止する", func(t *testing.T) {
		resolved := resolveSynonymChains(map[string]string{
			"a": "b",
			"b": "a",
		})
		require.Len(t, resolved, 2)
	})
}

func TestJaccard(t *testing.T) {
	t.Run("完全一致は1", func(t *testing.T) {
		assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	})

	t.Run("共通要素なしは0", func(t *testing.T) {
		assert.InDelta(t, 0.0, Jaccard([]string{"a"}, []string{"b"}), 1e-9)
	})

	t.Run("部分的な重なり", func(t *testing.T) {
		// {a,b,c} ∩ {b,c,d} = 2, ∪ = 4
		assert.InDelta(t, 0.5, Jaccard([]string{"a", "b", "c"}, []string{"b", "c", "d"}), 1e-9)
	})

	t.Run("両方空は0", func(t *testing.T) {
		assert.InDelta(t, 0.0, Jaccard(nil, nil), 1e-9)
	})

	t.Run("対称性", func(t *testing.T) {
		a := []string{"concrete", "slab", "floor"}
		b := []string{"concrete", "beam"}
		assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
	})
}
