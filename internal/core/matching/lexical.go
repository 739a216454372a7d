package matching

import (
	"github.com/samber/mo"
)

const (
	// DefaultLexicalThreshold は字句マッチの採用閾値。再現率優先で緩めに設定する
	DefaultLexicalThreshold = 0.25
	// minSubstringLength は候補に残すために必要な共通部分文字列の最小長
	minSubstringLength = 3
)

// 複合スコアの重み。キーワードが両側に無い場合はキーワード項を除いて再配分する
const (
	lexLevenshteinWeight = 0.5
	lexTokenWeight       = 0.3
	lexKeywordWeight     = 0.2
)

// catalogIndex は正規化済みカタログと部分文字列フィルタ用のインデックス
// descriptionとfull_contextの両方を持つエントリは両方の正規化形を保持し、
// スコアは良い方を採用する
type catalogIndex struct {
	entry    *CatalogEntry
	norms    []NormalizedText
	trigrams map[string]struct{}
}

// LexicalMatcher はトークン重み付きの編集距離・重なり尺度で
// カタログを全探索する字句マッチャー。外部サービスに依存しない
type LexicalMatcher struct {
	normalizer *Normalizer
	threshold  float64
	index      []catalogIndex
}

// NewLexicalMatcher はカタログを前処理してLexicalMatcherを作成する
// カタログはジョブの生存期間中読み取り専用なので前計算を1回で済ませる
func NewLexicalMatcher(normalizer *Normalizer, catalog []*CatalogEntry, threshold float64) *LexicalMatcher {
	if threshold <= 0 {
		threshold = DefaultLexicalThreshold
	}

	index := make([]catalogIndex, 0, len(catalog))
	for _, entry := range catalog {
		norms := []NormalizedText{normalizer.Normalize(entry.Description)}
		if entry.FullContext != "" && entry.FullContext != entry.Description {
			norms = append(norms, normalizer.Normalize(entry.FullContext))
		}

		trigrams := make(map[string]struct{})
		for _, norm := range norms {
			for g := range trigramSet(norm.Text) {
				trigrams[g] = struct{}{}
			}
		}

		index = append(index, catalogIndex{
			entry:    entry,
			norms:    norms,
			trigrams: trigrams,
		})
	}

	return &LexicalMatcher{
		normalizer: normalizer,
		threshold:  threshold,
		index:      index,
	}
}

// Match は明細に最も近いカタログエントリを返す
// 閾値を超える候補が無い場合は None（明細は結果から除外される）
func (m *LexicalMatcher) Match(item LineItem) mo.Option[MatchCandidate] {
	norm := m.normalizer.Normalize(item.Description)
	if norm.Text == "" {
		return mo.None[MatchCandidate]()
	}
	itemTrigrams := trigramSet(norm.Text)

	best := mo.None[MatchCandidate]()
	bestScore := 0.0
	for i := range m.index {
		cand := &m.index[i]

		// 長さ3以上の共通部分文字列を持たない候補は閾値を超えられない
		if !shareTrigram(itemTrigrams, cand.trigrams) {
			continue
		}

		score := 0.0
		for _, entryNorm := range cand.norms {
			if s := m.score(norm, entryNorm); s > score {
				score = s
			}
		}
		if score < m.threshold || score <= bestScore {
			continue
		}

		distance := 1 - score
		confidence := 1 - distance
		if confidence < 0.01 {
			confidence = 0.01
		}
		bestScore = score
		best = mo.Some(MatchCandidate{
			CatalogID:     cand.entry.ID,
			CombinedScore: confidence,
			LexicalScore:  score,
		})
	}

	return best
}

// score は編集距離比・トークンJaccard・キーワード重なりの加重和を返す
func (m *LexicalMatcher) score(item, entry NormalizedText) float64 {
	lev := levenshteinRatio(item.Text, entry.Text)
	tok := Jaccard(item.Tokens, entry.Tokens)

	if len(item.Keywords) == 0 || len(entry.Keywords) == 0 {
		total := lexLevenshteinWeight + lexTokenWeight
		return (lexLevenshteinWeight*lev + lexTokenWeight*tok) / total
	}

	key := keywordOverlap(item.Keywords, entry.Keywords)
	return lexLevenshteinWeight*lev + lexTokenWeight*tok + lexKeywordWeight*key
}

// keywordOverlap はキーワード集合の一致率（クエリ側基準）を返す
func keywordOverlap(query, entry map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for kw := range query {
		if _, ok := entry[kw]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// levenshteinRatio は 1 - dist/maxLen を返す。どちらも空なら0
func levenshteinRatio(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein は2行DP法による編集距離
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// trigramSet は文字列の長さ3の部分文字列集合を返す
func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for i := 0; i+minSubstringLength <= len(s); i++ {
		set[s[i:i+minSubstringLength]] = struct{}{}
	}
	return set
}

func shareTrigram(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for g := range a {
		if _, ok := b[g]; ok {
			return true
		}
	}
	return false
}
