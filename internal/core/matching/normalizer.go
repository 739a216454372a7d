package matching

import (
	"regexp"
	"strings"
)

// NormalizedText は正規化済みテキストとその派生データを表す
// LineItem / CatalogEntry ごとに1回計算してキャッシュする
type NormalizedText struct {
	Text     string
	Tokens   []string
	Keywords map[string]struct{}
}

// suffixList は同義語畳み込み後に剥がす接尾辞。長いものから試す
var suffixList = []string{"ings", "ing", "ed", "es", "s"}

// Normalizer は自由記述の明細テキストを比較可能な形へ正規化する
// 決定的かつ冪等: 正規化済み文字列を再度正規化しても同じ文字列になる
type Normalizer struct {
	vocab Vocabulary

	nonAlnum   *regexp.Regexp
	numberUnit *regexp.Regexp
	bareNumber *regexp.Regexp

	measurement *regexp.Regexp
	specMarker  *regexp.Regexp
}

// NewNormalizer は語彙設定からNormalizerを作成する
// 同義語マップは連鎖を解決して取り込む（steelwork→steel→metal のような
// 2段写像が1回の適用で済むようにする。冪等性のために必要）
func NewNormalizer(vocab Vocabulary) *Normalizer {
	vocab.Synonyms = resolveSynonymChains(vocab.Synonyms)

	unitAlt := strings.Join(vocab.Units, "|")
	return &Normalizer{
		vocab:       vocab,
		nonAlnum:    regexp.MustCompile(`[^a-z0-9\s]`),
		numberUnit:  regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:` + unitAlt + `)\b`),
		bareNumber:  regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),
		measurement: regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:mm|cm|m2|m3|sqm|cum|m|inch|in|ft)\b`),
		specMarker:  regexp.MustCompile(`(?:grade|class|type|size)\s*\w+`),
	}
}

// resolveSynonymChains はマップの値側を終端語まで辿って畳み込む
func resolveSynonymChains(synonyms map[string]string) map[string]string {
	resolved := make(map[string]string, len(synonyms))
	for key, target := range synonyms {
		seen := map[string]struct{}{key: {}}
		for {
			next, ok := synonyms[target]
			if !ok || next == target {
				break
			}
			if _, cycled := seen[next]; cycled {
				break
			}
			seen[next] = struct{}{}
			target = next
		}
		resolved[key] = target
	}
	return resolved
}

// Normalize はテキストを正規化し、トークン列とキーワード集合を返す
func (n *Normalizer) Normalize(raw string) NormalizedText {
	keywords := n.extractKeywords(raw)

	s := strings.ToLower(raw)
	s = n.nonAlnum.ReplaceAllString(s, " ")
	s = n.numberUnit.ReplaceAllString(s, " ")
	s = n.bareNumber.ReplaceAllString(s, " ")

	var tokens []string
	for _, word := range strings.Fields(s) {
		word = n.normalizeWord(word)
		if word == "" {
			continue
		}
		if _, stop := n.vocab.StopWords[word]; stop {
			continue
		}
		tokens = append(tokens, word)

		if _, key := n.vocab.KeyTerms[word]; key {
			keywords[word] = struct{}{}
		}
	}

	return NormalizedText{
		Text:     strings.Join(tokens, " "),
		Tokens:   tokens,
		Keywords: keywords,
	}
}

// normalizeWord は同義語畳み込みと接尾辞除去を不動点まで繰り返す
// 各反復で語が短くなるか同義語の終端語に写るため必ず停止する
func (n *Normalizer) normalizeWord(word string) string {
	for {
		prev := word
		if folded, ok := n.vocab.Synonyms[word]; ok {
			word = folded
		}
		if len(word) > 3 {
			for _, suffix := range suffixList {
				if strings.HasSuffix(word, suffix) && len(word) > len(suffix) {
					word = word[:len(word)-len(suffix)]
					break
				}
			}
		}
		if word == prev {
			return word
		}
	}
}

// extractKeywords は寸法・仕様指定などの重要キーワードを元テキストから抽出する
func (n *Normalizer) extractKeywords(raw string) map[string]struct{} {
	keywords := make(map[string]struct{})
	lower := strings.ToLower(raw)

	for _, m := range n.measurement.FindAllString(lower, -1) {
		keywords[strings.Join(strings.Fields(m), "")] = struct{}{}
	}
	for _, m := range n.specMarker.FindAllString(lower, -1) {
		keywords[strings.Join(strings.Fields(m), " ")] = struct{}{}
	}
	return keywords
}

// Jaccard は空白区切りトークン集合のJaccard類似度を返す
// 両方が空の場合は0。対称: Jaccard(a,b) == Jaccard(b,a)
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
