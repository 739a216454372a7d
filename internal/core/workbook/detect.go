package workbook

import (
	"regexp"
	"strings"
)

// headerScanRows はヘッダー行を探索する先頭行数
const headerScanRows = 5

// ヘッダー語彙。正規化済みセル値に対する部分文字列一致で判定する
var (
	descriptionHeaders = []string{"description", "item", "work", "activity", "task"}
	quantityHeaders    = []string{"quantity", "qty", "amount", "number", "no"}
	unitHeaders        = []string{"unit", "uom", "measure"}
)

// detection はヘッダー検出の結果。行・列はすべて0始まり
type detection struct {
	HeaderRow   int
	DescCol     int
	QtyCol      int
	UnitCol     int // 見つからなければ -1
	Confidence  float64
	StrategyTag string
}

// detectStrategy はシート構造の検出戦略
// 検出方針を順序付きリストとして明示し、個別に単体テストできるようにする
type detectStrategy interface {
	Detect(rows []Row) (detection, bool)
}

// strategies は適用順の検出戦略。最初に成功したものを採用する
var strategies = []detectStrategy{
	headerScanStrategy{},
	positionalStrategy{},
}

// detectLayout は戦略を順に試し、最初に成功した検出結果を返す
func detectLayout(rows []Row) (detection, bool) {
	for _, s := range strategies {
		if d, ok := s.Detect(rows); ok {
			return d, true
		}
	}
	return detection{}, false
}

var headerNormalizer = regexp.MustCompile(`[^a-z0-9]`)

// normalizeHeader はヘッダーセル値を比較用に正規化する
func normalizeHeader(value string) string {
	return headerNormalizer.ReplaceAllString(strings.ToLower(value), "")
}

func matchesAny(normalized string, vocab []string) bool {
	if normalized == "" {
		return false
	}
	for _, candidate := range vocab {
		if strings.Contains(normalized, candidate) {
			return true
		}
	}
	return false
}

// headerScanStrategy は先頭数行から説明語と数量語を同時に含む行を探す
type headerScanStrategy struct{}

func (headerScanStrategy) Detect(rows []Row) (detection, bool) {
	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}

	for rowIdx := 0; rowIdx < limit; rowIdx++ {
		row := rows[rowIdx]
		descCol, qtyCol, unitCol := -1, -1, -1

		for colIdx := 0; colIdx < row.Len(); colIdx++ {
			value, ok := row.Cell(colIdx)
			if !ok {
				continue
			}
			normalized := normalizeHeader(value)

			switch {
			case descCol < 0 && matchesAny(normalized, descriptionHeaders):
				descCol = colIdx
			case qtyCol < 0 && matchesAny(normalized, quantityHeaders):
				qtyCol = colIdx
			case unitCol < 0 && matchesAny(normalized, unitHeaders):
				unitCol = colIdx
			}
		}

		if descCol >= 0 && qtyCol >= 0 {
			return detection{
				HeaderRow:   rowIdx,
				DescCol:     descCol,
				QtyCol:      qtyCol,
				UnitCol:     unitCol,
				Confidence:  1.0,
				StrategyTag: "header-scan",
			}, true
		}
	}

	return detection{}, false
}

// positionalStrategy はヘッダーが見つからない場合の固定フォールバック
// 列0=説明、列1=数量、ヘッダー行=行0 とみなす
type positionalStrategy struct{}

func (positionalStrategy) Detect(rows []Row) (detection, bool) {
	if len(rows) == 0 {
		return detection{}, false
	}
	return detection{
		HeaderRow:   0,
		DescCol:     0,
		QtyCol:      1,
		UnitCol:     -1,
		Confidence:  0.3,
		StrategyTag: "positional",
	}, true
}
