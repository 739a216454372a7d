package workbook

import "strings"

// Row はシートの1行を表す型付きの値
// セルは疎に存在するため、添字アクセスは常に存在チェック付きで行う
type Row struct {
	cells []string
}

// NewRow はセル値の列からRowを作成する
func NewRow(cells []string) Row {
	return Row{cells: cells}
}

// Cell は指定列のセル値を返す。列が存在しないか空白のみの場合は ok=false
func (r Row) Cell(col int) (string, bool) {
	if col < 0 || col >= len(r.cells) {
		return "", false
	}
	value := strings.TrimSpace(r.cells[col])
	if value == "" {
		return "", false
	}
	return value, true
}

// Len は行が持つセル数を返す
func (r Row) Len() int {
	return len(r.cells)
}

// NonEmptyCells は空白でないセルの数を返す
func (r Row) NonEmptyCells() int {
	count := 0
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			count++
		}
	}
	return count
}
