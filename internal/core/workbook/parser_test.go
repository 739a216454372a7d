package workbook

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()

	file := excelize.NewFile()
	defer file.Close()

	first := true
	for sheetName, rows := range sheets {
		if first {
			require.NoError(t, file.SetSheetName(file.GetSheetName(0), sheetName))
			first = false
		} else {
			_, err := file.NewSheet(sheetName)
			require.NoError(t, err)
		}
		for rowIdx, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			require.NoError(t, err)
			require.NoError(t, file.SetSheetRow(sheetName, cell, &row))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, file.Write(&buf))
	return buf.Bytes()
}

func TestParser_Parse(t *testing.T) {
	parser := NewParser()

	t.Run("ヘッダー行を検出して明細行を抽出する", func(t *testing.T) {
		data := buildWorkbook(t, map[string][][]any{
			"BOQ": {
				{"Item Description", "Quantity", "Unit"},
				{"Excavation in ordinary soil", 120.5, "m3"},
				{"Brickwork in cement mortar", "1,200", "m2"},
			},
		})

		items, err := parser.Parse(data)
		require.NoError(t, err)
		require.Len(t, items, 2)

		assert.Equal(t, "Excavation in ordinary soil", items[0].Description)
		assert.InDelta(t, 120.5, items[0].Quantity, 1e-9)
		assert.Equal(t, "m3", items[0].Unit)
		assert.Equal(t, 2, items[0].RowIndex)
		assert.Equal(t, "BOQ", items[0].SheetName)

		// 桁区切りは除去して解釈する
		assert.InDelta(t, 1200, items[1].Quantity, 1e-9)
	})

	t.Run("ヘッダーが無い場合は列0と列1を採用する", func(t *testing.T) {
		data := buildWorkbook(t, map[string][][]any{
			"Sheet1": {
				{"", ""},
				{"Concrete grade M25 for foundations", 45},
			},
		})

		items, err := parser.Parse(data)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Concrete grade M25 for foundations", items[0].Description)
	})

	t.Run("無効な明細行を捨てる", func(t *testing.T) {
		data := buildWorkbook(t, map[string][][]any{
			"BOQ": {
				{"Description", "Qty"},
				// 短すぎる説明、アイテムコード単体、文字を含まない説明、
				// 正でない数量の行はいずれも捨てられる
				{"abc", 10},
				{"A101", 5},
				{"1234567", 3},
				{"Valid excavation work", 0},
				{"Valid excavation work", -2},
				{"Valid excavation work", 8},
			},
		})

		items, err := parser.Parse(data)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Valid excavation work", items[0].Description)
		assert.Equal(t, 7, items[0].RowIndex)
	})

	t.Run("数量が空の行をセクション見出しとして引き継ぐ", func(t *testing.T) {
		data := buildWorkbook(t, map[string][][]any{
			"BOQ": {
				{"Description", "Qty"},
				{"EARTHWORKS", ""},
				{"Excavation in ordinary soil", 10},
				{"CONCRETE WORKS", ""},
				{"Concrete grade M25 in columns", 20},
			},
		})

		items, err := parser.Parse(data)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "EARTHWORKS", items[0].SectionHeader)
		assert.Equal(t, "CONCRETE WORKS", items[1].SectionHeader)
	})

	t.Run("説明のみの注記行は見出しを上書きしない", func(t *testing.T) {
		data := buildWorkbook(t, map[string][][]any{
			"BOQ": {
				{"Description", "Qty"},
				{"EARTHWORKS", ""},
				{"Rates are deemed to include all cutting and waste", ""},
				{"Excavation in ordinary soil", 10},
			},
		})

		items, err := parser.Parse(data)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "EARTHWORKS", items[0].SectionHeader)
	})

	t.Run("壊れたデータはエラーを返す", func(t *testing.T) {
		_, err := parser.Parse([]byte("not a workbook"))
		assert.Error(t, err)
	})
}

func TestDetectLayout(t *testing.T) {
	t.Run("先頭5行より後のヘッダーは検出しない", func(t *testing.T) {
		rows := []Row{
			NewRow([]string{"a", "b"}),
			NewRow([]string{"a", "b"}),
			NewRow([]string{"a", "b"}),
			NewRow([]string{"a", "b"}),
			NewRow([]string{"a", "b"}),
			NewRow([]string{"Description", "Quantity"}),
		}

		layout, ok := detectLayout(rows)
		require.True(t, ok)
		assert.Equal(t, "positional", layout.StrategyTag)
	})

	t.Run("部分文字列一致でヘッダーを認識する", func(t *testing.T) {
		rows := []Row{
			NewRow([]string{"Sl.", "Work Description", "Total Qty", "Unit of Measure"}),
		}

		layout, ok := detectLayout(rows)
		require.True(t, ok)
		assert.Equal(t, "header-scan", layout.StrategyTag)
		assert.Equal(t, 1, layout.DescCol)
		assert.Equal(t, 2, layout.QtyCol)
		assert.Equal(t, 3, layout.UnitCol)
	})

	t.Run("空のシートは検出に失敗する", func(t *testing.T) {
		_, ok := detectLayout(nil)
		assert.False(t, ok)
	})
}

func TestIsValidDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "4文字は短すぎる", input: "abcd", want: false},
		{name: "5文字は許容する", input: "abcde", want: true},
		{name: "500文字は許容する", input: strings.Repeat("a", 500), want: true},
		{name: "501文字は長すぎる", input: strings.Repeat("a", 501), want: false},
		{name: "アイテムコード単体は無効", input: "AB123", want: false},
		{name: "文字を含まない値は無効", input: "12345 678", want: false},
		{name: "通常の明細説明", input: "Excavation in ordinary soil", want: true},
		{name: "前後の空白を無視して判定する", input: "  abc  ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidDescription(tt.input))
		})
	}
}

func TestSectionHeaderOf(t *testing.T) {
	tests := []struct {
		name string
		cell string
		row  []string
		want string
	}{
		{name: "全て大文字の行は見出し", cell: "EARTHWORKS", row: []string{"EARTHWORKS", ""}, want: "EARTHWORKS"},
		{name: "末尾コロンの行は見出し", cell: "Substructure works:", row: []string{"Substructure works:", ""}, want: "Substructure works:"},
		{name: "見出しキーワードを含む行は見出し", cell: "Part B - Finishes", row: []string{"Part B - Finishes", ""}, want: "Part B - Finishes"},
		{name: "文頭のみ大文字の注記は見出しでない", cell: "Rates include all cutting and waste", row: []string{"Rates include all cutting and waste", ""}, want: ""},
		{name: "非空セルが3個以上の行は見出しでない", cell: "EARTHWORKS", row: []string{"EARTHWORKS", "see note", "rev 2"}, want: ""},
		{name: "3文字以下の大文字は見出しでない", cell: "ABC", row: []string{"ABC", ""}, want: ""},
		{name: "文字を含まない値は見出しでない", cell: "12345", row: []string{"12345", ""}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sectionHeaderOf(tt.cell, NewRow(tt.row)))
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "整数", input: "10", want: 10, ok: true},
		{name: "小数", input: "12.5", want: 12.5, ok: true},
		{name: "桁区切り", input: "1,234.5", want: 1234.5, ok: true},
		{name: "前後の空白", input: " 42 ", want: 42, ok: true},
		{name: "ゼロ", input: "0", ok: false},
		{name: "負数", input: "-5", ok: false},
		{name: "数値でない", input: "ten", ok: false},
		{name: "空文字", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseQuantity(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
