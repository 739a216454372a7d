package workbook

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jinford/boq-match/internal/core/matching"
)

func TestExporter_Export(t *testing.T) {
	exporter := NewExporter()

	original := buildWorkbook(t, map[string][][]any{
		"BOQ": {
			{"Description", "Quantity", "Unit"},
			{"Excavation in ordinary soil", 120.5, "m3"},
			{"Brickwork in cement mortar", 80, "m2"},
		},
	})

	results := []matching.MatchResult{
		{
			ID:                  uuid.New(),
			OriginalDescription: "Excavation in ordinary soil",
			MatchedDescription:  "Excavation in soil incl disposal",
			MatchedRate:         450.0,
			Unit:                "m3",
			Quantity:            120.5,
			TotalAmount:         54225.0,
			Confidence:          0.91,
			RowIndex:            2,
			SheetName:           "BOQ",
		},
	}

	t.Run("数量列の直後に結果列を挿入する", func(t *testing.T) {
		out, err := exporter.Export(original, results)
		require.NoError(t, err)

		file, err := excelize.OpenReader(bytes.NewReader(out))
		require.NoError(t, err)
		defer file.Close()

		// ヘッダー行: Quantity(B列)の直後のC,D,Eが結果列になる
		header, err := file.GetCellValue("BOQ", "C1")
		require.NoError(t, err)
		assert.Equal(t, "Matched Description", header)

		matched, err := file.GetCellValue("BOQ", "C2")
		require.NoError(t, err)
		assert.Equal(t, "Excavation in soil incl disposal", matched)

		rate, err := file.GetCellValue("BOQ", "D2")
		require.NoError(t, err)
		assert.Equal(t, "450", rate)

		// 元のUnit列は挿入分だけ右にずれて保持される
		unit, err := file.GetCellValue("BOQ", "F2")
		require.NoError(t, err)
		assert.Equal(t, "m3", unit)

		// マッチしなかった行の結果列は空のまま
		empty, err := file.GetCellValue("BOQ", "C3")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("結果が空ならエラーを返す", func(t *testing.T) {
		_, err := exporter.Export(original, nil)
		assert.ErrorIs(t, err, matching.ErrNoMatches)
	})

	t.Run("元ワークブックを開けない場合はフラット形式に退避する", func(t *testing.T) {
		out, err := exporter.Export([]byte("broken"), results)
		require.NoError(t, err)

		file, err := excelize.OpenReader(bytes.NewReader(out))
		require.NoError(t, err)
		defer file.Close()

		header, err := file.GetCellValue("Match Results", "A1")
		require.NoError(t, err)
		assert.Equal(t, "Original Description", header)

		desc, err := file.GetCellValue("Match Results", "B2")
		require.NoError(t, err)
		assert.Equal(t, "Excavation in soil incl disposal", desc)
	})

	t.Run("該当シートの無い結果はフラット形式に退避する", func(t *testing.T) {
		foreign := []matching.MatchResult{
			{
				OriginalDescription: "Excavation in ordinary soil",
				MatchedDescription:  "Excavation in soil incl disposal",
				RowIndex:            2,
				SheetName:           "Unknown Sheet",
			},
		}

		out, err := exporter.Export(original, foreign)
		require.NoError(t, err)

		file, err := excelize.OpenReader(bytes.NewReader(out))
		require.NoError(t, err)
		defer file.Close()

		header, err := file.GetCellValue("Match Results", "A1")
		require.NoError(t, err)
		assert.Equal(t, "Original Description", header)
	})
}
