package workbook

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/jinford/boq-match/internal/core/matching"
)

// 挿入する結果列のヘッダー
var resultHeaders = []string{"Matched Description", "Rate", "Unit"}

// Exporter はマッチ結果をExcelワークブックとして出力する
type Exporter struct {
	logger *slog.Logger
}

type ExporterOption func(*Exporter)

func WithExporterLogger(logger *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func NewExporter(opts ...ExporterOption) *Exporter {
	e := &Exporter{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export は元のワークブックの書式を保ったまま、数量列の直後に
// マッチ結果の3列を挿入して返す。元ワークブックを開けない場合や
// レイアウトを特定できないシートしかない場合はフラット形式に退避する
func (e *Exporter) Export(original []byte, results []matching.MatchResult) ([]byte, error) {
	if len(results) == 0 {
		return nil, matching.ErrNoMatches
	}

	file, err := excelize.OpenReader(bytes.NewReader(original))
	if err != nil {
		e.logger.Warn("failed to open original workbook, falling back to flat export",
			slog.String("error", err.Error()),
		)
		return e.exportFlat(results)
	}
	defer file.Close()

	bySheet := make(map[string]map[int]matching.MatchResult)
	for _, result := range results {
		rowMap, ok := bySheet[result.SheetName]
		if !ok {
			rowMap = make(map[int]matching.MatchResult)
			bySheet[result.SheetName] = rowMap
		}
		rowMap[result.RowIndex] = result
	}

	written := 0
	for _, sheetName := range file.GetSheetList() {
		rowMap, ok := bySheet[sheetName]
		if !ok {
			// マッチ結果のないシートは変更しない
			continue
		}
		n, err := e.writeSheet(file, sheetName, rowMap)
		if err != nil {
			e.logger.Warn("failed to write results into sheet",
				slog.String("sheet", sheetName),
				slog.String("error", err.Error()),
			)
			continue
		}
		written += n
	}

	if written == 0 {
		e.logger.Warn("no results could be placed in the original workbook, falling back to flat export")
		return e.exportFlat(results)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) writeSheet(file *excelize.File, sheetName string, rowMap map[int]matching.MatchResult) (int, error) {
	rawRows, err := file.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("failed to read rows: %w", err)
	}

	rows := make([]Row, len(rawRows))
	for i, raw := range rawRows {
		rows[i] = NewRow(raw)
	}

	layout, ok := detectLayout(rows)
	if !ok {
		return 0, fmt.Errorf("no usable layout detected")
	}

	// 数量列の直後に結果列を挿入する
	insertAt := layout.QtyCol + 1
	insertName, err := excelize.ColumnNumberToName(insertAt + 1)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve column name: %w", err)
	}
	if err := file.InsertCols(sheetName, insertName, len(resultHeaders)); err != nil {
		return 0, fmt.Errorf("failed to insert result columns: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}

	for offset, header := range resultHeaders {
		cell, err := excelize.CoordinatesToCellName(insertAt+offset+1, layout.HeaderRow+1)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			return 0, fmt.Errorf("failed to write header: %w", err)
		}
		if err := file.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return 0, fmt.Errorf("failed to style header: %w", err)
		}
	}

	written := 0
	for rowIndex, result := range rowMap {
		values := []any{result.MatchedDescription, result.MatchedRate, result.Unit}
		for offset, value := range values {
			cell, err := excelize.CoordinatesToCellName(insertAt+offset+1, rowIndex)
			if err != nil {
				return written, fmt.Errorf("failed to resolve result cell: %w", err)
			}
			if err := file.SetCellValue(sheetName, cell, value); err != nil {
				return written, fmt.Errorf("failed to write result: %w", err)
			}
		}
		written++
	}

	return written, nil
}

// exportFlat は書式保持ができない場合の退避出力。
// 全結果を単一シートの表として新規ワークブックに書き出す
func (e *Exporter) exportFlat(results []matching.MatchResult) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	const sheetName = "Match Results"
	if err := file.SetSheetName(file.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headers := []string{
		"Original Description", "Matched Description", "Rate",
		"Quantity", "Unit", "Total Amount", "Confidence %", "Row", "Sheet",
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, result := range results {
		values := []any{
			result.OriginalDescription,
			result.MatchedDescription,
			result.MatchedRate,
			result.Quantity,
			result.Unit,
			result.TotalAmount,
			result.Confidence * 100,
			result.RowIndex,
			result.SheetName,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve result cell: %w", err)
			}
			if err := file.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write result row: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
