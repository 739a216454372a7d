package workbook

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/jinford/boq-match/internal/core/matching"
)

const (
	// minDescriptionLength / maxDescriptionLength は明細説明として採用する文字数の範囲
	minDescriptionLength = 5
	maxDescriptionLength = 500
)

// itemCodePattern はアイテムコード単体のセル(例: "A101", "BQ23")を弾くためのパターン
var itemCodePattern = regexp.MustCompile(`^[A-Za-z]{1,5}\d+$`)

// Parser はExcelワークブックからBOQ明細行を抽出する
type Parser struct {
	logger *slog.Logger
}

var _ matching.Parser = (*Parser)(nil)

type ParserOption func(*Parser)

func WithParserLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse はワークブックの全シートを走査し、妥当な明細行を抽出する
// シート単位の失敗は警告ログを出してスキップし、処理を継続する
func (p *Parser) Parse(data []byte) ([]matching.LineItem, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer file.Close()

	var items []matching.LineItem
	for _, sheetName := range file.GetSheetList() {
		sheetItems, err := p.parseSheet(file, sheetName)
		if err != nil {
			p.logger.Warn("failed to parse sheet, skipping",
				slog.String("sheet", sheetName),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, sheetItems...)
	}

	return items, nil
}

func (p *Parser) parseSheet(file *excelize.File, sheetName string) ([]matching.LineItem, error) {
	rawRows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	rows := make([]Row, len(rawRows))
	for i, raw := range rawRows {
		rows[i] = NewRow(raw)
	}

	layout, ok := detectLayout(rows)
	if !ok {
		p.logger.Warn("no usable layout detected", slog.String("sheet", sheetName))
		return nil, nil
	}

	p.logger.Debug("sheet layout detected",
		slog.String("sheet", sheetName),
		slog.String("strategy", layout.StrategyTag),
		slog.Int("header_row", layout.HeaderRow),
		slog.Int("desc_col", layout.DescCol),
		slog.Int("qty_col", layout.QtyCol),
	)

	var (
		items          []matching.LineItem
		currentSection string
	)

	for rowIdx := layout.HeaderRow + 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]

		desc, hasDesc := row.Cell(layout.DescCol)
		qtyRaw, hasQty := row.Cell(layout.QtyCol)

		// 説明のみで数量が空の行はセクション見出し候補として扱う
		if hasDesc && !hasQty {
			if header := sectionHeaderOf(desc, row); header != "" {
				currentSection = header
			}
			continue
		}

		if !hasDesc || !hasQty {
			continue
		}
		if !isValidDescription(desc) {
			continue
		}

		quantity, ok := parseQuantity(qtyRaw)
		if !ok {
			continue
		}

		item := matching.LineItem{
			Description:   strings.TrimSpace(desc),
			Quantity:      quantity,
			RowIndex:      rowIdx + 1,
			SheetName:     sheetName,
			SectionHeader: currentSection,
		}
		if layout.UnitCol >= 0 {
			if unit, ok := row.Cell(layout.UnitCol); ok {
				item.Unit = strings.TrimSpace(unit)
			}
		}

		items = append(items, item)
	}

	return items, nil
}

// isValidDescription は明細説明として妥当か判定する
func isValidDescription(value string) bool {
	trimmed := strings.TrimSpace(value)
	length := utf8.RuneCountInString(trimmed)
	if length < minDescriptionLength || length > maxDescriptionLength {
		return false
	}
	if itemCodePattern.MatchString(trimmed) {
		return false
	}
	return containsLetter(trimmed)
}

func containsLetter(value string) bool {
	for _, r := range value {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// parseQuantity は桁区切りや通貨混じりの数量セルを許容的に解釈する
// 正の数のみを採用する
func parseQuantity(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")

	quantity, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || quantity <= 0 {
		return 0, false
	}
	return quantity, true
}

// sectionHeaderKeywords を含む説明はセクション見出しの兆候とみなす
var sectionHeaderKeywords = []string{"section", "part", "chapter", "category", "group", "summary", "total"}

// sectionHeaderOf はセクション見出しとして採用する文字列を返す
// 見出しとみなせない場合は空文字を返す
// 全て大文字・末尾コロン・見出しキーワードのいずれかを持ち、かつ行の
// 非空セルが2個以下であることを要求する。説明のみの注記行（文頭のみ
// 大文字の文章など）を見出しと誤認しないための制約
func sectionHeaderOf(value string, row Row) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || !containsLetter(trimmed) {
		return ""
	}
	if utf8.RuneCountInString(trimmed) > maxDescriptionLength {
		return ""
	}
	if row.NonEmptyCells() > 2 {
		return ""
	}

	isAllCaps := trimmed == strings.ToUpper(trimmed) && utf8.RuneCountInString(trimmed) > 3
	hasColon := strings.HasSuffix(trimmed, ":")
	hasKeyword := false
	lower := strings.ToLower(trimmed)
	for _, kw := range sectionHeaderKeywords {
		if strings.Contains(lower, kw) {
			hasKeyword = true
			break
		}
	}

	if !isAllCaps && !hasColon && !hasKeyword {
		return ""
	}
	return trimmed
}
