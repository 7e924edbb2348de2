package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/xuri/excelize/v2"
)

// workbook wraps an opened spreadsheet with its resolved sheet and raw rows.
type workbook struct {
	sheet string
	rows  [][]string
}

// openWorkbook loads the upload and selects the sheet for the DocType. Raw
// cell values are requested so date cells arrive as serial numbers rather
// than locale-formatted strings.
func openWorkbook(r io.Reader, docTypeName string) (*workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &types.InputError{Message: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList(), docTypeName)
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &types.InputError{Message: fmt.Sprintf("cannot read sheet %q: %v", sheet, err)}
	}
	return &workbook{sheet: sheet, rows: rows}, nil
}

// pickSheet tries the conventional template sheet names in preference order
// before falling back to the first sheet.
func pickSheet(sheets []string, docTypeName string) string {
	if len(sheets) == 0 {
		return ""
	}
	candidates := []string{
		"Data " + docTypeName,
		"Template Kosong",
		"Data",
		docTypeName,
	}
	for _, want := range candidates {
		for _, s := range sheets {
			if strings.EqualFold(strings.TrimSpace(s), want) {
				return s
			}
		}
	}
	return sheets[0]
}

// headerIndex maps every header cell to its column index, keyed by the exact
// text plus lower and upper case variants. Earlier columns win on collision.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header)*3)
	put := func(key string, col int) {
		if key == "" {
			return
		}
		if _, ok := idx[key]; !ok {
			idx[key] = col
		}
	}
	for col, cell := range header {
		name := strings.TrimSpace(cell)
		put(name, col)
		put(strings.ToLower(name), col)
		put(strings.ToUpper(name), col)
	}
	return idx
}

// resolveColumn finds the source column for a field, trying in order: the
// declared excel column, the display label, then the field identifier with an
// underscore-to-space variant. First match wins.
func resolveColumn(f *models.DocTypeField, idx map[string]int) (int, bool) {
	tryKeys := []string{}
	if f.ExcelColumn != "" {
		tryKeys = append(tryKeys, f.ExcelColumn, strings.ToLower(f.ExcelColumn), strings.ToUpper(f.ExcelColumn))
	}
	if f.Label != "" {
		tryKeys = append(tryKeys, f.Label, strings.ToLower(f.Label), strings.ToUpper(f.Label))
	}
	spaced := strings.ReplaceAll(f.FieldName, "_", " ")
	tryKeys = append(tryKeys, f.FieldName, strings.ToLower(f.FieldName), spaced, strings.ToLower(spaced))

	for _, key := range tryKeys {
		if col, ok := idx[key]; ok {
			return col, true
		}
	}
	return 0, false
}

// cellAt returns the raw cell text; short rows read as empty cells.
func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}
