package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/xuri/excelize/v2"
)

func salesDocType() *models.DocType {
	return &models.DocType{
		ID:   1,
		Name: "Sales",
		Slug: "sales",
		Fields: []models.DocTypeField{
			{Label: "Tanggal", FieldName: "sale_date", FieldType: models.FieldDate, IsRequired: true, ShowInForm: true},
			{Label: "Qty", FieldName: "qty", FieldType: models.FieldNumber, IsRequired: true, ShowInForm: true},
			{Label: "Status", FieldName: "status", FieldType: models.FieldSelect,
				Options: models.StringList{"Open", "Closed"}, ShowInForm: true},
			{Label: "Internal Note", FieldName: "internal_note", FieldType: models.FieldText, ShowInForm: false},
		},
	}
}

func writeSheetRows(t *testing.T, f *excelize.File, sheet string, rows [][]any) {
	t.Helper()
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Failed to compute cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			t.Fatalf("Failed to write sheet row: %v", err)
		}
	}
}

func workbookReader(t *testing.T, f *excelize.File) io.Reader {
	t.Helper()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func singleSheetWorkbook(t *testing.T, sheet string, rows [][]any) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		t.Fatalf("Failed to rename sheet: %v", err)
	}
	writeSheetRows(t, f, sheet, rows)
	return workbookReader(t, f)
}

func testPipeline(t *testing.T, maxRows int) *Pipeline {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("Failed to load timezone: %v", err)
	}
	return NewPipeline(loc, nil, maxRows)
}

func TestParseAcceptsCleanRows(t *testing.T) {
	rows := [][]any{
		{"Tanggal", "Qty", "Status"},
		{"15/01/2023", 5, "Open"},
		{"16/01/2023", 3, "closed"},
		{"17/01/2023", 1, ""},
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !res.OK {
		t.Fatalf("Expected OK result, got errors: %v", res.Errors)
	}
	if res.Total != 3 || res.Failed != 0 || len(res.Rows) != 3 {
		t.Errorf("Unexpected counts: total=%d failed=%d rows=%d", res.Total, res.Failed, len(res.Rows))
	}
	if res.Sheet != "Data" {
		t.Errorf("Sheet = %q, want Data", res.Sheet)
	}

	first := res.Rows[0]
	if first.Line != 2 {
		t.Errorf("First data row line = %d, want 2", first.Line)
	}
	if got := first.Values["qty"].SQLValue(); got != int64(5) {
		t.Errorf("qty = %v, want 5", got)
	}
	// Select values canonicalize to the declared casing.
	if got := res.Rows[1].Values["status"].SQLValue(); got != "Closed" {
		t.Errorf("status = %v, want Closed", got)
	}
	// Optional empty cells coerce to null, not an error.
	if !res.Rows[2].Values["status"].Null {
		t.Error("Expected null status for empty cell")
	}
}

// More than half the rows failing rejects the whole file.
func TestParseRejectsMajorityFailure(t *testing.T) {
	rows := [][]any{{"Tanggal", "Qty", "Status"}}
	for i := 0; i < 10; i++ {
		qty := any(1)
		if i < 6 {
			qty = "abc"
		}
		rows = append(rows, []any{"15/01/2023", qty, "Open"})
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if res.OK {
		t.Error("Expected rejection when 6 of 10 rows fail")
	}
	if res.Total != 10 || res.Failed != 6 {
		t.Errorf("Unexpected counts: total=%d failed=%d", res.Total, res.Failed)
	}
	if len(res.Errors) != 6 {
		t.Errorf("Expected 6 row errors, got %d", len(res.Errors))
	}
	// Bad rows start right under the header: spreadsheet row 2.
	if !strings.HasPrefix(res.Errors[0], "row 2: ") {
		t.Errorf("First error = %q, want row 2 prefix", res.Errors[0])
	}
}

// A minority of bad rows does not block the rest; they come back as warnings.
func TestParseAcceptsMinorityFailure(t *testing.T) {
	rows := [][]any{{"Tanggal", "Qty", "Status"}}
	for i := 0; i < 100; i++ {
		qty := any(i + 1)
		if i < 10 {
			qty = "abc"
		}
		rows = append(rows, []any{"15/01/2023", qty, "Open"})
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !res.OK {
		t.Fatalf("Expected acceptance when 10 of 100 rows fail, got errors: %v", res.Errors)
	}
	if len(res.Rows) != 90 || res.Failed != 10 {
		t.Errorf("Unexpected counts: rows=%d failed=%d", len(res.Rows), res.Failed)
	}
	for i, warning := range res.Errors {
		want := fmt.Sprintf("row %d:", i+2)
		if !strings.HasPrefix(warning, want) {
			t.Errorf("Warning %d = %q, want prefix %q", i, warning, want)
		}
	}
}

// The error list is capped; counting continues past the cap.
func TestParseErrorListCap(t *testing.T) {
	rows := [][]any{{"Tanggal", "Qty", "Status"}}
	for i := 0; i < 80; i++ {
		rows = append(rows, []any{"15/01/2023", "abc", "Open"})
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if res.OK {
		t.Error("Expected rejection when every row fails")
	}
	if res.Failed != 80 {
		t.Errorf("Failed = %d, want 80", res.Failed)
	}
	if len(res.Errors) != 50 {
		t.Errorf("Expected the error list capped at 50, got %d", len(res.Errors))
	}
}

func TestParseRowLimit(t *testing.T) {
	rows := [][]any{{"Tanggal", "Qty", "Status"}}
	for i := 0; i < 6; i++ {
		rows = append(rows, []any{"15/01/2023", 1, "Open"})
	}
	r := singleSheetWorkbook(t, "Data", rows)

	_, err := testPipeline(t, 5).Parse(context.Background(), r, salesDocType())
	var inputErr *types.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("Expected InputError for oversized file, got %v", err)
	}
}

func TestParseSkipsEmptyRows(t *testing.T) {
	rows := [][]any{
		{"Tanggal", "Qty", "Status"},
		{"15/01/2023", 5, "Open"},
		{"", "", ""},
		{"16/01/2023", 3, "Open"},
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if res.Total != 2 || len(res.Rows) != 2 {
		t.Errorf("Expected the blank row skipped: total=%d rows=%d", res.Total, len(res.Rows))
	}
	// Line numbers follow the sheet, not the accepted-row index.
	if res.Rows[1].Line != 4 {
		t.Errorf("Second row line = %d, want 4", res.Rows[1].Line)
	}
}

func TestParseEmptyWorkbook(t *testing.T) {
	r := singleSheetWorkbook(t, "Data", [][]any{{"Tanggal", "Qty", "Status"}})

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if res.OK {
		t.Error("Expected rejection for a header-only file")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "no data rows") {
		t.Errorf("Expected a no-data error, got %v", res.Errors)
	}
}

func TestSheetPreference(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "Petunjuk"); err != nil {
		t.Fatalf("Failed to rename sheet: %v", err)
	}
	if _, err := f.NewSheet("Template Kosong"); err != nil {
		t.Fatalf("Failed to add sheet: %v", err)
	}
	writeSheetRows(t, f, "Template Kosong", [][]any{
		{"Tanggal", "Qty", "Status"},
		{"15/01/2023", 5, "Open"},
	})

	res, err := testPipeline(t, 0).Parse(context.Background(), workbookReader(t, f), salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if res.Sheet != "Template Kosong" {
		t.Errorf("Sheet = %q, want Template Kosong", res.Sheet)
	}

	// "Data <name>" outranks "Template Kosong".
	if _, err := f.NewSheet("Data Sales"); err != nil {
		t.Fatalf("Failed to add sheet: %v", err)
	}
	writeSheetRows(t, f, "Data Sales", [][]any{
		{"Tanggal", "Qty", "Status"},
		{"16/01/2023", 2, "Open"},
	})
	res, err = testPipeline(t, 0).Parse(context.Background(), workbookReader(t, f), salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if res.Sheet != "Data Sales" {
		t.Errorf("Sheet = %q, want Data Sales", res.Sheet)
	}
}

// Headers match by declared excel column, label or field name, ignoring case
// and with underscores read as spaces.
func TestColumnResolutionVariants(t *testing.T) {
	dt := &models.DocType{
		Name: "Sales",
		Fields: []models.DocTypeField{
			{Label: "Tanggal", FieldName: "sale_date", FieldType: models.FieldDate, ShowInForm: true},
			{Label: "Quantity", FieldName: "qty", FieldType: models.FieldNumber,
				ExcelColumn: "Jumlah Unit", ShowInForm: true},
			{Label: "", FieldName: "unit_price", FieldType: models.FieldCurrency, ShowInForm: true},
		},
	}
	rows := [][]any{
		{"TANGGAL", "jumlah unit", "Unit Price"},
		{"15/01/2023", 4, "2500"},
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, dt)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(res.Unmapped) != 0 {
		t.Fatalf("Expected every column mapped, unmapped: %v", res.Unmapped)
	}
	if !res.OK || len(res.Rows) != 1 {
		t.Fatalf("Expected one accepted row, got %+v", res)
	}
	v := res.Rows[0].Values
	if v["qty"].SQLValue() != int64(4) {
		t.Errorf("qty = %v, want 4", v["qty"].SQLValue())
	}
	if v["unit_price"].SQLValue() != 2500.0 {
		t.Errorf("unit_price = %v, want 2500", v["unit_price"].SQLValue())
	}
}

func TestUnmappedRequiredColumn(t *testing.T) {
	rows := [][]any{
		{"Tanggal", "Status"},
		{"15/01/2023", "Open"},
	}
	r := singleSheetWorkbook(t, "Data", rows)

	res, err := testPipeline(t, 0).Parse(context.Background(), r, salesDocType())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(res.Unmapped) != 1 || res.Unmapped[0] != "qty" {
		t.Errorf("Unmapped = %v, want [qty]", res.Unmapped)
	}
	// A required field with no column fails every row.
	if res.OK || res.Failed != 1 {
		t.Errorf("Expected all rows failing on the missing required column, got %+v", res)
	}
	if !strings.Contains(res.Errors[0], "Qty is required") {
		t.Errorf("Error = %q, want required-field reason", res.Errors[0])
	}
}

type fakeResolver struct {
	ids map[string]int64
}

func (f fakeResolver) Resolve(_ context.Context, _, _, raw string) (int64, bool, error) {
	id, ok := f.ids[raw]
	return id, ok, nil
}

func TestReferenceResolution(t *testing.T) {
	dt := &models.DocType{
		Name: "Sales",
		Fields: []models.DocTypeField{
			{Label: "Category", FieldName: "category_id", FieldType: models.FieldReference,
				ReferenceTable: "categories", ReferenceField: "id", IsRequired: true, ShowInForm: true},
			{Label: "Owner", FieldName: "owner_id", FieldType: models.FieldReference,
				ReferenceTable: "users", ReferenceField: "id", ShowInForm: true},
		},
	}
	rows := [][]any{
		{"Category", "Owner"},
		{"ELEC", "Budi"},
		{"ELEC", "Nobody"},
		{"UNKNOWN", "Budi"},
	}
	r := singleSheetWorkbook(t, "Data", rows)

	loc, _ := time.LoadLocation("Asia/Jakarta")
	p := NewPipeline(loc, fakeResolver{ids: map[string]int64{"ELEC": 10, "Budi": 7}}, 0)

	res, err := p.Parse(context.Background(), r, dt)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("Expected 2 accepted rows, got %d (errors %v)", len(res.Rows), res.Errors)
	}
	if res.Rows[0].Values["category_id"].SQLValue() != int64(10) {
		t.Errorf("category_id = %v, want 10", res.Rows[0].Values["category_id"].SQLValue())
	}
	// Unresolved optional references insert NULL.
	if !res.Rows[1].Values["owner_id"].Null {
		t.Error("Expected null owner_id for unresolved optional reference")
	}
	// Unresolved required references fail the row.
	if res.Failed != 1 || !strings.Contains(res.Errors[0], "row 4:") {
		t.Errorf("Expected row 4 failing on the required reference, got %+v", res)
	}
}
