package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/types"
)

// maxRowErrors bounds the error report; counting continues past it but the
// list stops growing.
const maxRowErrors = 50

// Row is one accepted spreadsheet row, keyed by field name.
type Row struct {
	Line   int // 1-based spreadsheet row number
	Values map[string]Value
}

// Result is the outcome of parsing one workbook. When OK is false the upload
// must be rejected with Errors; when OK is true, Errors holds the warnings
// for the rows that were skipped.
type Result struct {
	OK       bool
	Rows     []Row
	Errors   []string
	Total    int // data rows inspected
	Failed   int // data rows rejected
	Sheet    string
	Unmapped []string // form fields with no matching column
}

// Pipeline converts uploaded spreadsheets into rows conforming to a DocType's
// field list.
type Pipeline struct {
	coercer  *Coercer
	resolver ReferenceResolver
	maxRows  int
}

func NewPipeline(loc *time.Location, resolver ReferenceResolver, maxRows int) *Pipeline {
	return &Pipeline{coercer: NewCoercer(loc), resolver: resolver, maxRows: maxRows}
}

// Parse reads the workbook against the DocType's form fields. It returns an
// error only for input-level failures (unreadable file, too many rows);
// per-row problems land in the Result.
func (p *Pipeline) Parse(ctx context.Context, r io.Reader, dt *models.DocType) (*Result, error) {
	wb, err := openWorkbook(r, dt.Name)
	if err != nil {
		return nil, err
	}

	res := &Result{Sheet: wb.sheet}
	if len(wb.rows) < 2 {
		res.Errors = append(res.Errors, "no data rows found")
		return res, nil
	}
	dataRows := wb.rows[1:]
	if p.maxRows > 0 && len(dataRows) > p.maxRows {
		return nil, &types.InputError{Message: fmt.Sprintf("file has %d rows, limit is %d", len(dataRows), p.maxRows)}
	}

	fields := formFields(dt.Fields)
	idx := headerIndex(wb.rows[0])
	columns := make(map[string]int, len(fields))
	for i := range fields {
		f := &fields[i]
		if col, ok := resolveColumn(f, idx); ok {
			columns[f.FieldName] = col
		} else {
			columns[f.FieldName] = -1
			res.Unmapped = append(res.Unmapped, f.FieldName)
		}
	}

	for i, raw := range dataRows {
		line := i + 2 // 1-based, after the header row
		if emptyRow(raw) {
			continue
		}
		res.Total++

		values := make(map[string]Value, len(fields))
		var reasons []string
		for fi := range fields {
			f := &fields[fi]
			v, err := p.coerceField(ctx, f, cellAt(raw, columns[f.FieldName]))
			if err != nil {
				reasons = append(reasons, err.Error())
				continue
			}
			if v.Null && f.IsRequired {
				reasons = append(reasons, fmt.Sprintf("%s is required", f.Label))
				continue
			}
			values[f.FieldName] = v
		}

		if len(reasons) > 0 {
			res.Failed++
			if len(res.Errors) < maxRowErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", line, strings.Join(reasons, "; ")))
			}
			continue
		}
		res.Rows = append(res.Rows, Row{Line: line, Values: values})
	}

	// Reject the whole file when more than half the rows failed, or when
	// nothing parsed at all.
	res.OK = len(res.Rows) > 0 && res.Failed*2 <= res.Total
	if res.Total == 0 {
		res.Errors = append(res.Errors, "no data rows found")
	}
	return res, nil
}

func (p *Pipeline) coerceField(ctx context.Context, f *models.DocTypeField, raw string) (Value, error) {
	switch f.FieldType {
	case models.FieldDate, models.FieldDateTime:
		return p.coercer.Date(raw, f.FieldType)
	case models.FieldNumber, models.FieldCurrency:
		return p.coercer.Number(raw, f)
	case models.FieldBoolean:
		return p.coercer.Bool(raw)
	case models.FieldSelect:
		return p.coercer.Select(raw, f)
	case models.FieldReference:
		return p.resolveReference(ctx, f, raw)
	default:
		return p.coercer.Text(raw, f), nil
	}
}

func (p *Pipeline) resolveReference(ctx context.Context, f *models.DocTypeField, raw string) (Value, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return nullValue(models.FieldReference), nil
	}
	if p.resolver == nil {
		return nullValue(models.FieldReference), fmt.Errorf("no resolver for %s", f.Label)
	}
	id, found, err := p.resolver.Resolve(ctx, f.ReferenceTable, f.ReferenceField, token)
	if err != nil {
		return nullValue(models.FieldReference), fmt.Errorf("%s lookup failed: %v", f.Label, err)
	}
	if !found {
		// Only fatal for required fields; an optional unresolved reference
		// inserts NULL.
		if f.IsRequired {
			return nullValue(models.FieldReference), fmt.Errorf("%s %q not found in %s", f.Label, token, f.ReferenceTable)
		}
		return nullValue(models.FieldReference), nil
	}
	return Value{Kind: models.FieldReference, Ref: id}, nil
}

func formFields(fields []models.DocTypeField) []models.DocTypeField {
	out := make([]models.DocTypeField, 0, len(fields))
	for _, f := range fields {
		if f.ShowInForm {
			out = append(out, f)
		}
	}
	return out
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
