package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/xuri/excelize/v2"
)

// Value is the closed variant a cell coerces into, keyed by field type. Using
// a variant instead of bare any keeps a BOOLEAN from silently travelling as a
// string into the insert path.
type Value struct {
	Kind   string
	Null   bool
	Text   string
	Number float64
	Bool   bool
	Time   time.Time
	Ref    int64
}

// SQLValue renders the variant as a driver-bindable value.
func (v Value) SQLValue() any {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case models.FieldText, models.FieldSelect:
		return v.Text
	case models.FieldNumber:
		return int64(math.Round(v.Number))
	case models.FieldCurrency:
		return v.Number
	case models.FieldDate:
		return v.Time.Format("2006-01-02")
	case models.FieldDateTime:
		return v.Time.Format("2006-01-02 15:04:05")
	case models.FieldBoolean:
		if v.Bool {
			return 1
		}
		return 0
	case models.FieldReference:
		return v.Ref
	}
	return nil
}

func nullValue(kind string) Value { return Value{Kind: kind, Null: true} }

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// Coercer converts raw cell text into typed values. All date math runs in the
// business timezone so a serial number never shifts across a day boundary.
type Coercer struct {
	loc *time.Location
}

func NewCoercer(loc *time.Location) *Coercer {
	if loc == nil {
		loc = time.Local
	}
	return &Coercer{loc: loc}
}

// Date accepts an Excel serial day number, DD/MM/YYYY, an ISO date or
// datetime. Date-only inputs land at local noon.
func (c *Coercer) Date(raw string, kind string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nullValue(kind), nil
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		// Excel serial day count; ExcelDateToTime carries the 1900 leap-year
		// epoch adjustment.
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nullValue(kind), fmt.Errorf("invalid date serial %q", raw)
		}
		return Value{Kind: kind, Time: c.atNoon(t)}, nil
	}

	for _, layout := range []string{"02/01/2006", "2006-01-02", "02-01-2006"} {
		if t, err := time.ParseInLocation(layout, raw, c.loc); err == nil {
			return Value{Kind: kind, Time: c.atNoon(t)}, nil
		}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "02/01/2006 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, c.loc); err == nil {
			return Value{Kind: kind, Time: t.In(c.loc)}, nil
		}
	}
	return nullValue(kind), fmt.Errorf("unrecognized date %q", raw)
}

func (c *Coercer) atNoon(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, c.loc)
}

// Number strips display formatting (currency symbols, thousand separators),
// parses the remainder as a float and enforces the declared range.
func (c *Coercer) Number(raw string, f *models.DocTypeField) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nullValue(f.FieldType), nil
	}
	cleaned := nonNumeric.ReplaceAllString(raw, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return nullValue(f.FieldType), fmt.Errorf("%q is not a number", raw)
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nullValue(f.FieldType), fmt.Errorf("%q is not a number", raw)
	}
	if f.MinValue != nil && n < *f.MinValue {
		return nullValue(f.FieldType), fmt.Errorf("%s below minimum %v", f.Label, *f.MinValue)
	}
	if f.MaxValue != nil && n > *f.MaxValue {
		return nullValue(f.FieldType), fmt.Errorf("%s above maximum %v", f.Label, *f.MaxValue)
	}
	return Value{Kind: f.FieldType, Number: n}, nil
}

// Bool accepts 0/1, true/false, yes/no and the localized ya/tidak pair,
// case-insensitively.
func (c *Coercer) Bool(raw string) (Value, error) {
	token := strings.ToLower(strings.TrimSpace(raw))
	switch token {
	case "":
		return nullValue(models.FieldBoolean), nil
	case "1", "true", "yes", "ya", "y":
		return Value{Kind: models.FieldBoolean, Bool: true}, nil
	case "0", "false", "no", "tidak", "n":
		return Value{Kind: models.FieldBoolean, Bool: false}, nil
	}
	return nullValue(models.FieldBoolean), fmt.Errorf("%q is not a yes/no value", raw)
}

// Select matches the raw text against the declared options without case
// sensitivity and canonicalizes to the option's declared casing.
func (c *Coercer) Select(raw string, f *models.DocTypeField) (Value, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return nullValue(models.FieldSelect), nil
	}
	for _, opt := range f.Options {
		if strings.EqualFold(opt, token) {
			return Value{Kind: models.FieldSelect, Text: opt}, nil
		}
	}
	return nullValue(models.FieldSelect), fmt.Errorf("%q is not one of the allowed options for %s", raw, f.Label)
}

// Text trims the cell; an empty cell falls back to the field's default value.
func (c *Coercer) Text(raw string, f *models.DocTypeField) Value {
	token := strings.TrimSpace(raw)
	if token == "" {
		if f.DefaultValue != "" {
			return Value{Kind: models.FieldText, Text: f.DefaultValue}
		}
		return nullValue(models.FieldText)
	}
	return Value{Kind: models.FieldText, Text: token}
}
