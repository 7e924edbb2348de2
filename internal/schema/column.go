package schema

import (
	"fmt"
	"strings"

	"github.com/datadrive/doctype-engine/internal/models"
)

// System columns every dynamic table carries in addition to declared fields.
var systemColumns = []string{"id", "created_at", "created_by", "updated_at", "updated_by"}

// IsSystemColumn reports whether name is one of the engine-owned columns.
func IsSystemColumn(name string) bool {
	for _, c := range systemColumns {
		if c == name {
			return true
		}
	}
	return false
}

// sqlType maps a field type to its MySQL column type. The mapping is a fixed
// contract; changing it changes the meaning of every existing table.
func sqlType(f *models.DocTypeField) (string, error) {
	switch f.FieldType {
	case models.FieldText:
		return "VARCHAR(255)", nil
	case models.FieldNumber:
		return "INT", nil
	case models.FieldCurrency:
		return "DECIMAL(20,2)", nil
	case models.FieldDate:
		return "DATE", nil
	case models.FieldDateTime:
		return "DATETIME", nil
	case models.FieldSelect:
		return "VARCHAR(100)", nil
	case models.FieldBoolean:
		return "TINYINT(1)", nil
	case models.FieldReference:
		return "INT", nil
	}
	return "", fmt.Errorf("unknown field type %q", f.FieldType)
}

// columnDef renders one column definition for CREATE/ALTER statements.
func columnDef(f *models.DocTypeField) (string, error) {
	col := Sanitize(f.FieldName)
	if col.Empty() {
		return "", fmt.Errorf("field %q has no legal column name", f.FieldName)
	}
	typ, err := sqlType(f)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(col.Quoted())
	b.WriteString(" ")
	b.WriteString(typ)
	if f.IsRequired {
		b.WriteString(" NOT NULL")
	} else {
		b.WriteString(" NULL")
	}
	return b.String(), nil
}

// wantsIndex reports whether the field type gets a plain index by default.
func wantsIndex(f *models.DocTypeField) bool {
	switch f.FieldType {
	case models.FieldDate, models.FieldDateTime, models.FieldReference:
		return true
	}
	return false
}

func fkName(table, column Ident) Ident {
	return Sanitize(fmt.Sprintf("fk_%s_%s", table, column))
}

func indexName(table, column Ident, unique bool) Ident {
	prefix := "idx"
	if unique {
		prefix = "uq"
	}
	return Sanitize(fmt.Sprintf("%s_%s_%s", prefix, table, column))
}
