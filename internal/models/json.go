package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringList stores a list of strings as a JSON column (SELECT field options).
type StringList []string

// Value marshals the list for the driver.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal([]string(l))
}

// Scan accepts both []byte and string column representations.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported StringList source type %T", value)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// GormDataType names the general type for gorm's schema parser; without it the
// parser rejects the slice type before Value/Scan are ever consulted.
func (StringList) GormDataType() string { return "json" }

// GormDBDataType maps the column per dialect; sqlite (used in tests) has no
// native JSON type.
func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return datatypes.JSON{}.GormDBDataType(db, field)
	case "sqlite":
		return "TEXT"
	}
	return "TEXT"
}
