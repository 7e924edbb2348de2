package query

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// conn exposes the driver connection the builder should execute on: the
// transaction when one is bound, the pool otherwise. Plain gorm Exec cannot
// return LAST_INSERT_ID, so inserts go through the ConnPool directly.
func (b *Builder) conn() gorm.ConnPool {
	if b.db.Statement != nil && b.db.Statement.ConnPool != nil {
		return b.db.Statement.ConnPool
	}
	return b.db.ConnPool
}

// queryRows executes a SELECT and converts the result set into generic maps.
func (b *Builder) queryRows(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows, err := b.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			row[name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeValue flattens driver-specific representations: byte slices become
// strings (MySQL returns text, DECIMAL and JSON as []uint8), 64-bit counters
// stay int64, Go's standard integer width.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case sql.RawBytes:
		return string(t)
	default:
		return v
	}
}
