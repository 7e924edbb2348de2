package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/datadrive/doctype-engine/internal/query"
)

// ReferenceResolver turns a human-entered code, name or id into the value of
// the referenced column. Implementations report found=false for unknown
// inputs rather than erroring, so the pipeline can decide per-field severity.
type ReferenceResolver interface {
	Resolve(ctx context.Context, table, field, raw string) (int64, bool, error)
}

// dbResolver looks the value up in the referenced table through the query
// builder. One lookup per cell; no cross-row cache (acceptable at the 50k-row
// ceiling, revisit if that grows).
type dbResolver struct {
	q *query.Builder
}

func NewResolver(q *query.Builder) ReferenceResolver {
	return &dbResolver{q: q}
}

func (r *dbResolver) Resolve(ctx context.Context, table, field, raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}

	// User-like tables are keyed by name or email; master-data tables
	// (locations, categories) by code or name.
	lookups := []string{"code", "name"}
	if strings.Contains(strings.ToLower(table), "user") {
		lookups = []string{"name", "email"}
	}

	for _, col := range lookups {
		row, err := r.q.FindFirst(ctx, table, query.FindOptions{
			Where:  query.Where{col: raw},
			Select: []string{field},
		})
		if err != nil {
			// A missing lookup column just means this table is not shaped
			// that way; try the next key.
			continue
		}
		if row != nil {
			if id, ok := toInt64(row[field]); ok {
				return id, true, nil
			}
		}
	}

	// Last resort: the cell already holds the referenced value.
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		row, err := r.q.FindFirst(ctx, table, query.FindOptions{
			Where:  query.Where{field: n},
			Select: []string{field},
		})
		if err != nil {
			return 0, false, err
		}
		if row != nil {
			return n, true, nil
		}
	}
	return 0, false, nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}
