package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/datadrive/doctype-engine/internal/schema"
	"github.com/datadrive/doctype-engine/internal/types"
	"gorm.io/gorm"
)

// Where maps a column name to either a plain value (equality) or a Cond.
type Where map[string]any

// Cond expresses the non-equality operators a WHERE clause supports. Zero
// fields are skipped; several set at once AND together.
type Cond struct {
	GTE  any
	LTE  any
	GT   any
	LT   any
	In   []any
	Like string
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// FindOptions shapes a FindMany call.
type FindOptions struct {
	Where   Where
	OrderBy []Order
	Limit   int
	Offset  int
	Select  []string
}

// AggregateOptions shapes an Aggregate call. Count is always emitted.
type AggregateOptions struct {
	Where   Where
	GroupBy []string
	Sum     []string
	Avg     []string
	Min     []string
	Max     []string
}

// Builder assembles parameterized SQL against tables that are unknown until
// runtime. Identifiers pass through schema.Sanitize before touching SQL text;
// values only ever travel in the bound argument list.
type Builder struct {
	db *gorm.DB
}

func NewBuilder(db *gorm.DB) *Builder {
	return &Builder{db: db}
}

// WithTx returns a builder bound to a caller-owned transaction, so multi-call
// sequences (delete-then-insert) can be atomic at the caller's discretion.
func (b *Builder) WithTx(tx *gorm.DB) *Builder {
	return &Builder{db: tx}
}

// FindMany runs a generic SELECT and returns the rows as maps.
func (b *Builder) FindMany(ctx context.Context, table string, opts FindOptions) ([]map[string]any, error) {
	t, err := tableIdent(table)
	if err != nil {
		return nil, err
	}

	cols := "*"
	if len(opts.Select) > 0 {
		quoted := make([]string, 0, len(opts.Select))
		for _, s := range opts.Select {
			c, err := columnIdent(s)
			if err != nil {
				return nil, err
			}
			quoted = append(quoted, c.Quoted())
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, t.Quoted())

	whereSQL, whereArgs, err := buildWhere(opts.Where)
	if err != nil {
		return nil, err
	}
	if whereSQL != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	if len(opts.OrderBy) > 0 {
		terms := make([]string, 0, len(opts.OrderBy))
		for _, o := range opts.OrderBy {
			c, err := columnIdent(o.Field)
			if err != nil {
				return nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, c.Quoted()+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, opts.Offset)
		}
	}

	return b.queryRows(ctx, sb.String(), args)
}

// FindFirst returns the first matching row or nil when nothing matches.
func (b *Builder) FindFirst(ctx context.Context, table string, opts FindOptions) (map[string]any, error) {
	opts.Limit = 1
	opts.Offset = 0
	rows, err := b.FindMany(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FindByID fetches one row by primary key.
func (b *Builder) FindByID(ctx context.Context, table string, id any) (map[string]any, error) {
	return b.FindFirst(ctx, table, FindOptions{Where: Where{"id": id}})
}

// Count returns the number of rows matching where.
func (b *Builder) Count(ctx context.Context, table string, where Where) (int64, error) {
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	sql := "SELECT COUNT(*) FROM " + t.Quoted()
	whereSQL, args, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	if whereSQL != "" {
		sql += " WHERE " + whereSQL
	}
	var count int64
	if err := b.db.WithContext(ctx).Raw(sql, args...).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Insert writes one row and returns the generated id.
func (b *Builder) Insert(ctx context.Context, table string, row map[string]any) (int64, error) {
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	if len(row) == 0 {
		return 0, &types.InputError{Message: "insert requires at least one column"}
	}
	cols, err := sortedColumns(row)
	if err != nil {
		return 0, err
	}

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = row[c.name]
		quoted[i] = c.ident.Quoted()
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Quoted(), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	res, err := b.conn().ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertMany writes rows in multi-VALUES batches of batchSize and returns the
// number of affected rows. The column set comes from the first row; missing
// keys in later rows insert NULL.
func (b *Builder) InsertMany(ctx context.Context, table string, rows []map[string]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	cols, err := sortedColumns(rows[0])
	if err != nil {
		return 0, err
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = c.ident.Quoted()
	}
	rowTuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", t.Quoted(), strings.Join(quoted, ", "))

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		tuples := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(cols))
		for i, row := range batch {
			tuples[i] = rowTuple
			for _, c := range cols {
				args = append(args, row[c.name])
			}
		}

		res, err := b.conn().ExecContext(ctx, prefix+strings.Join(tuples, ", "), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Update modifies one row by primary key.
func (b *Builder) Update(ctx context.Context, table string, id any, set map[string]any) (int64, error) {
	return b.UpdateMany(ctx, table, Where{"id": id}, set)
}

// UpdateMany modifies all rows matching where. An empty where is rejected.
func (b *Builder) UpdateMany(ctx context.Context, table string, where Where, set map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, &types.InputError{Message: "updateMany requires a non-empty where"}
	}
	if len(set) == 0 {
		return 0, &types.InputError{Message: "updateMany requires at least one column to set"}
	}
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	cols, err := sortedColumns(set)
	if err != nil {
		return 0, err
	}

	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		assigns[i] = c.ident.Quoted() + " = ?"
		args = append(args, set[c.name])
	}

	whereSQL, whereArgs, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.Quoted(), strings.Join(assigns, ", "), whereSQL)
	res := b.db.WithContext(ctx).Exec(sql, args...)
	return res.RowsAffected, res.Error
}

// DeleteMany removes all rows matching where. An empty where is rejected: the
// unrestricted delete must never be reachable through the generic path.
func (b *Builder) DeleteMany(ctx context.Context, table string, where Where) (int64, error) {
	if len(where) == 0 {
		return 0, &types.InputError{Message: "deleteMany requires a non-empty where"}
	}
	t, err := tableIdent(table)
	if err != nil {
		return 0, err
	}
	whereSQL, args, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	res := b.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s", t.Quoted(), whereSQL), args...)
	return res.RowsAffected, res.Error
}

// Aggregate runs a grouped aggregate query. Column aliases follow the
// sum_x/avg_x/min_x/max_x pattern; the row count is always included as count.
func (b *Builder) Aggregate(ctx context.Context, table string, opts AggregateOptions) ([]map[string]any, error) {
	t, err := tableIdent(table)
	if err != nil {
		return nil, err
	}

	var selects []string
	groupCols := make([]string, 0, len(opts.GroupBy))
	for _, g := range opts.GroupBy {
		c, err := columnIdent(g)
		if err != nil {
			return nil, err
		}
		selects = append(selects, c.Quoted())
		groupCols = append(groupCols, c.Quoted())
	}
	for _, agg := range []struct {
		fn   string
		cols []string
	}{
		{"SUM", opts.Sum},
		{"AVG", opts.Avg},
		{"MIN", opts.Min},
		{"MAX", opts.Max},
	} {
		for _, colName := range agg.cols {
			c, err := columnIdent(colName)
			if err != nil {
				return nil, err
			}
			selects = append(selects, fmt.Sprintf("%s(%s) AS %s",
				agg.fn, c.Quoted(), schema.Sanitize(strings.ToLower(agg.fn)+"_"+c.String()).Quoted()))
		}
	}
	selects = append(selects, "COUNT(*) AS `count`")

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(selects, ", "), t.Quoted())

	whereSQL, whereArgs, err := buildWhere(opts.Where)
	if err != nil {
		return nil, err
	}
	if whereSQL != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}
	if len(groupCols) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
	}

	return b.queryRows(ctx, sb.String(), args)
}

// buildWhere renders WHERE clauses in deterministic column order with every
// value in the argument list.
func buildWhere(where Where) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, k := range keys {
		c, err := columnIdent(k)
		if err != nil {
			return "", nil, err
		}
		switch v := where[k].(type) {
		case Cond:
			added := false
			if v.GTE != nil {
				clauses = append(clauses, c.Quoted()+" >= ?")
				args = append(args, v.GTE)
				added = true
			}
			if v.LTE != nil {
				clauses = append(clauses, c.Quoted()+" <= ?")
				args = append(args, v.LTE)
				added = true
			}
			if v.GT != nil {
				clauses = append(clauses, c.Quoted()+" > ?")
				args = append(args, v.GT)
				added = true
			}
			if v.LT != nil {
				clauses = append(clauses, c.Quoted()+" < ?")
				args = append(args, v.LT)
				added = true
			}
			if len(v.In) > 0 {
				clauses = append(clauses, c.Quoted()+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(v.In)), ", ")+")")
				args = append(args, v.In...)
				added = true
			}
			if v.Like != "" {
				clauses = append(clauses, c.Quoted()+" LIKE ?")
				args = append(args, v.Like)
				added = true
			}
			if !added {
				return "", nil, &types.InputError{Message: fmt.Sprintf("empty condition for column %q", k)}
			}
		default:
			clauses = append(clauses, c.Quoted()+" = ?")
			args = append(args, v)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

type column struct {
	name  string
	ident schema.Ident
}

func sortedColumns(m map[string]any) ([]column, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cols := make([]column, 0, len(keys))
	for _, k := range keys {
		c, err := columnIdent(k)
		if err != nil {
			return nil, err
		}
		cols = append(cols, column{name: k, ident: c})
	}
	return cols, nil
}

func tableIdent(table string) (schema.Ident, error) {
	t := schema.Sanitize(table)
	if t.Empty() {
		return "", &types.InputError{Message: fmt.Sprintf("table name %q is not a legal identifier", table)}
	}
	return t, nil
}

func columnIdent(col string) (schema.Ident, error) {
	c := schema.Sanitize(col)
	if c.Empty() {
		return "", &types.InputError{Message: fmt.Sprintf("column name %q is not a legal identifier", col)}
	}
	return c, nil
}
