package schema

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL error numbers the manager recognizes when classifying DDL failures.
const (
	mysqlErrTableExists     = 1050
	mysqlErrDuplicateColumn = 1060
	mysqlErrCannotAddFK     = 1215
)

// TableManager issues DDL to keep a DocType's physical table in sync with its
// field metadata. DDL on MySQL is non-transactional; callers sequence the
// compensating metadata writes (see Registry).
type TableManager struct {
	db *gorm.DB
}

func NewTableManager(db *gorm.DB) *TableManager {
	return &TableManager{db: db}
}

// Column is one physical column as reported by information_schema.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Key      string
}

// CreateTable provisions the backing table for a field list: declared columns,
// the auto-increment primary key, audit columns, foreign keys for REFERENCE
// fields and the default index set.
func (m *TableManager) CreateTable(ctx context.Context, tableName string, fields []models.DocTypeField) error {
	stmt, err := createTableSQL(tableName, fields)
	if err != nil {
		return &types.SchemaError{Op: "createTable", Table: tableName, Err: err}
	}
	if err := m.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return m.wrap("createTable", tableName, err)
	}
	return nil
}

// AddColumn appends one column for a newly added field, plus its foreign key
// and index when the field type calls for them.
func (m *TableManager) AddColumn(ctx context.Context, tableName string, field models.DocTypeField) error {
	t := Sanitize(tableName)
	def, err := columnDef(&field)
	if err != nil {
		return &types.SchemaError{Op: "addColumn", Table: tableName, Err: err}
	}
	if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t.Quoted(), def)).Error; err != nil {
		return m.wrap("addColumn", tableName, err)
	}
	col := Sanitize(field.FieldName)
	if field.FieldType == models.FieldReference {
		if err := m.addForeignKey(ctx, t, col, &field); err != nil {
			return err
		}
	}
	if field.IsUnique {
		if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s ADD UNIQUE INDEX %s (%s)",
			t.Quoted(), indexName(t, col, true).Quoted(), col.Quoted())).Error; err != nil {
			return m.wrap("addColumn", tableName, err)
		}
	} else if wantsIndex(&field) {
		if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s ADD INDEX %s (%s)",
			t.Quoted(), indexName(t, col, false).Quoted(), col.Quoted())).Error; err != nil {
			return m.wrap("addColumn", tableName, err)
		}
	}
	return nil
}

// AlterColumn changes an existing column's definition in place.
func (m *TableManager) AlterColumn(ctx context.Context, tableName string, field models.DocTypeField) error {
	t := Sanitize(tableName)
	def, err := columnDef(&field)
	if err != nil {
		return &types.SchemaError{Op: "alterColumn", Table: tableName, Err: err}
	}
	if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", t.Quoted(), def)).Error; err != nil {
		return m.wrap("alterColumn", tableName, err)
	}
	return nil
}

// RenameColumn renames a column without touching its definition.
func (m *TableManager) RenameColumn(ctx context.Context, tableName, oldName, newName string) error {
	t := Sanitize(tableName)
	from := Sanitize(oldName)
	to := Sanitize(newName)
	if from.Empty() || to.Empty() {
		return &types.SchemaError{Op: "renameColumn", Table: tableName, Err: errors.New("empty column name after sanitization")}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", t.Quoted(), from.Quoted(), to.Quoted())
	if err := m.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return m.wrap("renameColumn", tableName, err)
	}
	return nil
}

// DropColumn removes a column. Any foreign key and secondary index on it are
// dropped first, best effort, because the engine refuses to drop a column that
// still backs a constraint.
func (m *TableManager) DropColumn(ctx context.Context, tableName, columnName string) error {
	t := Sanitize(tableName)
	col := Sanitize(columnName)
	if col.Empty() {
		return &types.SchemaError{Op: "dropColumn", Table: tableName, Err: errors.New("empty column name after sanitization")}
	}

	var fks []string
	m.db.WithContext(ctx).Raw(
		`SELECT CONSTRAINT_NAME FROM information_schema.KEY_COLUMN_USAGE
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?
		   AND REFERENCED_TABLE_NAME IS NOT NULL`,
		t.String(), col.String()).Scan(&fks)
	for _, fk := range fks {
		if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s",
			t.Quoted(), Sanitize(fk).Quoted())).Error; err != nil {
			log.Printf("dropColumn %s.%s: drop foreign key %s: %v", t, col, fk, err)
		}
	}

	var indexes []string
	m.db.WithContext(ctx).Raw(
		`SELECT DISTINCT INDEX_NAME FROM information_schema.STATISTICS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?
		   AND INDEX_NAME <> 'PRIMARY'`,
		t.String(), col.String()).Scan(&indexes)
	for _, idx := range indexes {
		if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s DROP INDEX %s",
			t.Quoted(), Sanitize(idx).Quoted())).Error; err != nil {
			log.Printf("dropColumn %s.%s: drop index %s: %v", t, col, idx, err)
		}
	}

	if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", t.Quoted(), col.Quoted())).Error; err != nil {
		return m.wrap("dropColumn", tableName, err)
	}
	return nil
}

// DropTable removes the physical table. Missing tables are not an error so
// DocType deletion stays idempotent.
func (m *TableManager) DropTable(ctx context.Context, tableName string) error {
	t := Sanitize(tableName)
	if t.Empty() {
		return &types.SchemaError{Op: "dropTable", Table: tableName, Err: errors.New("empty table name after sanitization")}
	}
	if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Quoted())).Error; err != nil {
		return m.wrap("dropTable", tableName, err)
	}
	return nil
}

// TableExists reports whether the named table is present in the current schema.
func (m *TableManager) TableExists(ctx context.Context, tableName string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM information_schema.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
		Sanitize(tableName).String()).Scan(&count).Error
	if err != nil {
		return false, m.wrap("tableExists", tableName, err)
	}
	return count > 0, nil
}

// TableColumns introspects the physical column set in ordinal order.
func (m *TableManager) TableColumns(ctx context.Context, tableName string) ([]Column, error) {
	rows, err := m.db.WithContext(ctx).Raw(
		`SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
		 FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`,
		Sanitize(tableName).String()).Rows()
	if err != nil {
		return nil, m.wrap("getTableColumns", tableName, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ, nullable, key string
		if err := rows.Scan(&name, &typ, &nullable, &key); err != nil {
			return nil, m.wrap("getTableColumns", tableName, err)
		}
		cols = append(cols, Column{Name: name, Type: typ, Nullable: nullable == "YES", Key: key})
	}
	if err := rows.Err(); err != nil {
		return nil, m.wrap("getTableColumns", tableName, err)
	}
	return cols, nil
}

func (m *TableManager) addForeignKey(ctx context.Context, table, col Ident, field *models.DocTypeField) error {
	refTable := Sanitize(field.ReferenceTable)
	refField := Sanitize(field.ReferenceField)
	if refTable.Empty() || refField.Empty() {
		return &types.SchemaError{Op: "addColumn", Table: table.String(),
			Err: fmt.Errorf("reference target %q.%q is not a legal identifier", field.ReferenceTable, field.ReferenceField)}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		table.Quoted(), fkName(table, col).Quoted(), col.Quoted(), refTable.Quoted(), refField.Quoted())
	if err := m.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return m.wrap("addColumn", table.String(), err)
	}
	return nil
}

// wrap classifies driver errors into SchemaError with a readable message.
func (m *TableManager) wrap(op, table string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrTableExists:
			err = fmt.Errorf("table already exists: %w", err)
		case mysqlErrDuplicateColumn:
			err = fmt.Errorf("column already exists: %w", err)
		case mysqlErrCannotAddFK:
			err = fmt.Errorf("foreign key target missing: %w", err)
		}
	}
	return &types.SchemaError{Op: op, Table: table, Err: err}
}

// createTableSQL renders the full CREATE TABLE statement for a field list.
// Split out from CreateTable so the generated DDL is testable without a
// database.
func createTableSQL(tableName string, fields []models.DocTypeField) (string, error) {
	t := Sanitize(tableName)
	if t.Empty() {
		return "", errors.New("empty table name after sanitization")
	}

	var defs []string
	defs = append(defs, "`id` INT AUTO_INCREMENT PRIMARY KEY")

	for i := range fields {
		def, err := columnDef(&fields[i])
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}

	defs = append(defs,
		"`created_at` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP",
		"`created_by` INT NULL",
		"`updated_at` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP",
		"`updated_by` INT NULL",
	)

	for i := range fields {
		f := &fields[i]
		col := Sanitize(f.FieldName)
		if f.IsUnique {
			defs = append(defs, fmt.Sprintf("UNIQUE KEY %s (%s)", indexName(t, col, true).Quoted(), col.Quoted()))
		} else if wantsIndex(f) {
			defs = append(defs, fmt.Sprintf("KEY %s (%s)", indexName(t, col, false).Quoted(), col.Quoted()))
		}
	}

	for i := range fields {
		f := &fields[i]
		if f.FieldType != models.FieldReference {
			continue
		}
		col := Sanitize(f.FieldName)
		refTable := Sanitize(f.ReferenceTable)
		refField := Sanitize(f.ReferenceField)
		if refTable.Empty() || refField.Empty() {
			return "", fmt.Errorf("field %q: reference target %q.%q is not a legal identifier",
				f.FieldName, f.ReferenceTable, f.ReferenceField)
		}
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			fkName(t, col).Quoted(), col.Quoted(), refTable.Quoted(), refField.Quoted()))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(t.Quoted())
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(defs, ",\n  "))
	b.WriteString("\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
	return b.String(), nil
}
