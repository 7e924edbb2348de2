package schema_test

import (
	"context"
	"testing"

	"github.com/datadrive/doctype-engine/internal/database/testdb"
	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/schema"
)

// TestTableLifecycle exercises the full DDL surface against a real MySQL
// server: create, introspect, add, rename, drop.
func TestTableLifecycle(t *testing.T) {
	db := testdb.Start(t)
	m := schema.NewTableManager(db)
	ctx := context.Background()

	// REFERENCE targets must exist before the referencing table.
	if err := m.CreateTable(ctx, "categories", []models.DocTypeField{
		{FieldName: "name", FieldType: models.FieldText, IsRequired: true},
	}); err != nil {
		t.Fatalf("CreateTable categories returned error: %v", err)
	}

	fields := []models.DocTypeField{
		{FieldName: "region", FieldType: models.FieldText, IsRequired: true},
		{FieldName: "sale_date", FieldType: models.FieldDate, IsRequired: true},
		{FieldName: "amount", FieldType: models.FieldCurrency},
		{FieldName: "category_id", FieldType: models.FieldReference,
			ReferenceTable: "categories", ReferenceField: "id"},
	}
	if err := m.CreateTable(ctx, "sales", fields); err != nil {
		t.Fatalf("CreateTable sales returned error: %v", err)
	}

	exists, err := m.TableExists(ctx, "sales")
	if err != nil {
		t.Fatalf("TableExists returned error: %v", err)
	}
	if !exists {
		t.Fatal("Expected sales table to exist")
	}

	cols, err := m.TableColumns(ctx, "sales")
	if err != nil {
		t.Fatalf("TableColumns returned error: %v", err)
	}
	// Declared fields plus id and the four audit columns.
	if len(cols) != len(fields)+5 {
		t.Errorf("Expected %d columns, got %d: %+v", len(fields)+5, len(cols), cols)
	}
	if cols[0].Name != "id" || cols[0].Key != "PRI" {
		t.Errorf("Expected id primary key first, got %+v", cols[0])
	}
	byName := map[string]schema.Column{}
	for _, c := range cols {
		byName[c.Name] = c
	}
	if c := byName["amount"]; c.Type != "decimal(20,2)" || !c.Nullable {
		t.Errorf("Unexpected amount column: %+v", c)
	}
	if c := byName["region"]; c.Nullable {
		t.Errorf("Expected region NOT NULL, got %+v", c)
	}

	// Creating the same table again classifies as a schema error.
	if err := m.CreateTable(ctx, "sales", fields); err == nil {
		t.Error("Expected error creating an existing table")
	}

	// Add, rename, then drop a column; the column set must return to N+5.
	if err := m.AddColumn(ctx, "sales", models.DocTypeField{
		FieldName: "qty", FieldType: models.FieldNumber,
	}); err != nil {
		t.Fatalf("AddColumn returned error: %v", err)
	}
	if err := m.RenameColumn(ctx, "sales", "qty", "quantity"); err != nil {
		t.Fatalf("RenameColumn returned error: %v", err)
	}
	if err := m.DropColumn(ctx, "sales", "quantity"); err != nil {
		t.Fatalf("DropColumn returned error: %v", err)
	}
	cols, err = m.TableColumns(ctx, "sales")
	if err != nil {
		t.Fatalf("TableColumns returned error: %v", err)
	}
	if len(cols) != len(fields)+5 {
		t.Errorf("Expected %d columns after add/drop, got %d", len(fields)+5, len(cols))
	}

	// Dropping the indexed, foreign-keyed reference column must clean up its
	// constraint and index first.
	if err := m.DropColumn(ctx, "sales", "category_id"); err != nil {
		t.Fatalf("DropColumn on reference returned error: %v", err)
	}

	if err := m.DropTable(ctx, "sales"); err != nil {
		t.Fatalf("DropTable returned error: %v", err)
	}
	exists, _ = m.TableExists(ctx, "sales")
	if exists {
		t.Error("Expected sales table gone after drop")
	}
	// DropTable is idempotent.
	if err := m.DropTable(ctx, "sales"); err != nil {
		t.Errorf("Expected idempotent drop, got %v", err)
	}
}
