package services_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/datadrive/doctype-engine/internal/config"
	"github.com/datadrive/doctype-engine/internal/gate"
	"github.com/datadrive/doctype-engine/internal/ingest"
	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/query"
	"github.com/datadrive/doctype-engine/internal/schema"
	"github.com/datadrive/doctype-engine/internal/services"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/glebarez/sqlite"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type noopDDL struct{}

func (noopDDL) CreateTable(context.Context, string, []models.DocTypeField) error { return nil }
func (noopDDL) AddColumn(context.Context, string, models.DocTypeField) error     { return nil }
func (noopDDL) AlterColumn(context.Context, string, models.DocTypeField) error   { return nil }
func (noopDDL) RenameColumn(context.Context, string, string, string) error       { return nil }
func (noopDDL) DropColumn(context.Context, string, string) error                 { return nil }
func (noopDDL) DropTable(context.Context, string) error                          { return nil }
func (noopDDL) TableExists(context.Context, string) (bool, error)                { return true, nil }

type uploadFixture struct {
	db       *gorm.DB
	registry *schema.Registry
	builder  *query.Builder
	service  *services.UploadService
	loc      *time.Location
}

func setupUploadFixture(t *testing.T, deadlineHour *int, clock func() time.Time) *uploadFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := db.AutoMigrate(&models.DocType{}, &models.DocTypeField{}, &models.DocTypePermission{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	registry := schema.NewRegistry(db, noopDDL{})
	ctx := context.Background()

	dt := &models.DocType{
		Name: "Sales", Slug: "sales", TableName: "sales",
		IsActive: true, IsUploadActive: true,
		UploadDeadlineHour: deadlineHour,
	}
	fields := []models.DocTypeField{
		{Label: "Tanggal", FieldName: "sale_date", FieldType: models.FieldDate, IsRequired: true, ShowInForm: true},
		{Label: "Region", FieldName: "region", FieldType: models.FieldText, IsRequired: true, ShowInForm: true},
		{Label: "Qty", FieldName: "qty", FieldType: models.FieldNumber, ShowInForm: true},
	}
	if err := registry.CreateDocType(ctx, dt, fields); err != nil {
		t.Fatalf("Failed to seed doc type: %v", err)
	}
	if err := registry.UpsertPermission(ctx, &models.DocTypePermission{
		DocTypeID: dt.ID, RoleID: 1, CanUpload: true,
	}); err != nil {
		t.Fatalf("Failed to seed permission: %v", err)
	}

	// The noop DDL creates nothing; provision the data table by hand.
	if err := db.Exec("CREATE TABLE `sales` (" +
		"`id` INTEGER PRIMARY KEY AUTOINCREMENT, " +
		"`sale_date` TEXT, `region` TEXT, `qty` INTEGER, " +
		"`created_by` INTEGER, `updated_by` INTEGER)").Error; err != nil {
		t.Fatalf("Failed to create data table: %v", err)
	}

	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("Failed to load timezone: %v", err)
	}

	builder := query.NewBuilder(db)
	g := gate.New(registry, loc)
	if clock != nil {
		g = g.WithClock(clock)
	}
	cfg := &config.Config{
		MaxUploadBytes:  config.DefaultMaxUploadBytes,
		MaxUploadRows:   1000,
		InsertBatchSize: 100,
	}
	pipeline := ingest.NewPipeline(loc, nil, cfg.MaxUploadRows)
	svc := services.NewUploadService(cfg, db, registry, builder, g, pipeline)

	return &uploadFixture{db: db, registry: registry, builder: builder, service: svc, loc: loc}
}

func salesWorkbook(t *testing.T, rows [][]any) (io.Reader, int64) {
	t.Helper()
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "Data Sales"); err != nil {
		t.Fatalf("Failed to rename sheet: %v", err)
	}
	all := append([][]any{{"Tanggal", "Region", "Qty"}}, rows...)
	for i := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Failed to compute cell name: %v", err)
		}
		if err := f.SetSheetRow("Data Sales", cell, &all[i]); err != nil {
			t.Fatalf("Failed to write sheet row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes()), int64(buf.Len())
}

func TestUploadReplacesAffectedDateRange(t *testing.T) {
	fx := setupUploadFixture(t, nil, nil)
	ctx := context.Background()
	user := models.AuthUser{ID: 42, RoleIDs: []uint64{1}}

	// Existing rows inside the uploaded date range get replaced; rows outside
	// it survive.
	seed := []map[string]any{
		{"sale_date": "2026-01-15", "region": "old", "qty": 1, "created_by": 7, "updated_by": 7},
		{"sale_date": "2026-02-10", "region": "keep", "qty": 1, "created_by": 7, "updated_by": 7},
	}
	if _, err := fx.builder.InsertMany(ctx, "sales", seed, 0); err != nil {
		t.Fatalf("Failed to seed rows: %v", err)
	}

	file, size := salesWorkbook(t, [][]any{
		{"15/01/2026", "west", 5},
		{"16/01/2026", "east", 3},
	})
	report, err := fx.service.Upload(ctx, "sales", user, file, size)
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if report.Inserted != 2 || report.Deleted != 1 {
		t.Errorf("Report inserted=%d deleted=%d, want 2 and 1", report.Inserted, report.Deleted)
	}
	if report.Sheet != "Data Sales" || report.RowCount != 2 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if len(report.BatchID) != 36 {
		t.Errorf("BatchID %q is not a UUID", report.BatchID)
	}

	count, _ := fx.builder.Count(ctx, "sales", query.Where{})
	if count != 3 {
		t.Errorf("Expected 3 rows after replacement, got %d", count)
	}
	old, _ := fx.builder.Count(ctx, "sales", query.Where{"region": "old"})
	if old != 0 {
		t.Errorf("Expected the replaced January row gone, found %d", old)
	}
	kept, _ := fx.builder.Count(ctx, "sales", query.Where{"region": "keep"})
	if kept != 1 {
		t.Errorf("Expected the February row untouched, found %d", kept)
	}

	// Audit columns carry the uploading user.
	row, _ := fx.builder.FindFirst(ctx, "sales", query.FindOptions{Where: query.Where{"region": "west"}})
	if row == nil || row["created_by"] != int64(42) || row["updated_by"] != int64(42) {
		t.Errorf("Expected audit columns set to uploader, got %v", row)
	}
}

func TestUploadRejectsMajorityFailure(t *testing.T) {
	fx := setupUploadFixture(t, nil, nil)
	user := models.AuthUser{ID: 42, RoleIDs: []uint64{1}}

	file, size := salesWorkbook(t, [][]any{
		{"15/01/2026", "west", "abc"},
		{"16/01/2026", "east", "abc"},
		{"17/01/2026", "west", 1},
	})
	_, err := fx.service.Upload(context.Background(), "sales", user, file, size)
	var valErr *types.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(valErr.Rows) != 2 {
		t.Errorf("Expected 2 row errors, got %v", valErr.Rows)
	}

	// Nothing may be written on rejection.
	count, _ := fx.builder.Count(context.Background(), "sales", query.Where{})
	if count != 0 {
		t.Errorf("Expected no rows written, found %d", count)
	}
}

func TestUploadDeniedPastDeadline(t *testing.T) {
	nine := 9
	fx := setupUploadFixture(t, &nine, func() time.Time {
		loc, _ := time.LoadLocation("Asia/Jakarta")
		return time.Date(2026, 3, 2, 9, 1, 0, 0, loc)
	})
	user := models.AuthUser{ID: 42, RoleIDs: []uint64{1}}

	file, size := salesWorkbook(t, [][]any{{"15/01/2026", "west", 5}})
	_, err := fx.service.Upload(context.Background(), "sales", user, file, size)
	var authErr *types.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthorizationError, got %v", err)
	}
}

func TestUploadDeniedWithoutPermission(t *testing.T) {
	fx := setupUploadFixture(t, nil, nil)
	user := models.AuthUser{ID: 42, RoleIDs: []uint64{99}}

	file, size := salesWorkbook(t, [][]any{{"15/01/2026", "west", 5}})
	_, err := fx.service.Upload(context.Background(), "sales", user, file, size)
	var authErr *types.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthorizationError, got %v", err)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	fx := setupUploadFixture(t, nil, nil)
	user := models.AuthUser{ID: 42, RoleIDs: []uint64{1}}

	file, _ := salesWorkbook(t, [][]any{{"15/01/2026", "west", 5}})
	_, err := fx.service.Upload(context.Background(), "sales", user, file, config.DefaultMaxUploadBytes+1)
	var inputErr *types.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("Expected InputError for oversized file, got %v", err)
	}

	file, _ = salesWorkbook(t, [][]any{{"15/01/2026", "west", 5}})
	if _, err := fx.service.Upload(context.Background(), "sales", user, file, 0); !errors.As(err, &inputErr) {
		t.Fatalf("Expected InputError for empty file, got %v", err)
	}
}
