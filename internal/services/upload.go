package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/datadrive/doctype-engine/internal/config"
	"github.com/datadrive/doctype-engine/internal/gate"
	"github.com/datadrive/doctype-engine/internal/ingest"
	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/query"
	"github.com/datadrive/doctype-engine/internal/schema"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadReport summarizes one completed bulk upload.
type UploadReport struct {
	BatchID  string   `json:"batchId"`
	DocType  string   `json:"docType"`
	Sheet    string   `json:"sheet"`
	RowCount int      `json:"rowCount"`
	Inserted int64    `json:"inserted"`
	Deleted  int64    `json:"deleted"`
	Warnings []string `json:"warnings,omitempty"`
}

// UploadService runs the full bulk-upload flow: gate, limits, parse, then
// delete-affected-range plus batched insert inside one transaction.
type UploadService struct {
	cfg      *config.Config
	db       *gorm.DB
	registry *schema.Registry
	builder  *query.Builder
	gate     *gate.Gate
	pipeline *ingest.Pipeline
}

func NewUploadService(cfg *config.Config, db *gorm.DB, registry *schema.Registry,
	builder *query.Builder, g *gate.Gate, pipeline *ingest.Pipeline) *UploadService {
	return &UploadService{cfg: cfg, db: db, registry: registry, builder: builder, gate: g, pipeline: pipeline}
}

// Upload ingests one spreadsheet into the DocType's table. Concurrent uploads
// for overlapping date ranges are not serialized here; see the race test in
// this package for the documented behavior.
func (s *UploadService) Upload(ctx context.Context, slug string, user models.AuthUser, file io.Reader, size int64) (*UploadReport, error) {
	dt, err := s.registry.GetDocTypeBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.CanUploadNow(ctx, dt, user)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &types.AuthorizationError{Message: decision.Reason}
	}

	if size <= 0 {
		return nil, &types.InputError{Message: "empty file"}
	}
	if size > s.cfg.MaxUploadBytes {
		return nil, &types.InputError{Message: fmt.Sprintf("file exceeds the %d MB limit", s.cfg.MaxUploadBytes/(1024*1024))}
	}

	result, err := s.pipeline.Parse(ctx, file, dt)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, &types.ValidationError{
			Message: fmt.Sprintf("upload rejected: %d of %d rows failed validation", result.Failed, result.Total),
			Rows:    result.Errors,
		}
	}

	report := &UploadReport{
		BatchID:  uuid.NewString(),
		DocType:  dt.Slug,
		Sheet:    result.Sheet,
		RowCount: len(result.Rows),
		Warnings: result.Errors,
	}

	rows := make([]map[string]any, 0, len(result.Rows))
	for _, r := range result.Rows {
		row := make(map[string]any, len(r.Values)+2)
		for name, v := range r.Values {
			row[name] = v.SQLValue()
		}
		row["created_by"] = user.ID
		row["updated_by"] = user.ID
		rows = append(rows, row)
	}

	rangeField, rangeWhere := affectedDateRange(dt, result.Rows)

	// One transaction per upload attempt: a mid-batch failure rolls the whole
	// attempt back, previously committed data stays untouched.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		qb := s.builder.WithTx(tx)
		if rangeField != "" {
			deleted, err := qb.DeleteMany(ctx, dt.TableName, rangeWhere)
			if err != nil {
				return err
			}
			report.Deleted = deleted
		}
		inserted, err := qb.InsertMany(ctx, dt.TableName, rows, s.cfg.InsertBatchSize)
		if err != nil {
			return err
		}
		report.Inserted = inserted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload transaction: %w", err)
	}
	return report, nil
}

// affectedDateRange finds the DocType's first DATE/DATETIME form field and the
// min/max values the upload carries for it. DocTypes without a date field get
// no range delete; their uploads append.
func affectedDateRange(dt *models.DocType, rows []ingest.Row) (string, query.Where) {
	var dateField string
	for _, f := range dt.Fields {
		if !f.ShowInForm {
			continue
		}
		if f.FieldType == models.FieldDate || f.FieldType == models.FieldDateTime {
			dateField = f.FieldName
			break
		}
	}
	if dateField == "" {
		return "", nil
	}

	var min, max time.Time
	for _, r := range rows {
		v, ok := r.Values[dateField]
		if !ok || v.Null {
			continue
		}
		if min.IsZero() || v.Time.Before(min) {
			min = v.Time
		}
		if max.IsZero() || v.Time.After(max) {
			max = v.Time
		}
	}
	if min.IsZero() {
		return "", nil
	}
	return dateField, query.Where{
		dateField: query.Cond{
			GTE: min.Format("2006-01-02"),
			LTE: max.Format("2006-01-02") + " 23:59:59",
		},
	}
}
