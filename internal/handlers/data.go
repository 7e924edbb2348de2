package handlers

import (
	"errors"
	"strings"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/query"
	"github.com/datadrive/doctype-engine/internal/schema"
	"github.com/datadrive/doctype-engine/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// reserved query parameters that are not field filters.
var reservedParams = map[string]bool{
	"page": true, "limit": true, "sort": true, "dir": true,
	"groupBy": true, "sum": true, "avg": true, "min": true, "max": true,
}

// DataHandler serves generic reads against any DocType's table
type DataHandler struct {
	Registry *schema.Registry
	Builder  *query.Builder
}

// List handles GET /api/data/:slug with pagination, sorting and field filters.
// Any query parameter matching a declared field name filters on equality;
// "<field>_like" does a LIKE match.
func (h *DataHandler) List(c *fiber.Ctx) error {
	dt, err := h.docType(c)
	if err != nil {
		return err
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	where := h.filterWhere(c, dt)
	opts := query.FindOptions{
		Where:  where,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if sortField := c.Query("sort"); sortField != "" {
		opts.OrderBy = []query.Order{{Field: sortField, Desc: strings.EqualFold(c.Query("dir"), "desc")}}
	} else {
		opts.OrderBy = []query.Order{{Field: "id", Desc: true}}
	}

	rows, err := h.Builder.FindMany(c.Context(), dt.TableName, opts)
	if err != nil {
		return err
	}
	total, err := h.Builder.Count(c.Context(), dt.TableName, where)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data":  rows,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

// Get handles GET /api/data/:slug/:id
func (h *DataHandler) Get(c *fiber.Ctx) error {
	dt, err := h.docType(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return utils.ErrorResponse(c, "invalid id", fiber.StatusBadRequest, "getRow")
	}
	row, err := h.Builder.FindByID(c.Context(), dt.TableName, id)
	if err != nil {
		return err
	}
	if row == nil {
		return utils.NotFoundResponse(c, "row not found")
	}
	return c.Status(fiber.StatusOK).JSON(row)
}

// Aggregate handles GET /api/data/:slug/aggregate with groupBy/sum/avg/min/max
// parameters, each a comma-separated field list.
func (h *DataHandler) Aggregate(c *fiber.Ctx) error {
	dt, err := h.docType(c)
	if err != nil {
		return err
	}
	opts := query.AggregateOptions{
		Where:   h.filterWhere(c, dt),
		GroupBy: splitParam(c.Query("groupBy")),
		Sum:     splitParam(c.Query("sum")),
		Avg:     splitParam(c.Query("avg")),
		Min:     splitParam(c.Query("min")),
		Max:     splitParam(c.Query("max")),
	}
	rows, err := h.Builder.Aggregate(c.Context(), dt.TableName, opts)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.Status(fiber.StatusOK).JSON(rows)
}

func (h *DataHandler) docType(c *fiber.Ctx) (*models.DocType, error) {
	dt, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "document type not found")
		}
		return nil, err
	}
	if !dt.IsActive {
		return nil, fiber.NewError(fiber.StatusNotFound, "document type not found")
	}
	return dt, nil
}

// filterWhere maps query params onto declared fields; unknown params are
// ignored so a typo can never widen a query.
func (h *DataHandler) filterWhere(c *fiber.Ctx, dt *models.DocType) query.Where {
	byName := make(map[string]bool, len(dt.Fields))
	for _, f := range dt.Fields {
		byName[f.FieldName] = true
	}

	where := query.Where{}
	for key, values := range c.Queries() {
		if reservedParams[key] || values == "" {
			continue
		}
		if byName[key] || key == "id" {
			where[key] = values
			continue
		}
		if name, ok := strings.CutSuffix(key, "_like"); ok && byName[name] {
			where[name] = query.Cond{Like: "%" + values + "%"}
		}
		if name, ok := strings.CutSuffix(key, "_gte"); ok && byName[name] {
			where[name] = query.Cond{GTE: values}
		}
		if name, ok := strings.CutSuffix(key, "_lte"); ok && byName[name] {
			mergeLTE(where, name, values)
		}
	}
	return where
}

// splitParam splits a comma-separated parameter list, dropping blank entries.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// mergeLTE folds an upper bound into an existing range condition if present.
func mergeLTE(where query.Where, name, value string) {
	if existing, ok := where[name].(query.Cond); ok {
		existing.LTE = value
		where[name] = existing
		return
	}
	where[name] = query.Cond{LTE: value}
}
