package handlers

import (
	"errors"
	"strconv"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/schema"
	"github.com/datadrive/doctype-engine/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// DocTypeHandler handles document type administration routes
type DocTypeHandler struct {
	Registry *schema.Registry
}

// CreateDocTypeRequest is the POST /api/doctypes payload.
type CreateDocTypeRequest struct {
	models.DocType
	Fields []models.DocTypeField `json:"fields"`
}

// List handles GET /api/doctypes
func (h *DocTypeHandler) List(c *fiber.Ctx) error {
	dts, err := h.Registry.ListDocTypes(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "listDocTypes")
	}
	return c.Status(fiber.StatusOK).JSON(dts)
}

// Get handles GET /api/doctypes/:slug
func (h *DocTypeHandler) Get(c *fiber.Ctx) error {
	dt, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return utils.NotFoundResponse(c, "document type not found")
		}
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "getDocType")
	}
	return c.Status(fiber.StatusOK).JSON(dt)
}

// Create handles POST /api/doctypes
func (h *DocTypeHandler) Create(c *fiber.Ctx) error {
	var req CreateDocTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "createDocType")
	}
	dt := req.DocType
	if err := h.Registry.CreateDocType(c.Context(), &dt, req.Fields); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dt)
}

// Update handles PUT /api/doctypes/:slug (non-structural settings only)
func (h *DocTypeHandler) Update(c *fiber.Ctx) error {
	current, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return utils.NotFoundResponse(c, "document type not found")
		}
		return err
	}
	var dt models.DocType
	if err := c.BodyParser(&dt); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "updateDocType")
	}
	dt.ID = current.ID
	if err := h.Registry.UpdateDocType(c.Context(), &dt); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(dt)
}

// Delete handles DELETE /api/doctypes/:slug
func (h *DocTypeHandler) Delete(c *fiber.Ctx) error {
	dt, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return utils.NotFoundResponse(c, "document type not found")
		}
		return err
	}
	if err := h.Registry.DeleteDocType(c.Context(), dt.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddField handles POST /api/doctypes/:slug/fields
func (h *DocTypeHandler) AddField(c *fiber.Ctx) error {
	dt, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return utils.NotFoundResponse(c, "document type not found")
		}
		return err
	}
	var field models.DocTypeField
	if err := c.BodyParser(&field); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "addField")
	}
	if err := h.Registry.AddField(c.Context(), dt.ID, &field); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(field)
}

// UpdateField handles PUT /api/doctypes/:slug/fields/:id
func (h *DocTypeHandler) UpdateField(c *fiber.Ctx) error {
	dt, fieldID, err := h.docTypeAndFieldID(c)
	if err != nil {
		return err
	}
	var field models.DocTypeField
	if err := c.BodyParser(&field); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "updateField")
	}
	if err := h.Registry.UpdateField(c.Context(), dt.ID, fieldID, &field); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(field)
}

// RemoveField handles DELETE /api/doctypes/:slug/fields/:id
func (h *DocTypeHandler) RemoveField(c *fiber.Ctx) error {
	dt, fieldID, err := h.docTypeAndFieldID(c)
	if err != nil {
		return err
	}
	if err := h.Registry.RemoveField(c.Context(), dt.ID, fieldID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpsertPermission handles PUT /api/doctypes/:slug/permissions/:roleId
func (h *DocTypeHandler) UpsertPermission(c *fiber.Ctx) error {
	dt, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return utils.NotFoundResponse(c, "document type not found")
		}
		return err
	}
	roleID, err := strconv.ParseUint(c.Params("roleId"), 10, 64)
	if err != nil {
		return utils.ErrorResponse(c, "invalid role id", fiber.StatusBadRequest, "upsertPermission")
	}
	var perm models.DocTypePermission
	if err := c.BodyParser(&perm); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "upsertPermission")
	}
	perm.DocTypeID = dt.ID
	perm.RoleID = roleID
	if err := h.Registry.UpsertPermission(c.Context(), &perm); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(perm)
}

// docTypeAndFieldID resolves the route's doc type and field id. It returns
// real errors, never a written response, so callers can rely on err != nil
// before touching the doc type.
func (h *DocTypeHandler) docTypeAndFieldID(c *fiber.Ctx) (*models.DocType, uint64, error) {
	dt, err := h.Registry.GetDocTypeBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, schema.ErrDocTypeNotFound) {
			return nil, 0, fiber.NewError(fiber.StatusNotFound, "document type not found")
		}
		return nil, 0, err
	}
	fieldID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return nil, 0, fiber.NewError(fiber.StatusBadRequest, "invalid field id")
	}
	return dt, fieldID, nil
}
