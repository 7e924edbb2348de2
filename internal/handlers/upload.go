package handlers

import (
	"fmt"

	"github.com/datadrive/doctype-engine/internal/middleware"
	"github.com/datadrive/doctype-engine/internal/services"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/datadrive/doctype-engine/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// UploadHandler handles spreadsheet bulk uploads
type UploadHandler struct {
	Service  *services.UploadService
	MaxBytes int64
}

// Upload handles POST /api/doctypes/:slug/upload (multipart, field "file").
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, "missing file", fiber.StatusBadRequest, "upload")
	}
	if fileHeader.Size > h.MaxBytes {
		return &types.InputError{Message: fmt.Sprintf("file exceeds the %d MB limit", h.MaxBytes/(1024*1024))}
	}

	f, err := fileHeader.Open()
	if err != nil {
		return utils.ErrorResponse(c, "cannot read file", fiber.StatusBadRequest, "upload")
	}
	defer f.Close()

	report, err := h.Service.Upload(c.Context(), c.Params("slug"),
		middleware.CurrentUser(c), f, fileHeader.Size)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(report)
}
