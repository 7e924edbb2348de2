package handlers

import (
	"github.com/datadrive/doctype-engine/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	DB *gorm.DB
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := services.CheckHealth(h.DB)
	code := fiber.StatusOK
	if status.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}
