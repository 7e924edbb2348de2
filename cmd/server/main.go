package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/datadrive/doctype-engine/internal/config"
	"github.com/datadrive/doctype-engine/internal/database"
	"github.com/datadrive/doctype-engine/internal/gate"
	"github.com/datadrive/doctype-engine/internal/handlers"
	"github.com/datadrive/doctype-engine/internal/ingest"
	"github.com/datadrive/doctype-engine/internal/middleware"
	"github.com/datadrive/doctype-engine/internal/query"
	"github.com/datadrive/doctype-engine/internal/schema"
	"github.com/datadrive/doctype-engine/internal/services"
	"github.com/datadrive/doctype-engine/internal/types"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Metadata tables only; dynamic tables are owned by the table manager
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	loc, err := time.LoadLocation(cfg.UploadTimezone)
	if err != nil {
		log.Fatalf("Invalid UPLOAD_TIMEZONE %q: %v", cfg.UploadTimezone, err)
	}

	tableManager := schema.NewTableManager(db)
	registry := schema.NewRegistry(db, tableManager)
	builder := query.NewBuilder(db)
	uploadGate := gate.New(registry, loc)
	pipeline := ingest.NewPipeline(loc, ingest.NewResolver(builder), cfg.MaxUploadRows)
	uploadService := services.NewUploadService(cfg, db, registry, builder, uploadGate, pipeline)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    int(cfg.MaxUploadBytes) + 1024*1024, // multipart overhead
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("doctype-engine")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	healthHandler := &handlers.HealthHandler{DB: db}
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api", middleware.Auth(cfg.JWTSecret))

	docTypeHandler := &handlers.DocTypeHandler{Registry: registry}
	doctypes := api.Group("/doctypes")
	doctypes.Get("/", docTypeHandler.List)
	doctypes.Get("/:slug", docTypeHandler.Get)
	doctypes.Post("/", middleware.RequireAdmin(), docTypeHandler.Create)
	doctypes.Put("/:slug", middleware.RequireAdmin(), docTypeHandler.Update)
	doctypes.Delete("/:slug", middleware.RequireAdmin(), docTypeHandler.Delete)
	doctypes.Post("/:slug/fields", middleware.RequireAdmin(), docTypeHandler.AddField)
	doctypes.Put("/:slug/fields/:id", middleware.RequireAdmin(), docTypeHandler.UpdateField)
	doctypes.Delete("/:slug/fields/:id", middleware.RequireAdmin(), docTypeHandler.RemoveField)
	doctypes.Put("/:slug/permissions/:roleId", middleware.RequireAdmin(), docTypeHandler.UpsertPermission)

	uploadHandler := &handlers.UploadHandler{Service: uploadService, MaxBytes: cfg.MaxUploadBytes}
	doctypes.Post("/:slug/upload", uploadHandler.Upload)

	dataHandler := &handlers.DataHandler{Registry: registry, Builder: builder}
	data := api.Group("/data")
	data.Get("/:slug", dataHandler.List)
	data.Get("/:slug/aggregate", dataHandler.Aggregate)
	data.Get("/:slug/:id", dataHandler.Get)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	log.Printf("Starting server on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}

// errorHandler maps the error taxonomy onto HTTP statuses
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"
	var rows []string

	var custom *types.CustomError
	var schemaErr *types.SchemaError
	var validationErr *types.ValidationError
	var authErr *types.AuthorizationError
	var inputErr *types.InputError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &custom):
		code = custom.Code
		message = custom.Message
		errorType = custom.Type
	case errors.As(err, &schemaErr):
		// DDL failures surface verbatim to the administrator
		errorType = "schema"
	case errors.As(err, &validationErr):
		code = fiber.StatusUnprocessableEntity
		message = validationErr.Message
		errorType = "validation"
		rows = validationErr.Rows
	case errors.As(err, &authErr):
		code = fiber.StatusForbidden
		message = authErr.Message
		errorType = "authorization"
	case errors.As(err, &inputErr):
		code = fiber.StatusBadRequest
		message = inputErr.Message
		errorType = "input"
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	case errors.Is(err, schema.ErrDocTypeNotFound), errors.Is(err, schema.ErrFieldNotFound):
		code = fiber.StatusNotFound
		errorType = "notFound"
	}

	body := fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	}
	if len(rows) > 0 {
		body["errors"] = rows
	}
	return c.Status(code).JSON(body)
}
