package services

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// HealthStatus reports service and database liveness.
type HealthStatus struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

// CheckHealth pings the database with a short timeout.
func CheckHealth(db *gorm.DB) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	sqlDB, err := db.DB()
	if err != nil {
		status.Status = "degraded"
		status.Database = err.Error()
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		status.Status = "degraded"
		status.Database = err.Error()
	}
	return status
}
