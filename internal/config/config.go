package config

import (
	"fmt"
	"os"
	"strconv"
)

// Upload limits, uniform across ingestion paths.
const (
	DefaultMaxUploadBytes  = 10 * 1024 * 1024
	DefaultMaxUploadRows   = 50000
	DefaultInsertBatchSize = 1000
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Identity boundary
	JWTSecret string

	// Upload gating and limits
	UploadTimezone  string // IANA zone the deadline clock runs in
	MaxUploadBytes  int64
	MaxUploadRows   int
	InsertBatchSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBDatabase:        getEnv("DB_DATABASE", ""),
		DBUser:            getEnv("DB_USER", ""),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBConnectionLimit: getEnvAsInt("DB_CONNECTION_LIMIT", 10),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		UploadTimezone:    getEnv("UPLOAD_TIMEZONE", "Asia/Jakarta"),
		MaxUploadBytes:    int64(getEnvAsInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		MaxUploadRows:     getEnvAsInt("MAX_UPLOAD_ROWS", DefaultMaxUploadRows),
		InsertBatchSize:   getEnvAsInt("INSERT_BATCH_SIZE", DefaultInsertBatchSize),
	}

	// Validate required fields
	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
