package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DATABASE", "doctype")
	t.Setenv("DB_USER", "app")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "3000" {
		t.Errorf("Port = %q, want 3000", cfg.Port)
	}
	if cfg.UploadTimezone != "Asia/Jakarta" {
		t.Errorf("UploadTimezone = %q, want Asia/Jakarta", cfg.UploadTimezone)
	}
	if cfg.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, DefaultMaxUploadBytes)
	}
	if cfg.MaxUploadRows != DefaultMaxUploadRows {
		t.Errorf("MaxUploadRows = %d, want %d", cfg.MaxUploadRows, DefaultMaxUploadRows)
	}
	if cfg.InsertBatchSize != DefaultInsertBatchSize {
		t.Errorf("InsertBatchSize = %d, want %d", cfg.InsertBatchSize, DefaultInsertBatchSize)
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DB_DATABASE", "")
	t.Setenv("DB_USER", "app")
	t.Setenv("JWT_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Error("Expected error without DB_DATABASE")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DATABASE", "doctype")
	t.Setenv("DB_USER", "app")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("UPLOAD_TIMEZONE", "UTC")
	t.Setenv("MAX_UPLOAD_ROWS", "100")
	t.Setenv("DB_CONNECTION_LIMIT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.UploadTimezone != "UTC" {
		t.Errorf("UploadTimezone = %q, want UTC", cfg.UploadTimezone)
	}
	if cfg.MaxUploadRows != 100 {
		t.Errorf("MaxUploadRows = %d, want 100", cfg.MaxUploadRows)
	}
	// Unparseable integers fall back to the default.
	if cfg.DBConnectionLimit != 10 {
		t.Errorf("DBConnectionLimit = %d, want 10", cfg.DBConnectionLimit)
	}
}
