package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/famcare")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("default env should be development")
	}
	if cfg.AuditFailClosed {
		t.Error("audit defaults to fail-open")
	}
	if cfg.SkewTolerance() != time.Second {
		t.Errorf("SkewTolerance = %v, want 1s", cfg.SkewTolerance())
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without DATABASE_URL")
	}
}

func TestLoadProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/famcare")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("production config should fail without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("env should be production")
	}
}

func TestLoadCORSOriginsSplit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/famcare")
	t.Setenv("CORS_ORIGINS", "https://app.famcare.io,https://staging.famcare.io")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://staging.famcare.io" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadSkewTolerance(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/famcare")
	t.Setenv("VERSION_SKEW_TOLERANCE_MS", "2500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SkewTolerance() != 2500*time.Millisecond {
		t.Errorf("SkewTolerance = %v", cfg.SkewTolerance())
	}

	t.Setenv("VERSION_SKEW_TOLERANCE_MS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("negative tolerance must be rejected")
	}
}
