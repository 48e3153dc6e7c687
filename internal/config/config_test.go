package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
log:
  level: debug
  format: text
auth:
  jwt_secret: file-secret
  token_ttl: 2h
redis:
  addr: localhost:6379
  db: 2
postgres:
  url: postgres://quiz@localhost/quiz
questions:
  ttl: 5m
game:
  forfeit_after: 30s
  sweep_interval: 5s
metrics:
  enabled: true
cors:
  allowed_origins: ["http://localhost:3000"]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Level != "debug" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Fatalf("expected secret from file, got %q", cfg.Auth.JWTSecret)
	}
	if !cfg.Metrics.Enabled || len(cfg.CORS.AllowedOrigins) != 1 {
		t.Fatalf("expected metrics and cors sections, got %+v", cfg)
	}
	if got := Duration(cfg.Game.ForfeitAfter, 0); got != 30*time.Second {
		t.Fatalf("expected forfeit_after 30s, got %s", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  jwt_secret: file-secret\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("expected env secret, got %q", cfg.Auth.JWTSecret)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Server.Port != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %s", got)
	}
	if got := Duration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for malformed, got %s", got)
	}
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}
