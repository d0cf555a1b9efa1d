package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if got := cfg.Platforms.Facebook.BaseURL(); got != "https://graph.facebook.com/v18.0" {
		t.Errorf("unexpected facebook base url %q", got)
	}
	if cfg.Platforms.YouTube.MaxPages != 5 {
		t.Errorf("expected 5 pages, got %d", cfg.Platforms.YouTube.MaxPages)
	}
	if cfg.HTTP.Timeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.HTTP.Timeout())
	}
	if cfg.Storage.MaxComments != 1000 {
		t.Errorf("expected 1000 max comments, got %d", cfg.Storage.MaxComments)
	}
	if cfg.Settings.AutoRefreshMS != 60000 || cfg.Settings.NotificationSound != "default" {
		t.Errorf("unexpected settings %+v", cfg.Settings)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
platforms:
  facebook:
    api_version: v19.0
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if got := cfg.Platforms.Facebook.BaseURL(); got != "https://graph.facebook.com/v19.0" {
		t.Errorf("unexpected facebook base url %q", got)
	}
	if cfg.Quota.DailyLimit != 10000 {
		t.Errorf("expected default daily limit, got %d", cfg.Quota.DailyLimit)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  max_comments: 0\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for max_comments 0")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUPERNOVA_DATA_DIR", "/tmp/supernova")
	t.Setenv("SUPERNOVA_REDIS_ADDR", "localhost:6379")
	t.Setenv("SUPERNOVA_LOG_LEVEL", "debug")
	t.Setenv("SUPERNOVA_PORT", "9100")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetDataDir() != "/tmp/supernova" {
		t.Errorf("unexpected data dir %q", cfg.GetDataDir())
	}
	if cfg.Quota.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr %q", cfg.Quota.RedisAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected level %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("unexpected port %d", cfg.Server.Port)
	}

	t.Setenv("SUPERNOVA_PORT", "eighty")
	if _, err := Default(); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestResolveConfigPath(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	got, err := ResolveConfigPath(path)
	if err != nil || got != path {
		t.Errorf("expected %q, got %q (%v)", path, got, err)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Storage.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.DBPath() != filepath.Join("/custom/path", "supernova.db") {
		t.Errorf("unexpected db path %q", cfg.DBPath())
	}
}
