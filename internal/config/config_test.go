package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://localhost:8000\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("unexpected base url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 30 {
		t.Errorf("expected default timeout 30, got %d", cfg.Backend.Timeout)
	}
	if cfg.Backend.AnalysisTimeout != 600 {
		t.Errorf("expected default analysis timeout 600, got %d", cfg.Backend.AnalysisTimeout)
	}
	if cfg.Dashboard.RefreshInterval != 60 {
		t.Errorf("expected default refresh interval 60, got %d", cfg.Dashboard.RefreshInterval)
	}
	if cfg.Analysis.PollInterval != 2000 {
		t.Errorf("expected default poll interval 2000, got %d", cfg.Analysis.PollInterval)
	}
}

func TestLoadConfigTrimsTrailingSlash(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://localhost:8000/\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoadConfigRejectsMissingBackendURL(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing backend.base_url")
	}
}

func TestLoadConfigRejectsRelativeURL(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: localhost:8000\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for non-absolute backend URL")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://localhost:8000\n")
	t.Setenv("BACKUPCONTROL_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected env override for log level, got %s", cfg.Log.Level)
	}
}
