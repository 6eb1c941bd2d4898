package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := Path(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
project:
  name: shop
  start_command: npm run dev
  notes: uses pnpm workspaces
monitor:
  idle_threshold: 2s
  max_retries: 5
  watch_logs:
    - logs/app.log
  use_pty: false
repair:
  max_depth: 1
  auto_approve: true
  backend: codex
  timeout: 90s
  extra_patterns:
    - db=connection refused
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Project.StartCommand != "npm run dev" {
		t.Errorf("StartCommand = %q, want %q", cfg.Project.StartCommand, "npm run dev")
	}
	if got := cfg.Monitor.IdleThreshold.Or(DefaultIdleThreshold); got != 2*time.Second {
		t.Errorf("IdleThreshold = %v, want 2s", got)
	}
	if got := cfg.Monitor.GracePeriod.Or(DefaultGracePeriod); got != DefaultGracePeriod {
		t.Errorf("GracePeriod = %v, want default", got)
	}
	if cfg.MaxRetries() != 5 {
		t.Errorf("MaxRetries() = %d, want 5", cfg.MaxRetries())
	}
	if cfg.MaxDepth() != 1 {
		t.Errorf("MaxDepth() = %d, want 1", cfg.MaxDepth())
	}
	if cfg.UsePTY() {
		t.Error("UsePTY() = true, want false")
	}
	if cfg.Backend() != "codex" {
		t.Errorf("Backend() = %q, want codex", cfg.Backend())
	}
	if got := cfg.Repair.Timeout.Or(DefaultRepairTimeout); got != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", got)
	}
	if len(cfg.Repair.ExtraPatterns) != 1 {
		t.Errorf("ExtraPatterns = %v", cfg.Repair.ExtraPatterns)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxRetries() != DefaultMaxRetries {
		t.Errorf("MaxRetries() = %d, want %d", cfg.MaxRetries(), DefaultMaxRetries)
	}
	if cfg.MaxDepth() != DefaultMaxDepth {
		t.Errorf("MaxDepth() = %d, want %d", cfg.MaxDepth(), DefaultMaxDepth)
	}
	if !cfg.UsePTY() {
		t.Error("UsePTY() should default to true")
	}
	if cfg.Backend() != DefaultBackend {
		t.Errorf("Backend() = %q, want %q", cfg.Backend(), DefaultBackend)
	}
}

func TestLoad_ZeroRetriesIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "monitor:\n  max_retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxRetries() != 0 {
		t.Errorf("MaxRetries() = %d, want 0", cfg.MaxRetries())
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "monitor:\n  idle_threshold: soon\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "soon") {
		t.Errorf("error %q should mention the bad value", err)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"negative retries", Config{Monitor: MonitorConfig{MaxRetries: &neg}}, "monitor.max_retries"},
		{"negative depth", Config{Repair: RepairConfig{MaxDepth: &neg}}, "repair.max_depth"},
		{"unknown backend", Config{Repair: RepairConfig{Backend: "gpt"}}, "repair.backend"},
		{"command without command", Config{Repair: RepairConfig{Backend: "command"}}, "repair.command"},
		{"bad level", Config{Logging: LoggingConfig{Level: "loud"}}, "logging.level"},
		{"bad format", Config{Logging: LoggingConfig{Format: "xml"}}, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidatePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Project: ProjectConfig{Workdir: "missing"}}
	if errs := cfg.ValidatePaths(dir); len(errs) != 1 {
		t.Errorf("ValidatePaths() = %v, want 1 error", errs)
	}

	os.Mkdir(filepath.Join(dir, "web"), 0755)
	cfg.Project.Workdir = "web"
	if errs := cfg.ValidatePaths(dir); len(errs) != 0 {
		t.Errorf("ValidatePaths() = %v, want none", errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "a", Message: "bad", Expected: "good"}
	if got := e.Error(); got != "a: bad (expected: good)" {
		t.Errorf("Error() = %q", got)
	}
}
