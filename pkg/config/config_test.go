package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Port != 9222 || cfg.CDPPort != 9223 {
		t.Errorf("unexpected default ports: %d %d", cfg.Port, cfg.CDPPort)
	}
	if !cfg.Headless {
		t.Error("expected headless by default")
	}
	if cfg.RecordingsDir != "./recordings" {
		t.Errorf("unexpected recordings dir: %s", cfg.RecordingsDir)
	}
	if cfg.Agent.MaxCycles != 50 {
		t.Errorf("unexpected agent max cycles: %d", cfg.Agent.MaxCycles)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: 8000
cdp_port: 8001
headless: false
recordings_dir: /tmp/captures
vision:
  model: claude-sonnet-4-5
agent:
  maxCycles: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Port != 8000 || cfg.CDPPort != 8001 {
		t.Errorf("unexpected ports: %d %d", cfg.Port, cfg.CDPPort)
	}
	if cfg.Headless {
		t.Error("expected headless=false from file")
	}
	if cfg.RecordingsDir != "/tmp/captures" {
		t.Errorf("unexpected recordings dir: %s", cfg.RecordingsDir)
	}
	if cfg.Vision.Model != "claude-sonnet-4-5" {
		t.Errorf("unexpected vision model: %s", cfg.Vision.Model)
	}
	if cfg.Agent.MaxCycles != 10 {
		t.Errorf("unexpected agent max cycles: %d", cfg.Agent.MaxCycles)
	}
	// Unset fields keep their defaults.
	if cfg.ViewportWidth != 1280 {
		t.Errorf("expected default viewport width, got %d", cfg.ViewportWidth)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"zero cdp port", func(c *Config) { c.CDPPort = 0 }, true},
		{"equal ports", func(c *Config) { c.CDPPort = c.Port }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
