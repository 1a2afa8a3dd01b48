package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
	if cfg.DBPath != filepath.Join(dir, "taskdock.db") {
		t.Errorf("DBPath = %q, want the default under dir", cfg.DBPath)
	}
	if cfg.User != "local" {
		t.Errorf("User = %q, want %q", cfg.User, "local")
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("SyncInterval = %v, want 1m", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 8787 {
		t.Errorf("DashboardPort = %d, want 8787", cfg.DashboardPort)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
user: alice
sync_interval: 2m30s
dashboard_port: 9000
sync_intervals:
  github: 30s
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.User != "alice" {
		t.Errorf("User = %q, want %q", cfg.User, "alice")
	}
	if cfg.SyncInterval != 2*time.Minute+30*time.Second {
		t.Errorf("SyncInterval = %v, want 2m30s", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 9000 {
		t.Errorf("DashboardPort = %d, want 9000", cfg.DashboardPort)
	}
	if got := cfg.SyncIntervals["github"]; got != 30*time.Second {
		t.Errorf("SyncIntervals[github] = %v, want 30s", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte("user: [unclosed"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("Load() accepted invalid YAML")
	}
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if err := cfg.WriteDefault(); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("config file missing after WriteDefault: %v", err)
	}

	if err := cfg.WriteDefault(); err == nil {
		t.Error("WriteDefault() overwrote an existing config")
	}

	// The starter file round-trips through Load.
	if _, err := Load(dir); err != nil {
		t.Errorf("Load() failed on the starter config: %v", err)
	}
}
