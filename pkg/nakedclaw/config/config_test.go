package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxTurns != DefaultMaxTurns {
		t.Errorf("MaxTurns = %d, want %d", cfg.MaxTurns, DefaultMaxTurns)
	}
	if cfg.Scheduler.Backend != "file" {
		t.Errorf("Scheduler.Backend = %q, want file", cfg.Scheduler.Backend)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "info" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadPartialFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "name: claw\nstate_dir: " + dir + "\nmax_turns: 7\nscheduler:\n  backend: sqlite\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "claw" || cfg.MaxTurns != 7 {
		t.Errorf("explicit values lost: %+v", cfg)
	}
	if cfg.Scheduler.Backend != "sqlite" {
		t.Errorf("Scheduler.Backend = %q", cfg.Scheduler.Backend)
	}
	// Unset keys still get defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default", cfg.Logging.Level)
	}

	// Derived paths hang off the configured state dir.
	if cfg.SocketPath() != filepath.Join(dir, "daemon.sock") {
		t.Errorf("SocketPath = %q", cfg.SocketPath())
	}
	if cfg.PIDFilePath() != filepath.Join(dir, "daemon.pid") {
		t.Errorf("PIDFilePath = %q", cfg.PIDFilePath())
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml: ["), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load on malformed YAML succeeded")
	}
}
