// Package config defines the daemon configuration structures and loads
// them from a YAML file with a .env overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultMaxTurns is the default conversation turn limit used to bound
// session read-back (reads return at most 2x this many messages).
const DefaultMaxTurns = 20

// Config holds all daemon configuration.
type Config struct {
	// Name is the assistant name shown in replies and the REPL prompt.
	Name string `yaml:"name"`

	// StateDir is the root directory for all persisted state
	// (sessions, jobs, PID file, socket, logs).
	StateDir string `yaml:"state_dir"`

	// MaxTurns bounds session read-back: reads return at most
	// 2*MaxTurns most-recent messages.
	MaxTurns int `yaml:"max_turns"`

	// Scheduler configures job persistence.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Heartbeat configures the periodic self-check message.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// SchedulerConfig configures the scheduled-job store.
type SchedulerConfig struct {
	// Backend selects job persistence: "file" (JSON) or "sqlite".
	Backend string `yaml:"backend"`
}

// HeartbeatConfig configures the periodic heartbeat routed through the agent.
type HeartbeatConfig struct {
	// Enabled turns the heartbeat ticker on at boot.
	Enabled bool `yaml:"enabled"`

	// IntervalMinutes is the tick interval. Defaults to 30.
	IntervalMinutes int `yaml:"interval_minutes"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format selects the slog handler: "text" or "json".
	Format string `yaml:"format"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Name:     "nakedclaw",
		StateDir: filepath.Join(home, ".nakedclaw"),
		MaxTurns: DefaultMaxTurns,
		Scheduler: SchedulerConfig{
			Backend: "file",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			IntervalMinutes: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path, applying defaults for anything
// unset. A missing file is not an error: defaults are returned, so a
// fresh install works with zero configuration. A .env file next to the
// config (or in the working directory) is loaded first.
func Load(path string) (*Config, error) {
	// Best-effort .env overlay; absence is fine.
	_ = godotenv.Load()
	if path != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	}

	cfg := Default()
	if path == "" {
		path = filepath.Join(cfg.StateDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.Scheduler.Backend == "" {
		c.Scheduler.Backend = d.Scheduler.Backend
	}
	if c.Heartbeat.IntervalMinutes <= 0 {
		c.Heartbeat.IntervalMinutes = d.Heartbeat.IntervalMinutes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// SessionsDir returns the directory holding per-session transcript logs.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.StateDir, "sessions")
}

// SocketPath returns the control socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.StateDir, "daemon.sock")
}

// PIDFilePath returns the daemon PID file path.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.StateDir, "daemon.pid")
}

// LogFilePath returns the daemon log file path.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.StateDir, "daemon.log")
}

// JobsFilePath returns the JSON job store path (file backend).
func (c *Config) JobsFilePath() string {
	return filepath.Join(c.StateDir, "jobs.json")
}

// JobsDBPath returns the SQLite job store path (sqlite backend).
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.StateDir, "jobs.db")
}

// EnsureStateDir creates the state directory tree.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.SessionsDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
