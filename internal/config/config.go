// Package config provides configuration types and defaults for warden.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/warden/internal/log"
)

// Config holds all configuration options for warden.
type Config struct {
	// DBPath is the sqlite database holding profiles, key pools,
	// schedules and settings. Default: ~/.warden/warden.db
	DBPath string `mapstructure:"db_path"`

	// LogPath is the debug log file. Default: ~/.config/warden/debug.log
	LogPath string `mapstructure:"log_path"`

	// AutoRefresh reloads persisted entities when the database file
	// changes on disk (external edits, second warden instance).
	AutoRefresh bool `mapstructure:"auto_refresh"`

	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Launcher LauncherConfig `mapstructure:"launcher"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// DaemonConfig holds daemon lifecycle options.
type DaemonConfig struct {
	// ShutdownTimeoutSeconds bounds how long the daemon waits for
	// supervised processes to stop on SIGINT/SIGTERM.
	// Default: 30
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LauncherConfig holds host-level defaults applied to profiles that
// omit launch details.
type LauncherConfig struct {
	// Executable is used when a profile has no executable of its own.
	Executable string `mapstructure:"executable"`

	// Args are prepended to every launched profile's arguments.
	Args []string `mapstructure:"args"`

	// GamePath is the default game installation directory.
	GamePath string `mapstructure:"game_path"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: ~/.config/warden/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// 1.0 = all traces, 0.1 = 10% of traces
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultDBPath returns ~/.warden/warden.db or empty string if the
// home dir is unavailable.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".warden", "warden.db")
}

// DefaultLogPath returns ~/.config/warden/debug.log or empty string if
// the home dir is unavailable.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "warden", "debug.log")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/warden/traces/traces.jsonl or empty string if home
// dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "warden", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DBPath:      DefaultDBPath(),
		LogPath:     DefaultLogPath(),
		AutoRefresh: true,
		Daemon: DaemonConfig{
			ShutdownTimeoutSeconds: 30,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func Validate(c Config) error {
	if c.Daemon.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("daemon.shutdown_timeout_seconds must not be negative, got %d", c.Daemon.ShutdownTimeoutSeconds)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Warden Configuration

# Path to the sqlite database holding profiles, key pools, schedules
# and settings (default: ~/.warden/warden.db)
# db_path: /path/to/warden.db

# Debug log file (default: ~/.config/warden/debug.log)
# log_path: /path/to/debug.log

# Reload persisted entities when the database changes on disk
auto_refresh: true

# Daemon lifecycle settings
daemon:
  shutdown_timeout_seconds: 30   # Bound on graceful shutdown of the fleet

# Host-level launch defaults, used by profiles that omit their own
launcher:
  # executable: /usr/local/bin/d2-headless
  # game_path: /opt/diablo2
  # args:
  #   - "--no-sound"

# Distributed tracing configuration
# Enables end-to-end visibility into launch and supervision flows
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/warden/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
