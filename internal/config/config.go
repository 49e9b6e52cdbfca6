// Package config loads protosalvage's configuration from an optional YAML
// file plus environment variable and flag overlays, following the same
// DefaultConfig/Load/Validate shape the teacher's internal/config/config.go
// uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is protosalvage's full runtime configuration. Explicit CLI flags
// always win over a loaded file, which in turn wins over these defaults.
type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Conflict ConflictConfig `yaml:"conflict"`
	Verify   VerifyConfig   `yaml:"verify"`
	Watch    WatchConfig    `yaml:"watch"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ScanConfig controls the directory walk and per-binary scan.
type ScanConfig struct {
	OutputDir      string `yaml:"output_dir"`
	Force          bool   `yaml:"force"`
	DryRun         bool   `yaml:"dry_run"`
	ListOnly       bool   `yaml:"list_only"`
	MaxDescriptors int    `yaml:"max_descriptors"`
	Jobs           int    `yaml:"jobs"`
	Format         string `yaml:"format"` // proto or filename; governs --list-only output
}

// ConflictConfig selects the ConflictResolver's renaming strategy.
type ConflictConfig struct {
	Strategy string `yaml:"strategy"` // hash-suffix, source-suffix, skip-conflicts
}

// VerifyConfig controls the optional round-trip recompilation check.
type VerifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatchConfig controls the fsnotify-driven daemon mode.
type WatchConfig struct {
	Debounce int `yaml:"debounce_ms"`
}

// MetricsConfig controls the daemon mode's /metrics and /healthz server.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the server
}

// LoggingConfig controls slog output, rotation, and syslog forwarding.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json or text
	File       string `yaml:"file"`   // empty means stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	SyslogAddr string `yaml:"syslog_addr"` // empty disables syslog forwarding
}

// DefaultConfig returns the configuration used when no file or overrides
// are supplied.
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			OutputDir: ".",
			Jobs:      0, // 0 means runtime.GOMAXPROCS(0) at the call site
			Format:    "proto",
		},
		Conflict: ConflictConfig{
			Strategy: "hash-suffix",
		},
		Watch: WatchConfig{
			Debounce: 250,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML config file (environment variables expanded via
// os.ExpandEnv), applies environment overrides, and validates the result.
// An empty path skips the file read and returns the validated defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies PROTOSALVAGE_* environment variable
// overrides, mirroring the teacher's SCHEMA_REGISTRY_* convention.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROTOSALVAGE_OUTPUT_DIR"); v != "" {
		c.Scan.OutputDir = v
	}
	if v := os.Getenv("PROTOSALVAGE_MAX_DESCRIPTORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.MaxDescriptors = n
		}
	}
	if v := os.Getenv("PROTOSALVAGE_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.Jobs = n
		}
	}
	if v := os.Getenv("PROTOSALVAGE_CONFLICT_STRATEGY"); v != "" {
		c.Conflict.Strategy = v
	}
	if v := os.Getenv("PROTOSALVAGE_VERIFY"); v != "" {
		c.Verify.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("PROTOSALVAGE_METRICS_ADDR"); v != "" {
		c.Metrics.Address = v
	}
	if v := os.Getenv("PROTOSALVAGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PROTOSALVAGE_SYSLOG_ADDR"); v != "" {
		c.Logging.SyslogAddr = v
	}
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	validStrategies := map[string]bool{
		"hash-suffix":    true,
		"source-suffix":  true,
		"skip-conflicts": true,
	}
	if !validStrategies[c.Conflict.Strategy] {
		return fmt.Errorf("invalid conflict strategy: %s", c.Conflict.Strategy)
	}

	validFormats := map[string]bool{"proto": true, "filename": true}
	if !validFormats[c.Scan.Format] {
		return fmt.Errorf("invalid output format: %s", c.Scan.Format)
	}

	if c.Scan.MaxDescriptors < 0 {
		return fmt.Errorf("max_descriptors cannot be negative: %d", c.Scan.MaxDescriptors)
	}
	if c.Scan.Jobs < 0 {
		return fmt.Errorf("jobs cannot be negative: %d", c.Scan.Jobs)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
