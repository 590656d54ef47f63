// Package config loads jiftool's config.toml: defaults for dedup capacity
// hints, the fracture worker count, the default prefetch windowing
// strategy, and firecracker snapshot search paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config represents ~/.jiftool/config.toml.
type Config struct {
	DedupCapacityHint int      `toml:"dedup_capacity_hint,omitempty" json:"dedup_capacity_hint"`
	FractureWorkers   int      `toml:"fracture_workers,omitempty" json:"fracture_workers"`
	DefaultWindowing  string   `toml:"default_windowing,omitempty" json:"default_windowing"`
	SnapshotSearch    []string `toml:"snapshot_search,omitempty" json:"snapshot_search"`
}

// configDirOverride is set by the --config-dir flag or JIFTOOL_HOME env var.
var configDirOverride string

// SetConfigDir allows the CLI to pass in the --config-dir / JIFTOOL_HOME value.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// Home returns the config directory path.
// Precedence: --config-dir flag / SetConfigDir > JIFTOOL_HOME env > ~/.jiftool
func Home() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("JIFTOOL_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".jiftool")
	}
	return filepath.Join(home, ".jiftool")
}

// ConfigPath returns the full path to config.toml.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// EnsureDir creates the jiftool home directory if it does not exist.
func EnsureDir() error {
	return os.MkdirAll(Home(), 0o755)
}

// defaults are applied to any field the user's config.toml leaves unset.
var defaults = Config{
	DedupCapacityHint: 4096,
	FractureWorkers:   4,
	DefaultWindowing:  "uniform_volume",
}

// Load reads config.toml and returns a Config struct with defaults filled
// in for any field the file omits. If the file does not exist, it returns
// the defaults unmodified.
func Load() (*Config, error) {
	cfg := defaults
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return &cfg, nil
}

// ResolveWindowing returns the prefetch windowing strategy that applies to
// a JIF built from workDir, following this precedence chain:
//
//  1. an explicit override passed by the caller (e.g. a --windowing flag)
//  2. the nearest .jifrc walking up from workDir
//  3. cfg.DefaultWindowing (~/.jiftool/config.toml, or the builtin default)
func ResolveWindowing(cfg *Config, workDir, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if workDir != "" {
		rc, err := FindJIFRC(workDir)
		if err != nil {
			return "", fmt.Errorf("searching for .jifrc: %w", err)
		}
		if rc != "" {
			strategy, err := ReadJIFRC(rc)
			if err != nil {
				return "", err
			}
			return strategy, nil
		}
	}
	return cfg.DefaultWindowing, nil
}

// Save writes the Config struct back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}
