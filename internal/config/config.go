// Package config loads daemon configuration from JSON files with
// defaults-then-global-then-project precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Config is the top-level daemon configuration.
type Config struct {
	// DataDir holds the task state database. Defaults to the XDG data home.
	DataDir string `json:"data_dir,omitempty"`

	// QueueLength bounds the dispatcher's pending-run queue.
	QueueLength int `json:"queue_length,omitempty"`

	// MaxConcurrent bounds how many task bodies run at once.
	MaxConcurrent int `json:"max_concurrent,omitempty"`

	// EventBufferSize is the per-subscriber event channel buffer.
	EventBufferSize int `json:"event_buffer_size,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:         filepath.Join(xdg.DataHome, "taskcycle"),
		QueueLength:     64,
		MaxConcurrent:   4,
		EventBufferSize: 256,
	}
}

// DatabasePath returns the SQLite file location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "taskcycle.db")
}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: $XDG_CONFIG_HOME/taskcycle/config.json
// Project: .taskcycle/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	globalPath := filepath.Join(xdg.ConfigHome, "taskcycle", "config.json")
	projectPath := filepath.Join(".taskcycle", "config.json")
	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var overlay Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}
	if overlay.QueueLength > 0 {
		base.QueueLength = overlay.QueueLength
	}
	if overlay.MaxConcurrent > 0 {
		base.MaxConcurrent = overlay.MaxConcurrent
	}
	if overlay.EventBufferSize > 0 {
		base.EventBufferSize = overlay.EventBufferSize
	}
	return nil
}

// Save persists the configuration to a JSON file, creating parent
// directories if needed.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
