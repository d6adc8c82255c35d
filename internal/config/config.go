// Package config loads and saves the YAML application configuration.
// Secrets (database DSN, provider credentials) are never stored here; they
// come from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GoogleConfig selects which authenticated Google account the server syncs
// through. Tokens are captured by the `auth` CLI command.
type GoogleConfig struct {
	Account string `yaml:"account" json:"account"`
}

// CalDAVConfig points at a CalDAV endpoint and the calendar collection to
// sync with.
type CalDAVConfig struct {
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and live streams.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// SyncCron is the cron schedule on which due sync pairs are re-checked.
	// The actual per-pair cadence comes from each status's next sync time.
	SyncCron string `yaml:"sync_cron" json:"sync_cron"`

	// APIKeys, when non-empty, enables X-API-Key authentication on the API.
	APIKeys []string `yaml:"api_keys" json:"api_keys"`

	Google *GoogleConfig `yaml:"google,omitempty" json:"google,omitempty"`
	CalDAV *CalDAVConfig `yaml:"caldav,omitempty" json:"caldav,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		SyncCron: "@every 1m",
		APIKeys:  []string{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	if c.SyncCron == "" {
		c.SyncCron = "@every 1m"
	}
	if c.APIKeys == nil {
		c.APIKeys = []string{}
	}
}

// Load loads configuration from the given YAML path. A missing file is a
// first run: a default config is written with 0600 perms and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".wellsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
