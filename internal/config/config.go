// Package config holds the environment-based configuration for notesync.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for notesync.
type Config struct {
	// Cloud API endpoint and credentials (required when sync is enabled).
	APIBaseURL string `env:"NOTESYNC_API_URL"`
	APIToken   string `env:"NOTESYNC_API_TOKEN"`

	// User identity the sync cursor is keyed by.
	UserID string `env:"NOTESYNC_USER_ID"`

	// Sync toggle. Disabling it leaves notesync a purely local store,
	// useful for offline work and for the export/import subcommands.
	EnableSync bool `env:"NOTESYNC_ENABLE_SYNC" envDefault:"true"`

	// Interval between incremental sync passes.
	SyncInterval time.Duration `env:"NOTESYNC_SYNC_INTERVAL" envDefault:"60s"`

	// Database file path. Defaults to ~/.notesync/notes.db when empty.
	DataPath string `env:"NOTESYNC_DATA_PATH"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the API token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve DataPath to an absolute path at startup so later chdir
	// calls cannot silently move the database.
	if cfg.DataPath != "" {
		absPath, err := filepath.Abs(cfg.DataPath)
		if err != nil {
			return nil, fmt.Errorf("resolving data path to absolute path: %w", err)
		}

		cfg.DataPath = absPath
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.EnableSync {
		if c.APIBaseURL == "" {
			return fmt.Errorf("NOTESYNC_API_URL is required when sync is enabled")
		}

		u, err := url.Parse(c.APIBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("NOTESYNC_API_URL must be an absolute URL")
		}

		if c.APIToken == "" {
			return fmt.Errorf("NOTESYNC_API_TOKEN is required when sync is enabled")
		}

		if c.UserID == "" {
			return fmt.Errorf("NOTESYNC_USER_ID is required when sync is enabled")
		}
	}

	if c.SyncInterval < time.Second {
		return fmt.Errorf("NOTESYNC_SYNC_INTERVAL must be at least 1s, got %s", c.SyncInterval)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
