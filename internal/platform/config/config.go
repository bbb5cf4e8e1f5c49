// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Engine) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Shuhai API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis) — session revocation store
	RedisURL string `env:"REDIS_URL,required"`

	// Upstream aggregation API (Rain)
	RainAPIBaseURL string `env:"RAIN_API_BASE_URL,required"`
	RainAPIKey     string `env:"RAIN_API_KEY"`

	// APITimeoutSeconds bounds a single upstream HTTP request.
	APITimeoutSeconds int `env:"API_TIMEOUT" envDefault:"30"`

	// APIRetryTimes is the number of attempts per upstream call.
	APIRetryTimes int `env:"API_RETRY_TIMES" envDefault:"3"`

	// Storage root. Books, generated EPUBs and TXTs live in fixed
	// subdirectories beneath it (books/, epubs/, txts/).
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// DailyWordLimit is the per-provider daily download ceiling in words.
	DailyWordLimit int64 `env:"DAILY_WORD_LIMIT" envDefault:"20000000"`

	// Download engine tuning
	ConcurrentDownloads  int     `env:"CONCURRENT_DOWNLOADS" envDefault:"3"`
	DownloadDelaySeconds float64 `env:"DOWNLOAD_DELAY" envDefault:"0.5"`

	// Authentication. An empty AppPassword disables the auth gate entirely.
	AppPassword        string `env:"APP_PASSWORD"`
	SecretKey          string `env:"SECRET_KEY,required"`
	SessionExpireHours int    `env:"SESSION_EXPIRE_HOURS" envDefault:"72"`

	// EPUB metadata defaults
	EpubLanguage    string `env:"EPUB_LANGUAGE"     envDefault:"zh-CN"`
	EpubPublisher   string `env:"EPUB_PUBLISHER"    envDefault:"Shuhai"`
	EpubCoverWidth  int    `env:"EPUB_COVER_WIDTH"  envDefault:"600"`
	EpubCoverHeight int    `env:"EPUB_COVER_HEIGHT" envDefault:"800"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AuthEnabled reports whether the app-password gate is active.
func (c *Config) AuthEnabled() bool {
	return c.AppPassword != ""
}

// ExtraAllowedOrigins splits the EXTRA_ORIGINS comma list for the CORS middleware.
func (c *Config) ExtraAllowedOrigins() []string {
	if c.ExtraOrigins == "" {
		return nil
	}

	parts := strings.Split(c.ExtraOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}

// # Derived Values

// BooksDir is the root of per-book blob subtrees.
func (c *Config) BooksDir() string { return filepath.Join(c.DataDir, "books") }

// EpubsDir holds generated EPUB artifacts.
func (c *Config) EpubsDir() string { return filepath.Join(c.DataDir, "epubs") }

// TxtsDir holds generated TXT artifacts.
func (c *Config) TxtsDir() string { return filepath.Join(c.DataDir, "txts") }

// APITimeout returns the upstream request timeout as a [time.Duration].
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// DownloadDelay returns the inter-chapter pause as a [time.Duration].
func (c *Config) DownloadDelay() time.Duration {
	return time.Duration(c.DownloadDelaySeconds * float64(time.Second))
}

// SessionTTL returns the auth cookie lifetime as a [time.Duration].
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionExpireHours) * time.Hour
}
