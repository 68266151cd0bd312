// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClickHouseConfig holds the networked engine's connection settings.
// The adapter is only registered when Addr is set.
type ClickHouseConfig struct {
	Addr           string
	Database       string
	Username       string
	Password       string
	MaxConcurrency int // connection pool ceiling, advertised via the descriptor
}

// Enabled returns true when a ClickHouse endpoint is configured.
func (c *ClickHouseConfig) Enabled() bool {
	return c.Addr != ""
}

// Config holds the configuration for the HTTP API, the job store, and the
// engine adapters.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	MetaDBPath string // path to the SQLite metastore; empty selects the in-memory store
	DuckDBPath string // path to the embedded engine's database file; empty opens in-memory

	ClickHouse ClickHouseConfig

	// CancelGrace bounds how long a running job may ignore its cancellation
	// token before it is marked cancelled anyway.
	CancelGrace time.Duration

	// Rate limiting on query submission.
	RateLimitRPS   float64 // sustained requests per second (default 10)
	RateLimitBurst int     // burst capacity (default 20)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Retention of terminal jobs.
	RetentionTTL      time.Duration // age past which terminal jobs are deleted (default 24h)
	RetentionSchedule string        // cron expression for the sweep (default every 10 minutes)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables. ClickHouse
// variables are optional — the service can run with only the embedded
// engine.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Env:        os.Getenv("ENV"),
		MetaDBPath: os.Getenv("META_DB_PATH"),
		DuckDBPath: os.Getenv("DUCKDB_PATH"),
		ClickHouse: ClickHouseConfig{
			Addr:     os.Getenv("CLICKHOUSE_ADDR"),
			Database: os.Getenv("CLICKHOUSE_DATABASE"),
			Username: os.Getenv("CLICKHOUSE_USERNAME"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		RetentionSchedule: os.Getenv("RETENTION_SCHEDULE"),
	}

	if v := os.Getenv("CLICKHOUSE_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid CLICKHOUSE_MAX_CONCURRENCY %q", v)
		}
		cfg.ClickHouse.MaxConcurrency = n
	}

	if v := os.Getenv("CANCEL_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CANCEL_GRACE %q: %w", v, err)
		}
		cfg.CancelGrace = d
	}
	if v := os.Getenv("RETENTION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RETENTION_TTL %q: %w", v, err)
		}
		cfg.RetentionTTL = d
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ClickHouse.MaxConcurrency == 0 {
		cfg.ClickHouse.MaxConcurrency = 4
	}
	if cfg.CancelGrace == 0 {
		cfg.CancelGrace = 5 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.RetentionTTL == 0 {
		cfg.RetentionTTL = 24 * time.Hour
	}
	if cfg.RetentionSchedule == "" {
		cfg.RetentionSchedule = "*/10 * * * *"
	}

	if cfg.MetaDBPath == "" {
		cfg.Warnings = append(cfg.Warnings,
			"META_DB_PATH not set — job and schema state is held in memory and lost on restart")
	}
	if !cfg.ClickHouse.Enabled() {
		cfg.Warnings = append(cfg.Warnings,
			"CLICKHOUSE_ADDR not set — only the embedded duckdb engine is registered")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.MetaDBPath == "" {
			return nil, fmt.Errorf("META_DB_PATH must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}
