// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Import    ImportConfig
	Assets    AssetsConfig
	Blob      BlobConfig
	History   HistoryConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response. It must
	// outlast IMPORT_TIMEOUT (default: 0, no limit)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx" (default: sqlite)
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// URL is the connection string: a file path for sqlite, a postgres:// URL for pgx.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"journal.db"`

	// MaxConns is the maximum number of open connections (default: 20, sqlite uses 1)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the number of idle connections to keep (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds snapshot import settings.
type ImportConfig struct {
	// MaxArchiveSize is the maximum accepted archive size in bytes (default: 200MB)
	MaxArchiveSize int64 `env:"IMPORT_MAX_ARCHIVE_SIZE" default:"209715200"`

	// MaxEntrySize caps the inflated size of one archive entry (default: 256MB)
	MaxEntrySize int64 `env:"IMPORT_MAX_ENTRY_SIZE" default:"268435456"`

	// MaxConcurrent is the maximum number of parallel import runs (default: 3)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the wall-clock budget of one run (default: 5m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"5m"`

	// DecodeAhead is how many tables are decoded ahead of the stage being committed (default: 2)
	DecodeAhead int `env:"IMPORT_DECODE_AHEAD" default:"2"`

	// MaxFailedRows caps the failed rows listed in a result (default: 500)
	MaxFailedRows int `env:"IMPORT_MAX_FAILED_ROWS" default:"500"`

	// HeuristicPhaseMatch lets trades without a phase reference match a phase
	// whose external id equals the trade's account number (default: false)
	HeuristicPhaseMatch bool `env:"IMPORT_HEURISTIC_PHASE_MATCH" default:"false"`
}

// AssetsConfig holds attachment migration settings.
type AssetsConfig struct {
	// Enabled turns attachment migration on (default: true)
	Enabled bool `env:"ASSETS_ENABLED" default:"true"`

	// Workers is the number of concurrent uploads per run (default: 4)
	Workers int `env:"ASSETS_WORKERS" default:"4"`

	// Timeout is the per-attempt upload timeout (default: 10s)
	Timeout time.Duration `env:"ASSETS_TIMEOUT" default:"10s"`

	// RetryMaxElapsed bounds retries of one upload (default: 30s)
	RetryMaxElapsed time.Duration `env:"ASSETS_RETRY_MAX_ELAPSED" default:"30s"`

	// Grace is how long a finished run waits for outstanding uploads (default: 30s)
	Grace time.Duration `env:"ASSETS_GRACE" default:"30s"`
}

// BlobConfig holds the destination blob store settings.
type BlobConfig struct {
	// Root is the directory attachments are written to (default: ./blobs)
	Root string `env:"BLOB_ROOT" default:"./blobs"`

	// BaseURL prefixes stored keys to form public URLs (default: /blobs)
	BaseURL string `env:"BLOB_BASE_URL" default:"/blobs"`
}

// HistoryConfig holds import run history settings.
type HistoryConfig struct {
	// RetentionDays is days to keep import run records (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// Schedule is the cron expression of the purge job (default: daily at 03:00)
	Schedule string `env:"HISTORY_PURGE_SCHEDULE" default:"0 3 * * *"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for the import endpoint (default: 5)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"5"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key authentication (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins is a comma-separated list of allowed origins (default: none)
	CORSOrigins []string `env:"CORS_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TelemetryConfig holds OpenTelemetry metrics settings.
type TelemetryConfig struct {
	// Enabled installs a real meter provider (default: false, no-op)
	Enabled bool `env:"OTEL_ENABLED" default:"false"`

	// Stdout writes metrics to stderr periodically (default: false)
	Stdout bool `env:"OTEL_STDOUT" default:"false"`

	// Endpoint is an OTLP/HTTP collector host:port; empty disables OTLP export
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Interval is the export interval (default: 30s)
	Interval time.Duration `env:"OTEL_EXPORT_INTERVAL" default:"30s"`

	// ServiceName is reported as service.name (default: tradejournal)
	ServiceName string `env:"OTEL_SERVICE_NAME" default:"tradejournal"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
