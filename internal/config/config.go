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
	Server     ServerConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Processing ProcessingConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, no limit)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// StorageConfig selects and configures the file metadata store.
type StorageConfig struct {
	// Backend is json, sqlite or postgres (default: json)
	Backend string `env:"STORE_BACKEND" default:"json"`

	// JSONPath is the metadata file for the json backend
	JSONPath string `env:"METADATA_PATH" default:"data/file_metadata.json"`

	// SQLitePath is the database file for the sqlite backend
	SQLitePath string `env:"STORE_SQLITE_PATH" default:"data/metadata.db"`

	// DatabaseURL is the PostgreSQL connection string for the postgres backend.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`
}

// UploadConfig holds upload handling settings.
type UploadConfig struct {
	// Dir is where uploaded files are stored (default: data/uploads)
	Dir string `env:"UPLOAD_DIR" default:"data/uploads"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`
}

// ProcessingConfig holds date detection and run scheduling settings.
type ProcessingConfig struct {
	// SampleRows is the row prefix read for detection (default: 1000)
	SampleRows int `env:"PROCESS_SAMPLE_ROWS" default:"1000"`

	// SampleSize is the number of non-null values judged per column (default: 100)
	SampleSize int `env:"PROCESS_SAMPLE_SIZE" default:"100"`

	// Threshold is the fraction of sampled values that must parse (default: 0.8)
	Threshold float64 `env:"PROCESS_THRESHOLD" default:"0.8"`

	// MaxConcurrent is the maximum number of runs executing at once (default: 4)
	MaxConcurrent int `env:"PROCESS_MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a run waits for a slot; 0 waits until cancelled (default: 0s)
	MaxWait time.Duration `env:"PROCESS_MAX_WAIT" default:"0s"`

	// Timeout bounds a single run; 0 disables the limit (default: 10m)
	Timeout time.Duration `env:"PROCESS_TIMEOUT" default:"10m"`

	// ReconcileInterval is how often stale records are repaired; 0 runs the
	// startup pass only (default: 5m)
	ReconcileInterval time.Duration `env:"PROCESS_RECONCILE_INTERVAL" default:"5m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
