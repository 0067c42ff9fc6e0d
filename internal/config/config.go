// Package config loads warehouse service settings from the environment.
// Values are validated once at startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Import     ImportConfig
	Geocode    GeocodeConfig
	Permission PermissionConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to non-streaming API routes (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// DATABASE_URL and DB_URL are both accepted.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MigrateOnStart applies the embedded schema before serving (default: true)
	MigrateOnStart bool `env:"DB_MIGRATE_ON_START" default:"true"`
}

// ImportConfig holds bulk import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted upload in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// MaxRows caps the number of rows accepted by one execute request (default: 10000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"10000"`

	// MaxConcurrent is the number of import runs allowed at once (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a run waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run (default: 15m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"15m"`

	// RunRetention is how long finished async runs stay queryable (default: 30m)
	RunRetention time.Duration `env:"IMPORT_RUN_RETENTION" default:"30m"`

	// ProgressPerRow is the estimated processing time of one row (default: 500ms)
	ProgressPerRow time.Duration `env:"IMPORT_PROGRESS_PER_ROW" default:"500ms"`

	// ProgressFloor is the minimum estimated run duration (default: 3s)
	ProgressFloor time.Duration `env:"IMPORT_PROGRESS_FLOOR" default:"3s"`

	// ProgressInterval is how often the estimate advances (default: 500ms)
	ProgressInterval time.Duration `env:"IMPORT_PROGRESS_INTERVAL" default:"500ms"`

	// ProgressCeiling is the highest percentage shown before completion (default: 90)
	ProgressCeiling int `env:"IMPORT_PROGRESS_CEILING" default:"90"`
}

// GeocodeConfig holds settings for the address geocoding collaborator.
// An empty APIKey disables geocoding.
type GeocodeConfig struct {
	APIKey  string        `env:"GEOCODE_API_KEY"`
	BaseURL string        `env:"GEOCODE_BASE_URL" default:"https://maps.googleapis.com/maps/api/geocode/json"`
	Timeout time.Duration `env:"GEOCODE_TIMEOUT" default:"5s"`

	// RatePerSecond throttles outbound lookups (default: 10)
	RatePerSecond int `env:"GEOCODE_RATE_PER_SECOND" default:"10"`

	// BreakerFailures is the consecutive failure count that opens the circuit (default: 5)
	BreakerFailures int `env:"GEOCODE_BREAKER_FAILURES" default:"5"`

	// BreakerTimeout is how long the circuit stays open (default: 30s)
	BreakerTimeout time.Duration `env:"GEOCODE_BREAKER_TIMEOUT" default:"30s"`
}

// PermissionConfig holds settings for grants made to imported clients.
type PermissionConfig struct {
	// DefaultAppID is the application every imported client is granted
	DefaultAppID string `env:"IMPORT_DEFAULT_APP_ID" default:"warehouse"`

	// ClientRole is the user role assigned to imported clients (default: client)
	ClientRole string `env:"IMPORT_CLIENT_ROLE" default:"client"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import write endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey turns on X-API-Key authentication for /api routes
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
