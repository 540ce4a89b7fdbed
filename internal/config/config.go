// Package config provides centralized configuration management for the
// service. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Zep      ZepConfig
	Onboard  OnboardConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response. A
	// commit request spans a whole sequential batch including backoff, so
	// the default is generous.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"15m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ZepConfig holds the remote space API settings.
type ZepConfig struct {
	// APIURL is the base URL for the space API (default: https://api.zep.us/v1)
	APIURL string `env:"ZEP_API_URL" default:"https://api.zep.us/v1"`

	// APIKey authenticates against the space API (required)
	APIKey string `env:"ZEP_API_KEY" required:"true"`
}

// OnboardConfig holds bulk onboarding pipeline settings.
type OnboardConfig struct {
	// EmailDomain is the internal domain for generated student addresses
	// (default: neulbom.internal)
	EmailDomain string `env:"ONBOARD_EMAIL_DOMAIN" default:"neulbom.internal"`

	// MaxBatchSize caps roster rows per upload (default: 500)
	MaxBatchSize int `env:"ONBOARD_MAX_BATCH_SIZE" default:"500"`

	// MaxFileSize is the maximum roster upload size in bytes (default: 10MB)
	MaxFileSize int64 `env:"ONBOARD_MAX_FILE_SIZE" default:"10485760"`

	// MaxAttempts is the remote-call attempt budget per student (default: 3)
	MaxAttempts int `env:"ONBOARD_MAX_ATTEMPTS" default:"3"`

	// BackoffBase is the wait before the second attempt; doubled for each
	// further attempt (default: 1s)
	BackoffBase time.Duration `env:"ONBOARD_BACKOFF_BASE" default:"1s"`
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
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
