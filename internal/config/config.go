// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
//
// The same Config is shared by the gateway (cmd/server), the Answer Service
// backend (cmd/answerd) and the terminal client (cmd/dataghost); each binary
// reads only the sections it needs.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Answer   AnswerConfig
	Upload   UploadConfig
	Ingest   IngestConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Backend  BackendConfig
	Database DatabaseConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server settings for the gateway.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// AnswerConfig configures the client side of the Answer Service.
type AnswerConfig struct {
	// URL is the Answer Service base URL (default: http://localhost:8000)
	URL string `env:"ANSWER_SERVICE_URL" envAlt:"API_URL" default:"http://localhost:8000"`

	// Timeout bounds a single request including reading the body (default: 60s)
	Timeout time.Duration `env:"ANSWER_TIMEOUT" default:"60s"`
}

// UploadConfig holds CSV upload settings for the gateway.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" envAlt:"MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of files parsed at once (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a parse slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// IngestConfig controls the CSV ingestion engine.
type IngestConfig struct {
	// InvalidUTF8 is "reject" (fail with a parse error) or "replace" (substitute '?')
	InvalidUTF8 string `env:"INGEST_INVALID_UTF8" default:"reject"`
}

// SessionConfig controls the conversation session registry.
type SessionConfig struct {
	// MaxSessions is the maximum number of live sessions (default: 1000)
	MaxSessions int `env:"SESSION_MAX" default:"1000"`

	// IdleTimeout disposes sessions with no activity for this long (default: 30m)
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"30m"`

	// CleanupInterval is how often idle sessions are swept (default: 1m)
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" default:"1m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins is a comma-separated list of allowed browser origins
	CORSOrigins []string `env:"CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// BackendConfig holds settings for the Answer Service backend (cmd/answerd).
type BackendConfig struct {
	// Port is the backend listen port; host comes from SERVER_HOST (default: 8000)
	Port int `env:"BACKEND_PORT" default:"8000"`

	AppName     string `env:"APP_NAME" default:"Data Ghost Backend"`
	Version     string `env:"APP_VERSION" default:"0.1.0"`
	Environment string `env:"APP_ENV" default:"development"`

	// OpenAIAPIKey enables the OpenAI provider; a mock provider answers when empty
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// MaxTokens caps the completion length (default: 1000)
	MaxTokens int `env:"OPENAI_MAX_TOKENS" default:"1000"`

	// Temperature is the sampling temperature (default: 0.7)
	Temperature float64 `env:"OPENAI_TEMPERATURE" default:"0.7"`

	// UploadDir is where uploaded CSV files are stored (default: ./uploads)
	UploadDir string `env:"UPLOAD_DIR" default:"./uploads"`

	// MaxFileSize is the largest accepted upload in bytes (default: 10MB)
	MaxFileSize int64 `env:"BACKEND_MAX_FILE_SIZE" default:"10485760"`
}

// DatabaseConfig holds the optional PostgreSQL connection used by the
// backend's upload file index. An empty URL keeps the index in memory.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// CacheConfig holds the optional Redis answer cache used by the backend.
type CacheConfig struct {
	// RedisURL enables caching when set, e.g. redis://localhost:6379/0
	RedisURL string `env:"REDIS_URL"`

	// TTL is how long a cached answer is kept (default: 1h)
	TTL time.Duration `env:"CACHE_TTL" default:"1h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// BackendAddr returns the backend listen address, sharing the server host.
func (c *Config) BackendAddr() string {
	return (&ServerConfig{Host: c.Server.Host, Port: c.Backend.Port}).Addr()
}
