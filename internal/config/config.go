// Package config loads the dashboard configuration from environment
// variables. Defaults cover a local single-user setup; Validate reports every
// problem at once so a misconfigured deployment fails on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Storage backends.
const (
	BackendFS       = "fs"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Upload    UploadConfig
	Dashboard DashboardConfig
	QA        QAConfig
	Security  SecurityConfig
	Rate      RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8501)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8501"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight questions.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests. It must leave
	// room for QA_TIMEOUT.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"75s"`
}

// StorageConfig selects where uploaded files live.
type StorageConfig struct {
	// Backend is fs or postgres (default: fs)
	Backend string `env:"STORAGE_BACKEND" default:"fs"`

	// Dir is the upload directory of the fs backend.
	Dir string `env:"STORAGE_DIR" default:"uploaded_excels"`

	// DatabaseURL is required by the postgres backend.
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`
}

// DashboardConfig tunes the data views.
type DashboardConfig struct {
	// FilterMaxDistinct is the distinct-value count from which a column gets
	// no filter picker (default: 50)
	FilterMaxDistinct int `env:"DASHBOARD_FILTER_MAX_DISTINCT" default:"50"`

	// PieSort orders pie slices by value, largest first (default: true)
	PieSort bool `env:"DASHBOARD_PIE_SORT" default:"true"`

	PreviewRows int `env:"DASHBOARD_PREVIEW_ROWS" default:"100"`

	// LenientNumbers reads "$1,200" and "(5)" as numbers (default: false)
	LenientNumbers bool `env:"DASHBOARD_LENIENT_NUMBERS" default:"false"`

	// ChartAssetsHost serves the echarts scripts used by chart pages.
	ChartAssetsHost string `env:"CHART_ASSETS_HOST" default:"https://go-echarts.github.io/go-echarts-assets/assets/"`
}

// QAConfig holds the question-answering backend settings. Questions are
// disabled when APIKey is empty.
type QAConfig struct {
	BaseURL string `env:"QA_BASE_URL" default:"https://openrouter.ai/api/v1"`
	APIKey  string `env:"QA_API_KEY" envAlt:"OPENROUTER_API_KEY"`
	Model   string `env:"QA_MODEL" default:"meta-llama/llama-3.1-8b-instruct"`

	Timeout    time.Duration `env:"QA_TIMEOUT" default:"60s"`
	MaxTokens  int           `env:"QA_MAX_TOKENS" default:"0"`
	SampleRows int           `env:"QA_SAMPLE_ROWS" default:"20"`

	// MaxConcurrent bounds in-flight questions server wide (default: 4)
	MaxConcurrent int `env:"QA_MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a question waits for a slot (default: 5s)
	MaxWait time.Duration `env:"QA_MAX_WAIT" default:"5s"`
}

// SecurityConfig holds admin access and header settings.
type SecurityConfig struct {
	// AdminPasswordHash is the bcrypt hash of the admin secret.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	// AdminPassword is a plaintext secret hashed at startup. For development.
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// SessionKey signs admin cookies. A random key is generated when empty,
	// which logs admins out on restart.
	SessionKey string `env:"SESSION_KEY"`

	SessionTTL time.Duration `env:"SESSION_TTL" default:"12h"`

	// SecureCookies sets the Secure flag on the admin cookie.
	SecureCookies bool `env:"SECURE_COOKIES" default:"false"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// AdminConfigured reports whether any admin secret is set.
func (c *SecurityConfig) AdminConfigured() bool {
	return c.AdminPasswordHash != "" || c.AdminPassword != ""
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// QuestionsPerMinute limits question submissions per IP (default: 10)
	QuestionsPerMinute int `env:"RATE_LIMIT_QUESTIONS" default:"10"`
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
