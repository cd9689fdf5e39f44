// Package config defines the configuration of the chargemap gateway.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> *_FILE secret files (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"chargemap/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for connection strings and passwords.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"chargemap-gateway"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server      ServerConfig
	ChargeSites ChargeSitesConfig
	Map         MapConfig
	Session     SessionConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Metrics     MetricsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ChargeSitesConfig points the gateway at the backend charge-site API.
type ChargeSitesConfig struct {
	APIURL          string        `envconfig:"CHARGESITES_API_URL" validate:"required,url"` // e.g., https://api.example.org
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"5s" validate:"gt=0"`
	UserAgent       string        `envconfig:"FETCH_USER_AGENT" default:"chargemap-gateway/1.0"`
	BreakerFailures uint32        `envconfig:"FETCH_BREAKER_FAILURES" default:"5" validate:"min=1"`
}

// MapConfig holds the initial viewport.
type MapConfig struct {
	InitialLatitude  float64 `envconfig:"INITIAL_LATITUDE" default:"45.54698979840522" validate:"latitude"`
	InitialLongitude float64 `envconfig:"INITIAL_LONGITUDE" default:"-122.66310214492715" validate:"longitude"`
	InitialZoom      int     `envconfig:"INITIAL_ZOOM" default:"12" validate:"min=1,max=22"`
}

// SessionConfig tunes the session lifecycle.
type SessionConfig struct {
	PopupCloseDelay time.Duration `envconfig:"POPUP_CLOSE_DELAY" default:"300ms" validate:"gt=0"`
	IdleTimeout     time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SweepInterval   time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m" validate:"gt=0"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// Persistence is disabled when URL is empty.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns int32 `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns int32 `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0,ltefield=MaxConns"`
}

// RedisConfig holds the site cache settings. Caching is disabled when Addr
// is empty.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	Password SecretString  `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"30s" validate:"gt=0"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"chargemap"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// PersistenceEnabled reports whether sessions are stored in Postgres.
func (c *Config) PersistenceEnabled() bool { return !c.Database.URL.IsZero() }

// CacheEnabled reports whether fetches go through Redis.
func (c *Config) CacheEnabled() bool { return c.Redis.Addr != "" }

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a *_FILE secret could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
