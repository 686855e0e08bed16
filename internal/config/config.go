package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Mail      MailConfig      `mapstructure:"mail"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int      `mapstructure:"port"                     validate:"required,gt=0,lt=65536"`
	LogLevel               string   `mapstructure:"log_level"                validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
	CORSAllowedOrigins     []string `mapstructure:"cors_allowed_origins"`
}

// ShutdownTimeout returns the graceful shutdown window.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost"            validate:"gte=4,lte=31"`
}

// TokenLifetime returns how long issued access tokens stay valid.
func (c AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// CacheConfig controls the Redis-backed task list cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RedisURL   string `mapstructure:"redis_url"   validate:"required_if=Enabled true,omitempty,url"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"gt=0"`
}

// TTL returns the lifetime of a cached entry.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// MailConfig selects and configures the outgoing mail transport.
type MailConfig struct {
	Driver      string `mapstructure:"driver"       validate:"required,oneof=smtp log"`
	Host        string `mapstructure:"host"         validate:"required_if=Driver smtp"`
	Port        int    `mapstructure:"port"         validate:"gte=0,lt=65536"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address" validate:"required,email"`
	FromName    string `mapstructure:"from_name"`
}

// JobsConfig controls background job execution.
type JobsConfig struct {
	Driver              string `mapstructure:"driver"                validate:"required,oneof=sync database"`
	WorkerCount         int    `mapstructure:"worker_count"          validate:"gt=0"`
	QueueSize           int    `mapstructure:"queue_size"            validate:"gt=0"`
	MaxAttempts         int    `mapstructure:"max_attempts"          validate:"gt=0"`
	RetryBackoffSeconds int    `mapstructure:"retry_backoff_seconds" validate:"gte=0"`
	StuckJobAgeMinutes  int    `mapstructure:"stuck_job_age_minutes" validate:"gt=0"`
}

// RetryBackoff returns the base delay between job attempts.
func (c JobsConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// StuckJobAge returns how long a job may stay in processing before it is reset.
func (c JobsConfig) StuckJobAge() time.Duration {
	return time.Duration(c.StuckJobAgeMinutes) * time.Minute
}

// BroadcastConfig controls the websocket event hub.
type BroadcastConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
