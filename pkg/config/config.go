package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Schema and policy sources
	SchemaPath  string
	PolicyPath  string
	PolicyWatch bool

	// Backend configuration
	Backends BackendConfig

	// Permission engine
	PermissionCacheSize int

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// TrustBypassHeader honors the system-bypass request header. Only
	// enable when the server sits behind a trusted gateway that strips
	// the header from client traffic.
	TrustBypassHeader bool
}

// BackendConfig holds per-backend connection settings. A backend is
// enabled when its connection setting is non-empty; the in-memory
// backend is always available.
type BackendConfig struct {
	// SQLite
	SQLitePath string

	// PostgreSQL
	PostgresURL      string
	PostgresMaxConns int

	// Redis
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Remote HTTP backend
	RemoteURL     string
	RemoteTimeout time.Duration
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // "text" or "json"
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:              loadServerConfig(),
		SchemaPath:          getEnv("STRATA_SCHEMA_PATH", "schema.yaml"),
		PolicyPath:          getEnv("STRATA_POLICY_PATH", "policies.yaml"),
		PolicyWatch:         getEnvBool("STRATA_POLICY_WATCH", true),
		Backends:            loadBackendConfig(),
		PermissionCacheSize: getEnvInt("STRATA_PERMISSION_CACHE_SIZE", 1024),
		Observability:       loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("STRATA_HOST", "0.0.0.0"),
		Port:            getEnv("STRATA_PORT", "8080"),
		ReadTimeout:     getEnvDuration("STRATA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("STRATA_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("STRATA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("STRATA_SHUTDOWN_TIMEOUT", 30*time.Second),

		TrustBypassHeader: getEnvBool("STRATA_TRUST_BYPASS_HEADER", false),
	}
}

// loadBackendConfig loads backend configuration from environment
func loadBackendConfig() BackendConfig {
	return BackendConfig{
		SQLitePath:       getEnv("STRATA_SQLITE_PATH", ""),
		PostgresURL:      getEnv("STRATA_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("STRATA_POSTGRES_MAX_CONNS", 10),
		RedisAddr:        getEnv("STRATA_REDIS_ADDR", ""),
		RedisPassword:    getEnv("STRATA_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("STRATA_REDIS_DB", 0),
		RedisKeyPrefix:   getEnv("STRATA_REDIS_KEY_PREFIX", "strata"),
		RemoteURL:        getEnv("STRATA_REMOTE_URL", ""),
		RemoteTimeout:    getEnvDuration("STRATA_REMOTE_TIMEOUT", 30*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("STRATA_LOG_LEVEL", "info"),
		LogFormat:      getEnv("STRATA_LOG_FORMAT", "text"),
		MetricsEnabled: getEnvBool("STRATA_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.SchemaPath == "" {
		return fmt.Errorf("schema path is required")
	}
	if c.PolicyPath == "" {
		return fmt.Errorf("policy path is required")
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	if c.Backends.RedisDB < 0 {
		return fmt.Errorf("redis db must be non-negative")
	}
	if c.Backends.PostgresMaxConns < 1 {
		return fmt.Errorf("postgres max conns must be at least 1")
	}
	if c.PermissionCacheSize < 0 {
		return fmt.Errorf("permission cache size must be non-negative")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
