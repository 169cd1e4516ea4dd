package config

import (
	"os"
	"testing"
	"time"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	// Save current env and restore after test
	originalEnv := map[string]string{
		"STRATA_HOST":                os.Getenv("STRATA_HOST"),
		"STRATA_PORT":                os.Getenv("STRATA_PORT"),
		"STRATA_READ_TIMEOUT":        os.Getenv("STRATA_READ_TIMEOUT"),
		"STRATA_WRITE_TIMEOUT":       os.Getenv("STRATA_WRITE_TIMEOUT"),
		"STRATA_IDLE_TIMEOUT":        os.Getenv("STRATA_IDLE_TIMEOUT"),
		"STRATA_SHUTDOWN_TIMEOUT":    os.Getenv("STRATA_SHUTDOWN_TIMEOUT"),
		"STRATA_TRUST_BYPASS_HEADER": os.Getenv("STRATA_TRUST_BYPASS_HEADER"),
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ServerConfig{
				Host:            "0.0.0.0",
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"STRATA_HOST":                "localhost",
				"STRATA_PORT":                "3000",
				"STRATA_READ_TIMEOUT":        "30s",
				"STRATA_WRITE_TIMEOUT":       "30s",
				"STRATA_IDLE_TIMEOUT":        "120s",
				"STRATA_SHUTDOWN_TIMEOUT":    "60s",
				"STRATA_TRUST_BYPASS_HEADER": "true",
			},
			want: ServerConfig{
				Host:              "localhost",
				Port:              "3000",
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
				ShutdownTimeout:   60 * time.Second,
				TrustBypassHeader: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for k := range originalEnv {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadServerConfig()
			if got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestLoadBackendConfig tests the loadBackendConfig function
func TestLoadBackendConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"STRATA_SQLITE_PATH",
		"STRATA_POSTGRES_URL",
		"STRATA_POSTGRES_MAX_CONNS",
		"STRATA_REDIS_ADDR",
		"STRATA_REDIS_PASSWORD",
		"STRATA_REDIS_DB",
		"STRATA_REDIS_KEY_PREFIX",
		"STRATA_REMOTE_URL",
		"STRATA_REMOTE_TIMEOUT",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads default config", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadBackendConfig()
		if cfg.SQLitePath != "" {
			t.Errorf("SQLitePath = %v, want empty", cfg.SQLitePath)
		}
		if cfg.PostgresMaxConns != 10 {
			t.Errorf("PostgresMaxConns = %v, want 10", cfg.PostgresMaxConns)
		}
		if cfg.RedisKeyPrefix != "strata" {
			t.Errorf("RedisKeyPrefix = %v, want strata", cfg.RedisKeyPrefix)
		}
		if cfg.RemoteTimeout != 30*time.Second {
			t.Errorf("RemoteTimeout = %v, want 30s", cfg.RemoteTimeout)
		}
	})

	t.Run("loads postgres config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("STRATA_POSTGRES_URL", "postgres://localhost/db")
		os.Setenv("STRATA_POSTGRES_MAX_CONNS", "50")

		cfg := loadBackendConfig()
		if cfg.PostgresURL != "postgres://localhost/db" {
			t.Errorf("PostgresURL = %v, want postgres://localhost/db", cfg.PostgresURL)
		}
		if cfg.PostgresMaxConns != 50 {
			t.Errorf("PostgresMaxConns = %v, want 50", cfg.PostgresMaxConns)
		}
	})

	t.Run("loads redis config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("STRATA_REDIS_ADDR", "localhost:6379")
		os.Setenv("STRATA_REDIS_PASSWORD", "password")
		os.Setenv("STRATA_REDIS_DB", "1")
		os.Setenv("STRATA_REDIS_KEY_PREFIX", "dataplane")

		cfg := loadBackendConfig()
		if cfg.RedisAddr != "localhost:6379" {
			t.Errorf("RedisAddr = %v, want localhost:6379", cfg.RedisAddr)
		}
		if cfg.RedisPassword != "password" {
			t.Errorf("RedisPassword = %v, want password", cfg.RedisPassword)
		}
		if cfg.RedisDB != 1 {
			t.Errorf("RedisDB = %v, want 1", cfg.RedisDB)
		}
		if cfg.RedisKeyPrefix != "dataplane" {
			t.Errorf("RedisKeyPrefix = %v, want dataplane", cfg.RedisKeyPrefix)
		}
	})

	t.Run("loads remote config from env", func(t *testing.T) {
		// Clear all env vars
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("STRATA_REMOTE_URL", "http://upstream:8080")
		os.Setenv("STRATA_REMOTE_TIMEOUT", "5s")

		cfg := loadBackendConfig()
		if cfg.RemoteURL != "http://upstream:8080" {
			t.Errorf("RemoteURL = %v, want http://upstream:8080", cfg.RemoteURL)
		}
		if cfg.RemoteTimeout != 5*time.Second {
			t.Errorf("RemoteTimeout = %v, want 5s", cfg.RemoteTimeout)
		}
	})
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:              ServerConfig{Port: "8080"},
			SchemaPath:          "schema.yaml",
			PolicyPath:          "policies.yaml",
			PermissionCacheSize: 1024,
			Backends: BackendConfig{
				PostgresMaxConns: 10,
			},
			Observability: ObservabilityConfig{
				LogLevel:  "info",
				LogFormat: "text",
			},
		}
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("missing server port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing schema path", func(t *testing.T) {
		cfg := valid()
		cfg.SchemaPath = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "schema path is required" {
			t.Errorf("Validate() error = %v, want 'schema path is required'", err.Error())
		}
	})

	t.Run("missing policy path", func(t *testing.T) {
		cfg := valid()
		cfg.PolicyPath = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "policy path is required" {
			t.Errorf("Validate() error = %v, want 'policy path is required'", err.Error())
		}
	})

	t.Run("invalid log format", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.LogFormat = "xml"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("json log format accepted", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.LogFormat = "json"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("negative redis db", func(t *testing.T) {
		cfg := valid()
		cfg.Backends.RedisDB = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("zero postgres max conns", func(t *testing.T) {
		cfg := valid()
		cfg.Backends.PostgresMaxConns = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("negative permission cache size", func(t *testing.T) {
		cfg := valid()
		cfg.PermissionCacheSize = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"STRATA_PORT",
		"STRATA_SCHEMA_PATH",
		"STRATA_POLICY_PATH",
		"STRATA_LOG_FORMAT",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"STRATA_PORT":        "8080",
				"STRATA_SCHEMA_PATH": "/etc/strata/schema.yaml",
				"STRATA_POLICY_PATH": "/etc/strata/policies.yaml",
			},
			wantErr: false,
		},
		{
			name: "invalid config - bad log format",
			env: map[string]string{
				"STRATA_LOG_FORMAT": "xml",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
