// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	STRATA_HOST="0.0.0.0"
//	STRATA_PORT="8080"
//	STRATA_READ_TIMEOUT="15s"
//	STRATA_WRITE_TIMEOUT="15s"
//	STRATA_SHUTDOWN_TIMEOUT="30s"
//
// Schema and policy sources:
//
//	STRATA_SCHEMA_PATH="/etc/strata/schema.yaml"
//	STRATA_POLICY_PATH="/etc/strata/policies.yaml"
//	STRATA_POLICY_WATCH="true"
//
// Backend settings (a backend is enabled when its connection setting is set;
// the in-memory backend is always available):
//
//	STRATA_SQLITE_PATH="/var/strata/data.db"
//	STRATA_POSTGRES_URL="postgres://localhost/strata"
//	STRATA_POSTGRES_MAX_CONNS="10"
//	STRATA_REDIS_ADDR="localhost:6379"
//	STRATA_REDIS_KEY_PREFIX="strata"
//	STRATA_REMOTE_URL="http://upstream:8080"
//
// Observability settings:
//
//	STRATA_LOG_LEVEL="info"  # debug, info, warn, error
//	STRATA_LOG_FORMAT="text" # text, json
//	STRATA_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Policies: %s\n", cfg.PolicyPath)
//
// # Related Packages
//
//   - pkg/policy: Loads the file named by STRATA_POLICY_PATH
//   - pkg/schema: Loads the file named by STRATA_SCHEMA_PATH
package config
