package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DefaultTenantID int64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RateLimit RateLimitConfig

	Bootstrap BootstrapConfig
}

// RateLimitConfig configures redis-backed sync ingest throttling.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SyncTenantRate                float64
	SyncTenantBurst               int
	SyncTerminalRate              float64
	SyncTerminalBurst             int
	SyncConcurrencyLockTTLSeconds int
}

// BootstrapConfig controls local/self-hosted startup fixtures.
type BootstrapConfig struct {
	EnsureDefaultTenant bool
	DemoTerminalCode    string
	DemoTerminalSecret  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:         getenv("APP_SERVICE", "kassa"),
		AppVersion:      getenv("APP_VERSION", "0.1.0"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),
		DefaultTenantID: getenvInt64("DEFAULT_TENANT", 0),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RateLimit: RateLimitConfig{
			Enabled:                       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:                     getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword:                 getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:                       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			SyncTenantRate:                getenvFloat("SYNC_TENANT_RATE", 50),
			SyncTenantBurst:               getenvInt("SYNC_TENANT_BURST", 100),
			SyncTerminalRate:              getenvFloat("SYNC_TERMINAL_RATE", 10),
			SyncTerminalBurst:             getenvInt("SYNC_TERMINAL_BURST", 20),
			SyncConcurrencyLockTTLSeconds: getenvInt("SYNC_CONCURRENCY_LOCK_TTL", 30),
		},

		Bootstrap: BootstrapConfig{
			EnsureDefaultTenant: getenvBool("BOOTSTRAP_DEFAULT_TENANT", true),
			DemoTerminalCode:    getenv("BOOTSTRAP_DEMO_TERMINAL_CODE", ""),
			DemoTerminalSecret:  getenv("BOOTSTRAP_DEMO_TERMINAL_SECRET", ""),
		},
	}
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewSyncPolicyHolder,
	),
)

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
