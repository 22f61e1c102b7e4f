package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType    string
	DBPath    string
	DBHost    string
	DBPort    string
	DBName    string
	DBUser    string
	DBPassword string
	DBSSLMode string

	Upstream UpstreamConfig
	Sync     SyncConfig

	CacheTTL time.Duration
}

// UpstreamConfig points at the third-party usage API.
type UpstreamConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// SyncConfig holds the backfill and incremental-sync tunables.
type SyncConfig struct {
	BackfillMaxDays            int // 0 = unbounded
	BackfillEmptyDaysThreshold int
	BackfillAPIDelay           time.Duration
	BackfillStartLagDays       int
	BackfillMonths             int
	RegularSyncDays            int
	RegularSyncMonths          int
	SyncInterval               time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "metersync"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:     getenv("DATABASE_TYPE", "sqlite"),
		DBPath:     getenv("DATABASE_PATH", "metersync.db"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "metersync"),
		DBUser:     getenv("DATABASE_USER", "metersync"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		Upstream: UpstreamConfig{
			BaseURL:  strings.TrimRight(getenv("UPSTREAM_BASE_URL", ""), "/"),
			APIToken: strings.TrimSpace(getenv("UPSTREAM_API_TOKEN", "")),
			Timeout:  time.Duration(getenvInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		},

		Sync: SyncConfig{
			BackfillMaxDays:            getenvInt("BACKFILL_MAX_DAYS", 0),
			BackfillEmptyDaysThreshold: getenvInt("BACKFILL_EMPTY_DAYS_THRESHOLD", 3),
			BackfillAPIDelay:           time.Duration(getenvInt("BACKFILL_API_DELAY", 1)) * time.Second,
			BackfillStartLagDays:       getenvInt("BACKFILL_START_LAG_DAYS", 5),
			BackfillMonths:             getenvInt("BACKFILL_MONTHS", 12),
			RegularSyncDays:            getenvInt("REGULAR_SYNC_DAYS", 7),
			RegularSyncMonths:          getenvInt("REGULAR_SYNC_MONTHS", 2),
			SyncInterval:               time.Duration(getenvInt("SYNC_INTERVAL_MINUTES", 60)) * time.Minute,
		},

		CacheTTL: time.Duration(getenvInt("CACHE_TTL_MINUTES", 15)) * time.Minute,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
