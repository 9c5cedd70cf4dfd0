package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL           string
	CurrencyBeaconURL     string
	CurrencyBeaconAPIKey  string
	BackfillConcurrency   int
	ProviderTimeout       time.Duration
	BaseCurrency          string
	DailyWorkerInterval   time.Duration
	HTTPPort              string
	AdminAPIKey           string
	GoogleSheetsID        string
	GoogleCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:           envOrDefaultWarn("DATABASE_URL", ""),
		CurrencyBeaconURL:     envOrDefault("CURRENCY_BEACON_URL", "https://api.currencybeacon.com/v1/historical"),
		CurrencyBeaconAPIKey:  envOrDefault("CURRENCY_BEACON_API_KEY", ""),
		BackfillConcurrency:   envOrDefaultPositiveInt("BACKFILL_CONCURRENCY", 10),
		ProviderTimeout:       envOrDefaultDuration("PROVIDER_TIMEOUT", 15*time.Second),
		BaseCurrency:          envOrDefault("BASE_CURRENCY", "EUR"),
		DailyWorkerInterval:   envOrDefaultDuration("DAILY_WORKER_INTERVAL", 24*time.Hour),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           envOrDefault("ADMIN_API_KEY", ""),
		GoogleSheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

// envOrDefaultPositiveInt rejects zero and negative values, which would stall a semaphore.
func envOrDefaultPositiveInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("invalid positive integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
