package config

import (
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP
	ListenAddr  string
	MetricsAddr string

	// Storage
	SQLitePath string

	// Redis bar cache + sync pub/sub. Empty RedisAddr disables both and the
	// server falls back to direct SQLite reads.
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// Query defaults
	DefaultSymbol string

	// Sync worker
	SyncSymbols  string // comma-separated, e.g. "AAPL,MSFT,GOOG"
	SyncSchedule string // cron spec, default: weekday evenings after close
	SyncYears    int    // initial backfill depth for a new symbol
	WebhookURL   string // alert delivery; empty falls back to log alerts

	// Market data provider credentials (sync worker only)
	ProviderRootURL    string
	ProviderAPIKey     string
	ProviderClientCode string
	ProviderPassword   string
	ProviderTOTPSecret string
}

// Load reads configuration from environment variables with sensible defaults.
// Provider credentials are left optional here; LoadSync enforces them.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		SQLitePath: getEnv("SQLITE_PATH", "data/bars.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),

		DefaultSymbol: getEnv("DEFAULT_SYMBOL", "AAPL"),

		SyncSymbols: getEnv("SYNC_SYMBOLS", "AAPL"),
		// 17:30 ET on weekdays, after the close
		SyncSchedule: getEnv("SYNC_SCHEDULE", "30 17 * * 1-5"),
		SyncYears:    5,
		WebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),

		ProviderRootURL:    getEnv("PROVIDER_ROOT_URL", ""),
		ProviderAPIKey:     getEnv("PROVIDER_API_KEY", ""),
		ProviderClientCode: getEnv("PROVIDER_CLIENT_CODE", ""),
		ProviderPassword:   getEnv("PROVIDER_PASSWORD", ""),
		ProviderTOTPSecret: getEnv("PROVIDER_TOTP_SECRET", ""),
	}
}

// LoadSync loads configuration for the sync worker, where the provider
// credentials are mandatory.
func LoadSync() *Config {
	c := Load()
	c.ProviderRootURL = mustEnv("PROVIDER_ROOT_URL")
	c.ProviderAPIKey = mustEnv("PROVIDER_API_KEY")
	c.ProviderClientCode = mustEnv("PROVIDER_CLIENT_CODE")
	c.ProviderPassword = mustEnv("PROVIDER_PASSWORD")
	c.ProviderTOTPSecret = mustEnv("PROVIDER_TOTP_SECRET")
	return c
}

// ParseSyncSymbols parses the SyncSymbols string into canonical symbols.
func (c *Config) ParseSyncSymbols() []string {
	parts := strings.Split(c.SyncSymbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		symbols = append(symbols, p)
	}
	return symbols
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] skipping invalid duration for %s: %q", key, v)
		return fallback
	}
	return d
}
