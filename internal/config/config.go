package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	CORSAllowedOrigins []string

	// ClinicTimezone is the IANA zone all slot arithmetic happens in.
	ClinicTimezone string

	// SameDayLeadTime is the minimum notice required before a same-day slot.
	SameDayLeadTime time.Duration

	// SlotDebounce delays rapid-fire slot recomputation triggers.
	SlotDebounce time.Duration

	// BlockCacheTTL bounds staleness of the month-level block calendar cache.
	BlockCacheTTL time.Duration

	// AutoConfirmWindow is the horizon inside which new bookings skip pending.
	AutoConfirmWindow time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ClinicTimezone:     getEnv("CLINIC_TZ", "America/Argentina/Buenos_Aires"),
		SameDayLeadTime:    getEnvAsDuration("SAME_DAY_LEAD_TIME", 2*time.Hour),
		SlotDebounce:       getEnvAsDuration("SLOT_DEBOUNCE", 120*time.Millisecond),
		BlockCacheTTL:      getEnvAsDuration("BLOCK_CACHE_TTL", 10*time.Minute),
		AutoConfirmWindow:  getEnvAsDuration("AUTO_CONFIRM_WINDOW", 24*time.Hour),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
