package app

import (
	"os"
	"strconv"
	"strings"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	AuthSecret        string
	AuthTokenTTLHours int

	SessionRetentionHours int
	SessionEnforceExpiry  bool
	SweepIntervalMinutes  int

	CSRFEnforced    bool
	RateLimitPerMin int
}

func LoadConfig() Config {
	return Config{
		AppEnv:   envOrDefault("APP_ENV", "development"),
		HTTPAddr: envOrDefault("HTTP_ADDR", ":8080"),

		DBDriver:          envOrDefault("DB_DRIVER", "sqlite"),
		DBDSN:             os.Getenv("DB_DSN"),
		DBMaxOpenConns:    intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins: intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		AuthSecret:        envOrDefault("AUTH_SECRET", "dev-secret-change-me"),
		AuthTokenTTLHours: intOrDefault("AUTH_TOKEN_TTL_HOURS", 24),

		SessionRetentionHours: intOrDefault("SESSION_RETENTION_HOURS", 24),
		SessionEnforceExpiry:  boolOrDefault("SESSION_ENFORCE_EXPIRY", false),
		SweepIntervalMinutes:  intOrDefault("SWEEP_INTERVAL_MINUTES", 15),

		CSRFEnforced:    boolOrDefault("CSRF_ENFORCED", false),
		RateLimitPerMin: intOrDefault("RATE_LIMIT_PER_MINUTE", 120),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
