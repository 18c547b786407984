package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays values from AUTHGATE_* environment variables.
//
// Supported variables:
//
//	AUTHGATE_ADDR                 HTTP bind address (e.g., ":8080")
//	AUTHGATE_PG_DSN               PostgreSQL DSN
//	AUTHGATE_SECRET               HMAC secret for session tokens
//	AUTHGATE_ACCESS_TTL_MINUTES   default session lifetime, minutes
//	AUTHGATE_REMEMBER_TTL_DAYS    remember-me session lifetime, days
//	AUTHGATE_RESET_TTL_MINUTES    reset-token lifetime, minutes
//	AUTHGATE_ENV                  "development" or "production"
//	AUTHGATE_NOTIFIER_API_KEY     reset-email delivery API key
//	AUTHGATE_NOTIFIER_BASE_URL    delivery API endpoint
//	AUTHGATE_NOTIFIER_FROM        sender shown on reset emails
func parseEnv(cfg *Config) {
	setString(&cfg.Addr, "AUTHGATE_ADDR")
	setString(&cfg.DatabaseDSN, "AUTHGATE_PG_DSN")
	setString(&cfg.SecretKey, "AUTHGATE_SECRET")
	setDuration(&cfg.AccessTokenTTL, "AUTHGATE_ACCESS_TTL_MINUTES", time.Minute)
	setDuration(&cfg.RememberMeTTL, "AUTHGATE_REMEMBER_TTL_DAYS", 24*time.Hour)
	setDuration(&cfg.ResetTokenTTL, "AUTHGATE_RESET_TTL_MINUTES", time.Minute)
	setString(&cfg.Environment, "AUTHGATE_ENV")
	setString(&cfg.NotifierAPIKey, "AUTHGATE_NOTIFIER_API_KEY")
	setString(&cfg.NotifierBaseURL, "AUTHGATE_NOTIFIER_BASE_URL")
	setString(&cfg.NotifierFrom, "AUTHGATE_NOTIFIER_FROM")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string, unit time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return
	}
	*dst = time.Duration(n) * unit
}
