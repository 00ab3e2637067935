package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RiskConfig carries the thresholds for the booking risk engine. Defaults
// match the product policy; every knob can be tuned via environment.
type RiskConfig struct {
	SubjectPerMinute int // booking attempts per subject per minute
	SubjectPerHour   int // booking attempts per subject per hour
	IPPerMinute      int // booking attempts per client IP per minute
	IPPerHour        int // booking attempts per client IP per hour
	DailyCap         int // confirmed appointments per subject per service date

	CancelEscalateCount int           // cancellations in 7d that force a restriction
	CancelMediumCount   int           // cancellations in 7d that raise level to medium
	NoShowEscalateCount int           // no-shows in 30d that force a restriction
	RestrictionDuration time.Duration // length of an automatic restriction
}

// SecurityConfig carries the IP guard settings.
type SecurityConfig struct {
	GuardEnabled    bool
	TrustedProxies  []string
	RuleCacheTTL    time.Duration
	JWTSecret       string
	TokenLifetime   time.Duration
	LoginMaxFailed  int
	LoginLockPeriod time.Duration
}

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	Risk         RiskConfig
	Security     SecurityConfig
}

// Load reads env vars and falls back to defaults so the server can boot with
// zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("NAILBOOK_ENV", "development"),
		HTTPPort:     getEnv("NAILBOOK_HTTP_PORT", "8080"),
		DatabasePath: getEnv("NAILBOOK_DB_PATH", filepath.Join("data", "nailbook.db")),
		Risk: RiskConfig{
			SubjectPerMinute:    getEnvInt("NAILBOOK_RISK_SUBJECT_PER_MINUTE", 2),
			SubjectPerHour:      getEnvInt("NAILBOOK_RISK_SUBJECT_PER_HOUR", 8),
			IPPerMinute:         getEnvInt("NAILBOOK_RISK_IP_PER_MINUTE", 4),
			IPPerHour:           getEnvInt("NAILBOOK_RISK_IP_PER_HOUR", 20),
			DailyCap:            getEnvInt("NAILBOOK_RISK_DAILY_CAP", 3),
			CancelEscalateCount: getEnvInt("NAILBOOK_RISK_CANCEL_ESCALATE", 3),
			CancelMediumCount:   getEnvInt("NAILBOOK_RISK_CANCEL_MEDIUM", 2),
			NoShowEscalateCount: getEnvInt("NAILBOOK_RISK_NOSHOW_ESCALATE", 2),
			RestrictionDuration: getEnvDuration("NAILBOOK_RISK_RESTRICTION", 24*time.Hour),
		},
		Security: SecurityConfig{
			GuardEnabled:    getEnv("NAILBOOK_IP_GUARD", "enabled") != "disabled",
			TrustedProxies:  splitList(getEnv("NAILBOOK_TRUSTED_PROXIES", "")),
			RuleCacheTTL:    getEnvDuration("NAILBOOK_RULE_CACHE_TTL", 30*time.Second),
			JWTSecret:       getEnv("NAILBOOK_JWT_SECRET", ""),
			TokenLifetime:   getEnvDuration("NAILBOOK_TOKEN_LIFETIME", 24*time.Hour),
			LoginMaxFailed:  getEnvInt("NAILBOOK_LOGIN_MAX_FAILED", 5),
			LoginLockPeriod: getEnvDuration("NAILBOOK_LOGIN_LOCK_PERIOD", 15*time.Minute),
		},
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}

	return fallback
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
