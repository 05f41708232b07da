package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	AppEnv      string
	SentryDSN   string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	LoginMaxAttempts  int
	PINMinLength      int
	PINMaxLength      int
	PINDigitsOnly     bool
	PINHashCost       int
	AccessTokenTTL    time.Duration
	GenericAuthErrors bool

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
	RedisURL             string

	CronSecret             string
	AttemptRetention       time.Duration
	CleanupBatchSize       int
	RunMigrationsOnStartup bool
	SeedFile               string
	AdminPIN               string
}

// Load reads the configuration from the process environment. DATABASE_URL and
// JWT_SECRET are required; everything else falls back to a default.
func Load() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		Port:        envOrDefault("PORT", "8080"),
		AppEnv:      envOrDefault("APP_ENV", "development"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),

		LoginMaxAttempts:  envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		PINMinLength:      envIntOrDefault("PIN_MIN_LENGTH", 4),
		PINMaxLength:      envIntOrDefault("PIN_MAX_LENGTH", 6),
		PINDigitsOnly:     EnvBoolOrDefault("PIN_DIGITS_ONLY", true),
		PINHashCost:       envIntOrDefault("PIN_HASH_COST", bcrypt.DefaultCost),
		AccessTokenTTL:    envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		GenericAuthErrors: EnvBoolOrDefault("AUTH_GENERIC_ERRORS", false),

		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),

		CronSecret:             strings.TrimSpace(os.Getenv("CRON_SECRET")),
		AttemptRetention:       envDaysOrDefault("AUTH_ATTEMPT_RETENTION_DAYS", 90),
		CleanupBatchSize:       envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		RunMigrationsOnStartup: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		SeedFile:               strings.TrimSpace(os.Getenv("SEED_FILE")),
		AdminPIN:               strings.TrimSpace(os.Getenv("ADMIN_PIN")),
	}

	if cfg.PINMinLength > cfg.PINMaxLength {
		return Config{}, fmt.Errorf("PIN_MIN_LENGTH (%d) exceeds PIN_MAX_LENGTH (%d)", cfg.PINMinLength, cfg.PINMaxLength)
	}
	if cfg.PINHashCost < bcrypt.MinCost || cfg.PINHashCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("PIN_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
