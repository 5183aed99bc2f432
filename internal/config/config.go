package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const devJWTSecret = "manru-dev-secret-change-in-production"

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	AppEnv         string
	LogLevel       string
	AllowedOrigins []string

	DatabaseDriver string
	DatabasePath   string // SQLite file
	DatabaseURL    string // PostgreSQL DSN

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	EventRetention     time.Duration
	EventPruneSchedule string

	// Client-side settings used by the session commands.
	APIBaseURL            string
	SessionPath           string
	LegacyProfileRecovery bool
}

// IsProduction reports whether the process runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesDevSecret reports whether the built-in development signing key is in use.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

// Load loads configuration from environment variables (and an optional .env
// file) or sets defaults.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
	}

	tokenTTL, err := getDuration("TOKEN_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	if tokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", tokenTTL)
	}

	retention, err := getDuration("EVENT_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost)))
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}

	legacyRecovery, err := strconv.ParseBool(getEnv("LEGACY_PROFILE_RECOVERY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEGACY_PROFILE_RECOVERY: %w", err)
	}

	cfg := &Config{
		ServerPort:            port,
		AppEnv:                getEnv("APP_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		DatabaseDriver:        strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabasePath:          getEnv("DATABASE_PATH", "./manru.db"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		TokenTTL:              tokenTTL,
		BcryptCost:            cost,
		EventRetention:        retention,
		EventPruneSchedule:    getEnv("EVENT_PRUNE_SCHEDULE", "0 3 * * *"),
		APIBaseURL:            strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080/api"), "/"),
		SessionPath:           getEnv("SESSION_PATH", "./manru-session.db"),
		LegacyProfileRecovery: legacyRecovery,
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DatabaseDriver)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = devJWTSecret
	}

	if _, err := cron.ParseStandard(cfg.EventPruneSchedule); err != nil {
		return nil, fmt.Errorf("invalid EVENT_PRUNE_SCHEDULE %q: %w", cfg.EventPruneSchedule, err)
	}

	return cfg, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
