package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/portfolio"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	StorageDriver        string
	JWTSecret            string
	JWTIssuer            string
	JWTTTL               time.Duration
	StartingBalance      decimal.Decimal
	Currency             string
	CORSOrigins          []string
	NotifyWorkers        int
	NotifyQueue          int
	RateLimit            int
	PendingPurgeSchedule string
	LogLevel             string
	LogPretty            bool
}

// Load reads configuration from the environment, after loading a .env file if present
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	var problems []string
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	envInt := func(key string, def int) int {
		v := env(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive integer", key))
			return def
		}
		return n
	}

	cfg := &Config{
		HTTPAddr:             env("HTTP_ADDR", ":5000"),
		DatabaseURL:          env("DATABASE_URL", ""),
		StorageDriver:        strings.ToLower(env("STORAGE_DRIVER", DriverPostgres)),
		JWTSecret:            env("JWT_SECRET", ""),
		JWTIssuer:            env("JWT_ISSUER", "papertrade"),
		Currency:             strings.ToUpper(env("CURRENCY", "INR")),
		NotifyWorkers:        envInt("NOTIFY_WORKERS", 2),
		NotifyQueue:          envInt("NOTIFY_QUEUE", 256),
		RateLimit:            envInt("RATE_LIMIT", 1000),
		PendingPurgeSchedule: env("PENDING_PURGE_SCHEDULE", "@every 5m"),
		LogLevel:             env("LOG_LEVEL", "info"),
	}

	ttl, err := time.ParseDuration(env("JWT_TTL", "168h"))
	if err != nil || ttl <= 0 {
		problems = append(problems, "JWT_TTL must be a positive duration")
	}
	cfg.JWTTTL = ttl

	balance, err := decimal.NewFromString(env("STARTING_BALANCE", "50000"))
	if err == nil {
		balance, err = portfolio.NormalizeAmount(balance)
	}
	if err != nil {
		problems = append(problems, "STARTING_BALANCE must be a non-negative number")
	}
	cfg.StartingBalance = balance

	pretty, err := strconv.ParseBool(env("LOG_PRETTY", "false"))
	if err != nil {
		problems = append(problems, "LOG_PRETTY must be a boolean")
	}
	cfg.LogPretty = pretty

	for _, origin := range strings.Split(env("CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if cfg.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_DRIVER must be %s or %s", DriverPostgres, DriverMemory))
	}

	if len(problems) > 0 {
		return nil, errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return cfg, nil
}
