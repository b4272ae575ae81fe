/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. defaults below
  2. .env file in the working directory (optional)
  3. process environment
  4. command-line flags (applied by cmd/server)
*/
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	Port              string
	DBDriver          string
	DBDSN             string
	RedisAddress      string
	RabbitMQURL       string
	RabbitMQExchange  string
	LogLevel          string
	LogPretty         bool
	ReconcileInterval time.Duration
	MaxRetries        int
	ActorCacheTTL     time.Duration
	CORSOrigins       []string
}

func Default() Config {
	return Config{
		Port:              "8080",
		DBDriver:          "sqlite3",
		DBDSN:             "stock.db",
		RabbitMQExchange:  "stock.events",
		LogLevel:          "info",
		LogPretty:         true,
		ReconcileInterval: time.Hour,
		MaxRetries:        3,
		ActorCacheTTL:     5 * time.Minute,
		CORSOrigins:       []string{"*"},
	}
}

// Load reads .env (a missing file is fine) then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &cfg.Port)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DB_DSN", &cfg.DBDSN)
	str("REDIS_ADDRESS", &cfg.RedisAddress)
	str("RABBITMQ_URL", &cfg.RabbitMQURL)
	str("RABBITMQ_EXCHANGE", &cfg.RabbitMQExchange)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := lookup("LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("LOG_PRETTY: %w", err)
		}
		cfg.LogPretty = b
	}
	if v, ok := lookup("RECONCILE_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
		}
		cfg.ReconcileInterval = d
	}
	if v, ok := lookup("MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("MAX_RETRIES: must be a non-negative integer, got %q", v)
		}
		cfg.MaxRetries = n
	}
	if v, ok := lookup("ACTOR_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ACTOR_CACHE_TTL: %w", err)
		}
		cfg.ActorCacheTTL = d
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "sqlite", "mysql":
	default:
		return fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL: must not be negative")
	}
	return nil
}

// NewLogger builds the root logger: a console writer when pretty, JSON
// otherwise, RFC3339 timestamps either way.
func NewLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
