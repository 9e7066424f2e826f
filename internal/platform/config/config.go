package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	SessionSecret string `env:"SESSION_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	EventTopic        string `env:"EVENT_TOPIC" default:"grove:events"`
	SessionBufferSize int    `env:"SESSION_BUFFER_SIZE" default:"10"`
	MaxStreamSessions int    `env:"MAX_STREAM_SESSIONS" default:"10000"`
	DeliveryWorkers   int    `env:"DELIVERY_WORKERS" default:"64"`
	MaxStreamsPerUser int    `env:"MAX_STREAMS_PER_USER" default:"5"`

	PruneInterval    time.Duration `env:"PRUNE_INTERVAL" default:"10s"`
	KeepAliveTimeout time.Duration `env:"KEEPALIVE_TIMEOUT" default:"60s"`
	LookupTimeout    time.Duration `env:"LOOKUP_TIMEOUT" default:"2s"`

	StreamRateLimit float64 `env:"STREAM_RATE_LIMIT" default:"1"`
	StreamRateBurst int     `env:"STREAM_RATE_BURST" default:"5"`

	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"EVENT_TOPIC", cfg.EventTopic},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"SESSION_BUFFER_SIZE", cfg.SessionBufferSize},
		{"MAX_STREAM_SESSIONS", cfg.MaxStreamSessions},
		{"DELIVERY_WORKERS", cfg.DeliveryWorkers},
		{"MAX_STREAMS_PER_USER", cfg.MaxStreamsPerUser},
		{"STREAM_RATE_BURST", cfg.StreamRateBurst},
	}
	for _, p := range positiveInts {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"PRUNE_INTERVAL", cfg.PruneInterval},
		{"KEEPALIVE_TIMEOUT", cfg.KeepAliveTimeout},
		{"LOOKUP_TIMEOUT", cfg.LookupTimeout},
	}
	for _, p := range positiveDurations {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.value)
		}
	}

	if cfg.StreamRateLimit <= 0 {
		return fmt.Errorf("STREAM_RATE_LIMIT must be positive, got %g", cfg.StreamRateLimit)
	}

	if cfg.IsProduction() {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
