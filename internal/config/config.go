package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration values for the service.
type Config struct {
	Environment string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAITimeout time.Duration

	// SweepCron is the schedule for the deadline sweep job.
	SweepCron string

	// Timezone is the IANA zone assignment deadlines are interpreted in.
	Timezone string
}

// LoadConfig reads configuration from environment variables and an optional .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		SweepCron:    getEnv("SWEEP_CRON", "*/5 * * * *"),
		Timezone:     getEnv("TIMEZONE", "Asia/Singapore"),
	}

	timeout, err := time.ParseDuration(getEnv("OPENAI_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPENAI_TIMEOUT: %w", err)
	}
	cfg.OpenAITimeout = timeout

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC+8 when the
// zone database does not recognize the name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("UTC+8", 8*60*60)
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
