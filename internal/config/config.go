// Package config loads application configuration from the environment,
// with .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application settings.
type Config struct {
	// AppEnv: "development" or "production"
	AppEnv string

	// DatabaseURL is the PostgreSQL DSN.
	DatabaseURL string

	// LogLevel: debug, info, warn, error
	LogLevel string

	// Port is the HTTP listen port of the operator API.
	Port string

	// WorkerShards is the number of parallel sync shards.
	WorkerShards int

	// QueueSize is the per-shard worker queue depth.
	QueueSize int

	// FeedBuffer is the size of the channel between feed and worker.
	FeedBuffer int

	// OrphanCron is the schedule of the periodic orphan scan.
	OrphanCron string

	// OrphanCutoffDays bounds how far back the scheduled scan looks.
	OrphanCutoffDays int
}

// Load reads configuration from the environment. A .env file is loaded
// first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnv("PORT", "8080"),
		WorkerShards:     getEnvInt("WORKER_SHARDS", 4),
		QueueSize:        getEnvInt("WORKER_QUEUE_SIZE", 64),
		FeedBuffer:       getEnvInt("FEED_BUFFER", 256),
		OrphanCron:       getEnv("ORPHAN_SCAN_CRON", "0 6 * * *"),
		OrphanCutoffDays: getEnvInt("ORPHAN_CUTOFF_DAYS", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorkerShards <= 0 {
		return nil, fmt.Errorf("WORKER_SHARDS must be positive")
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
