package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process runtime configuration, read from the
// environment with working local defaults.
type Config struct {
	HTTPAddr  string
	MySQLDSN  string
	RedisAddr string

	PollInterval    time.Duration
	BatchSize       int
	MaxRetries      int
	TaxRate         float64
	ShutdownTimeout time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		MySQLDSN:        getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/lotledger?parseTime=true"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		PollInterval:    getDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		BatchSize:       getInt("OUTBOX_BATCH_SIZE", 10),
		MaxRetries:      getInt("OUTBOX_MAX_RETRIES", 3),
		TaxRate:         getFloat("TAX_RATE", 0.16),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
