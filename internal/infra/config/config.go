// Package config holds application configuration loaded from the
// environment, with a .env file as the development-time source.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// HTTP
	ListenAddr string
	CORSOrigin string

	// Logging
	LogLevel string

	// Storage
	StorePath string

	// Device identity presented to WhatsApp
	DeviceName string

	// Connection lifecycle
	ReconnectDelay time.Duration

	// Delivery
	SchedulerInterval  time.Duration
	QueueBatchSize     int
	RetryBackoffBase   time.Duration
	DefaultMaxAttempts int

	// Webhook
	WebhookTimeout time.Duration
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ListenAddr:         ":5000",
		CORSOrigin:         "http://localhost:3000",
		LogLevel:           "INFO",
		StorePath:          "./data",
		DeviceName:         "WhatsApp Dashboard",
		ReconnectDelay:     5 * time.Second,
		SchedulerInterval:  time.Minute,
		QueueBatchSize:     20,
		RetryBackoffBase:   30 * time.Second,
		DefaultMaxAttempts: 5,
		WebhookTimeout:     5 * time.Second,
	}
}

// Load builds configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.CORSOrigin = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("DEVICE_NAME"); v != "" {
		cfg.DeviceName = v
	}
	if v := envSeconds("RECONNECT_DELAY_SECS"); v > 0 {
		cfg.ReconnectDelay = v
	}
	if v := envSeconds("SCHEDULER_INTERVAL_SECS"); v > 0 {
		cfg.SchedulerInterval = v
	}
	if v := envInt("QUEUE_BATCH_SIZE"); v > 0 {
		cfg.QueueBatchSize = v
	}
	if v := envSeconds("RETRY_BACKOFF_BASE_SECS"); v > 0 {
		cfg.RetryBackoffBase = v
	}
	if v := envInt("DEFAULT_MAX_ATTEMPTS"); v > 0 {
		cfg.DefaultMaxAttempts = v
	}
	if v := envSeconds("WEBHOOK_TIMEOUT_SECS"); v > 0 {
		cfg.WebhookTimeout = v
	}

	return cfg
}

// EnsureStorePath creates the storage directories if missing.
func (c *Config) EnsureStorePath() error {
	if err := os.MkdirAll(c.StorePath, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.SessionCachePath(), 0755)
}

// DatabasePath returns the path of the main sqlite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorePath, "dashboard.db")
}

// SessionCachePath returns the directory holding per-session credential
// cache files.
func (c *Config) SessionCachePath() string {
	return filepath.Join(c.StorePath, "sessions")
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envSeconds(key string) time.Duration {
	return time.Duration(envInt(key)) * time.Second
}
