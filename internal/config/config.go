// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// PushURL is the external push-notification endpoint. Empty disables
	// push fallback.
	PushURL      string
	PushChannels []string
	PushInflight int64

	// WaitPerSlot is the estimated handling time per waiting-queue position
	// used for wait-time broadcasts.
	WaitPerSlot        time.Duration
	QueueSweepInterval time.Duration

	// ClosedSessionTTL is how long closed sessions stay in memory before the
	// retention worker flushes and evicts them.
	ClosedSessionTTL  time.Duration
	RetentionInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "./data/support.db"),
		PushURL:            getEnv("PUSH_URL", ""),
		PushChannels:       splitList(getEnv("PUSH_CHANNELS", "app")),
		PushInflight:       int64(getEnvInt("PUSH_MAX_INFLIGHT", 32)),
		WaitPerSlot:        getEnvDuration("WAIT_PER_SLOT", 3*time.Minute),
		QueueSweepInterval: getEnvDuration("QUEUE_SWEEP_INTERVAL", 30*time.Second),
		ClosedSessionTTL:   getEnvDuration("CLOSED_SESSION_TTL", time.Hour),
		RetentionInterval:  getEnvDuration("RETENTION_INTERVAL", 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.WaitPerSlot <= 0 {
		return fmt.Errorf("WAIT_PER_SLOT must be > 0")
	}
	if c.QueueSweepInterval <= 0 {
		return fmt.Errorf("QUEUE_SWEEP_INTERVAL must be > 0")
	}
	if c.ClosedSessionTTL <= 0 {
		return fmt.Errorf("CLOSED_SESSION_TTL must be > 0")
	}
	if c.RetentionInterval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0")
	}
	if c.PushInflight <= 0 {
		return fmt.Errorf("PUSH_MAX_INFLIGHT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
