// Package config loads kernel configuration from the environment,
// 12-factor style, the same way the teacher's infrastructure/config
// package does for its HTTP server settings.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/queue"
)

// Config holds all kernel configuration.
type Config struct {
	Logging   LogConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Response  ResponseConfig
	RateLimit RateLimitConfig
	ErrorsCfg ErrorStoreConfig
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// QueueConfig configures the default per-subsystem queue a newly
// registered subsystem gets unless it overrides it explicitly.
type QueueConfig struct {
	Capacity int                  `envconfig:"QUEUE_CAPACITY" default:"1024"`
	Policy   queue.OverflowPolicy `envconfig:"QUEUE_OVERFLOW_POLICY" default:"reject"`
}

// SchedulerConfig configures the global scheduler's time-slice budget.
type SchedulerConfig struct {
	SliceDuration time.Duration `envconfig:"SCHEDULER_SLICE_DURATION" default:"10ms"`
	MaxMessages   int           `envconfig:"SCHEDULER_MAX_MESSAGES" default:"16"`
	Strategy      string        `envconfig:"SCHEDULER_STRATEGY" default:"fifo"`
}

// ResponseConfig configures one-shot request/response correlation.
type ResponseConfig struct {
	DefaultTimeout time.Duration `envconfig:"RESPONSE_DEFAULT_TIMEOUT" default:"5s"`
	ReapInterval   time.Duration `envconfig:"RESPONSE_REAP_INTERVAL" default:"10ms"`
}

// RateLimitConfig throttles sendProtected per caller principal.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"500"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"1000"`
	Enabled           bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ErrorStoreConfig sizes the error manager's per-subsystem ring buffer.
type ErrorStoreConfig struct {
	RingCapacity int `envconfig:"ERROR_RING_CAPACITY" default:"100"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment, falling back
// to Default on any parse error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default kernel configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{Level: "info", Development: false},
		Queue:   QueueConfig{Capacity: 1024, Policy: "reject"},
		Scheduler: SchedulerConfig{
			SliceDuration: 10 * time.Millisecond,
			MaxMessages:   16,
			Strategy:      "fifo",
		},
		Response: ResponseConfig{
			DefaultTimeout: 5 * time.Second,
			ReapInterval:   10 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 500,
			Burst:             1000,
			Enabled:           true,
		},
		ErrorsCfg: ErrorStoreConfig{RingCapacity: 100},
	}
}
