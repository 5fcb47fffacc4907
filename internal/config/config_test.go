package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/queue"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 1024, cfg.Queue.Capacity)
	assert.Equal(t, queue.Reject, cfg.Queue.Policy)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.SliceDuration)
	assert.Equal(t, 16, cfg.Scheduler.MaxMessages)
	assert.Equal(t, "fifo", cfg.Scheduler.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Response.DefaultTimeout)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.ErrorsCfg.RingCapacity)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()
	require.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	vars := map[string]string{
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
		"QUEUE_CAPACITY":           "2048",
		"QUEUE_OVERFLOW_POLICY":    "drop-oldest",
		"SCHEDULER_SLICE_DURATION": "20ms",
		"SCHEDULER_MAX_MESSAGES":   "32",
		"SCHEDULER_STRATEGY":       "priority",
		"RESPONSE_DEFAULT_TIMEOUT": "1s",
		"RESPONSE_REAP_INTERVAL":   "5ms",
		"RATE_LIMIT_RPS":           "100",
		"RATE_LIMIT_BURST":         "200",
		"RATE_LIMIT_ENABLED":       "false",
		"ERROR_RING_CAPACITY":      "50",
	}
	for k, v := range vars {
		require.NoError(t, os.Setenv(k, v))
	}
	defer func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 2048, cfg.Queue.Capacity)
	assert.Equal(t, queue.DropOldest, cfg.Queue.Policy)
	assert.Equal(t, 20*time.Millisecond, cfg.Scheduler.SliceDuration)
	assert.Equal(t, 32, cfg.Scheduler.MaxMessages)
	assert.Equal(t, "priority", cfg.Scheduler.Strategy)
	assert.Equal(t, time.Second, cfg.Response.DefaultTimeout)
	assert.Equal(t, 5*time.Millisecond, cfg.Response.ReapInterval)
	assert.Equal(t, 100.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.ErrorsCfg.RingCapacity)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	require.NoError(t, os.Setenv("LOG_LEVEL", "warn"))
	defer os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 1024, cfg.Queue.Capacity)
	assert.Equal(t, "fifo", cfg.Scheduler.Strategy)
}

func TestQueueConfig(t *testing.T) {
	require.NoError(t, os.Setenv("QUEUE_CAPACITY", "64"))
	defer os.Unsetenv("QUEUE_CAPACITY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Queue.Capacity)
}

func TestRateLimitConfig(t *testing.T) {
	require.NoError(t, os.Setenv("RATE_LIMIT_ENABLED", "false"))
	defer os.Unsetenv("RATE_LIMIT_ENABLED")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.Enabled)
}
