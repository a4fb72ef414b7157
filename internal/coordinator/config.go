package coordinator

import (
	"os"
	"strconv"
	"time"
)

// Config holds the coordinator's tunables. Mirrors the env/flag surface in
// spec.md §6: port, monitor_interval_ms, task_timeout_ms, max_retries,
// log_level.
type Config struct {
	Port            int
	MonitorInterval time.Duration
	TaskTimeout     time.Duration
	MaxRetries      int
	LogLevel        string
	FailureRingSize int
	NoDebugAsserts  bool
}

// DefaultConfig returns the documented defaults from spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Port:            8000,
		MonitorInterval: 5 * time.Second,
		TaskTimeout:     30 * time.Second,
		MaxRetries:      3,
		LogLevel:        "info",
		FailureRingSize: 100,
	}
}

// ConfigFromEnv overlays environment variables onto DefaultConfig, matching
// the getEnv*/getEnvDuration helper pattern used throughout this codebase.
func ConfigFromEnv() *Config {
	c := DefaultConfig()
	c.Port = getEnvInt("PORT", c.Port)
	c.MonitorInterval = getEnvDuration("MONITOR_INTERVAL_MS", c.MonitorInterval)
	c.TaskTimeout = getEnvDuration("TASK_TIMEOUT_MS", c.TaskTimeout)
	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.NoDebugAsserts = getEnvBool("LOGQUEUE_NO_DEBUG_ASSERTS", c.NoDebugAsserts)
	return c
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultValue
}

// getEnvDuration reads a *_MS environment variable as milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
