package pool

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the consumer pool's construction parameters, per spec.md
// §6's consumer/pool-side configuration surface plus the autoscaler bounds
// from §4.5. Loaded from a TOML file (see LoadConfigFile) with cobra flags
// overriding individual fields in cmd/consumerpool.
type Config struct {
	CoordinatorURL      string    `toml:"coordinator_url"`
	InitialSize         int       `toml:"initial_size"`
	Weights             []float64 `toml:"weights"`
	PollIntervalMS      int       `toml:"poll_interval_ms"`
	HeartbeatIntervalMS int       `toml:"heartbeat_interval_ms"`
	ProcessingDelayMS   int       `toml:"processing_delay_ms"`

	Autoscaler AutoscalerConfig `toml:"autoscaler"`
}

// AutoscalerConfig holds the bounds and thresholds from spec.md §4.5's
// AutoscalerState, in their wire (millisecond/int) form.
type AutoscalerConfig struct {
	MinSize              int     `toml:"min_size"`
	MaxSize              int     `toml:"max_size"`
	ScaleUpThreshold     int     `toml:"scale_up_threshold"`
	ScaleDownThreshold   int     `toml:"scale_down_threshold"`
	ScaleUpStep          int     `toml:"scale_up_step"`
	ScaleDownStep        int     `toml:"scale_down_step"`
	CooldownMS           int     `toml:"cooldown_ms"`
	ScaleCheckIntervalMS int     `toml:"scale_check_interval_ms"`
	ScaleOutWeight       float64 `toml:"scale_out_weight"`
}

// DefaultConfig returns the documented defaults from spec.md §4.4 and §4.5.
func DefaultConfig() *Config {
	return &Config{
		CoordinatorURL:      "http://localhost:8000",
		InitialSize:         4,
		PollIntervalMS:      1000,
		HeartbeatIntervalMS: 5000,
		ProcessingDelayMS:   200,
		Autoscaler: AutoscalerConfig{
			MinSize:              2,
			MaxSize:              8,
			ScaleUpThreshold:     50,
			ScaleDownThreshold:   10,
			ScaleUpStep:          2,
			ScaleDownStep:        2,
			CooldownMS:           30_000,
			ScaleCheckIntervalMS: 10_000,
			ScaleOutWeight:       0.5,
		},
	}
}

// LoadConfigFile reads a TOML config file and overlays it onto
// DefaultConfig, matching the file-then-flag layering used throughout
// this codebase's config loaders.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pool: read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("pool: parse config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) pollInterval() time.Duration      { return time.Duration(c.PollIntervalMS) * time.Millisecond }
func (c *Config) heartbeatInterval() time.Duration { return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond }
func (c *Config) processingDelay() time.Duration   { return time.Duration(c.ProcessingDelayMS) * time.Millisecond }

func (a AutoscalerConfig) cooldown() time.Duration           { return time.Duration(a.CooldownMS) * time.Millisecond }
func (a AutoscalerConfig) scaleCheckInterval() time.Duration { return time.Duration(a.ScaleCheckIntervalMS) * time.Millisecond }
