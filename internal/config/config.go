// Package config holds run configuration: defaults, yaml loading and
// validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the full configuration for one simulation run.
type Config struct {
	Run         RunConfig         `yaml:"run"`
	API         APIConfig         `yaml:"api"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Storage     StorageConfig     `yaml:"storage"`
	Control     ControlConfig     `yaml:"control"`
}

// RunConfig shapes the simulation itself.
type RunConfig struct {
	// RunID identifies the run. Empty generates a fresh UUID.
	RunID string `yaml:"run_id"`
	// Seed drives the deterministic agent decision draws.
	Seed int64 `yaml:"seed"`
	// TotalCycles is the target number of cycles. 0 runs until stopped.
	TotalCycles int64 `yaml:"total_cycles"`
	// CycleInterval is the real-time pace of one cycle.
	CycleInterval Duration `yaml:"cycle_interval"`
	// TimeScale converts real elapsed time into simulated time.
	TimeScale float64 `yaml:"time_scale"`
	// SimulatedStart is the simulated epoch, RFC3339. Empty = real now.
	SimulatedStart string `yaml:"simulated_start"`
	// WarmupFractions ramp the eligible population over the first
	// cycles, e.g. [0.10, 0.25, 0.50, 0.75, 1.0]. Empty disables.
	WarmupFractions []float64 `yaml:"warmup_fractions"`
	// SkipAfterFailures benches an agent after N consecutive failed
	// cycles. 0 disables.
	SkipAfterFailures int `yaml:"skip_after_failures"`
	// DrainTimeout bounds the wait for in-flight workflows on stop.
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// APIConfig configures the downstream shopping API client.
type APIConfig struct {
	BaseURL    string   `yaml:"base_url"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
	RetryDelay Duration `yaml:"retry_delay"`
	// UseStub swaps the HTTP client for the in-process stub (dry runs).
	UseStub bool `yaml:"use_stub"`
}

// RateLimitConfig configures the token bucket limiter.
type RateLimitConfig struct {
	Capacity float64 `yaml:"capacity"`
	// RefillRate is tokens per second, and the growth ceiling.
	RefillRate float64 `yaml:"refill_rate"`
	// MinRateFraction floors the adaptive rate at this fraction of
	// RefillRate. 0 uses the default.
	MinRateFraction float64 `yaml:"min_rate_fraction"`
}

// ConcurrencyConfig configures the adaptive concurrency controller.
type ConcurrencyConfig struct {
	Base    int `yaml:"base"`
	Floor   int `yaml:"floor"`
	Ceiling int `yaml:"ceiling"`
	// Step is the additive growth per cycle. 0 derives from Base.
	Step int `yaml:"step"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// ThresholdPercent of the population that may fail in one cycle
	// before the breaker opens, as a fraction in (0,1].
	ThresholdPercent float64 `yaml:"threshold_percent"`
}

// CheckpointConfig configures durable snapshots.
type CheckpointConfig struct {
	Dir string `yaml:"dir"`
	// Interval fires a checkpoint every N cycles. 0 disables.
	Interval int64 `yaml:"interval"`
	// Keep retains the newest K checkpoints.
	Keep int `yaml:"keep"`
	// Resume restores from the latest checkpoint when present.
	Resume bool `yaml:"resume"`
}

// StorageConfig configures the backing stores.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	// PersonasFile loads the population from a JSON file instead of
	// postgres (memory mode).
	PersonasFile string `yaml:"personas_file"`
	// UseMemory selects in-memory stores for dry runs and tests.
	UseMemory bool `yaml:"use_memory"`
}

// ControlConfig configures the HTTP control/status listener.
type ControlConfig struct {
	// ListenAddr for the control surface. Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns a configuration with sane defaults for a small
// local run against the stub API.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Seed:          1,
			TotalCycles:   60,
			CycleInterval: Duration(5 * time.Second),
			TimeScale:     60,
			WarmupFractions: []float64{
				0.10, 0.25, 0.50, 0.75, 1.0,
			},
			DrainTimeout: Duration(30 * time.Second),
		},
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			Timeout:    Duration(15 * time.Second),
			MaxRetries: 3,
			RetryDelay: Duration(200 * time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Capacity:   50,
			RefillRate: 50,
		},
		Concurrency: ConcurrencyConfig{
			Base:    40,
			Floor:   5,
			Ceiling: 200,
		},
		Breaker: BreakerConfig{
			ThresholdPercent: 0.05,
		},
		Checkpoint: CheckpointConfig{
			Dir:      "checkpoints",
			Interval: 10,
			Keep:     5,
		},
		Control: ControlConfig{
			ListenAddr: ":9090",
		},
	}
}

// LoadFromFile reads a yaml config over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if c.Run.TimeScale < 1 {
		return fmt.Errorf("run.time_scale must be >= 1, got %f", c.Run.TimeScale)
	}
	if c.Run.CycleInterval <= 0 {
		return fmt.Errorf("run.cycle_interval must be positive, got %v", c.Run.CycleInterval)
	}
	if c.Run.TotalCycles < 0 {
		return fmt.Errorf("run.total_cycles must be >= 0, got %d", c.Run.TotalCycles)
	}
	if c.Run.SkipAfterFailures < 0 {
		return fmt.Errorf("run.skip_after_failures must be >= 0, got %d", c.Run.SkipAfterFailures)
	}
	if c.Run.SimulatedStart != "" {
		if _, err := time.Parse(time.RFC3339, c.Run.SimulatedStart); err != nil {
			return fmt.Errorf("run.simulated_start must be RFC3339: %w", err)
		}
	}
	for i, f := range c.Run.WarmupFractions {
		if f <= 0 || f > 1 {
			return fmt.Errorf("run.warmup_fractions[%d] must be in (0,1], got %f", i, f)
		}
	}

	if c.API.BaseURL == "" && !c.API.UseStub {
		return fmt.Errorf("api.base_url is required unless api.use_stub is set")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must be >= 0, got %d", c.API.MaxRetries)
	}

	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate_limit.capacity must be positive, got %f", c.RateLimit.Capacity)
	}
	if c.RateLimit.RefillRate <= 0 {
		return fmt.Errorf("rate_limit.refill_rate must be positive, got %f", c.RateLimit.RefillRate)
	}
	if c.RateLimit.MinRateFraction < 0 || c.RateLimit.MinRateFraction > 1 {
		return fmt.Errorf("rate_limit.min_rate_fraction must be in [0,1], got %f", c.RateLimit.MinRateFraction)
	}

	if c.Concurrency.Base <= 0 {
		return fmt.Errorf("concurrency.base must be positive, got %d", c.Concurrency.Base)
	}
	if c.Concurrency.Floor <= 0 || c.Concurrency.Floor > c.Concurrency.Base {
		return fmt.Errorf("concurrency.floor must be in [1,base], got %d", c.Concurrency.Floor)
	}
	if c.Concurrency.Ceiling < c.Concurrency.Base {
		return fmt.Errorf("concurrency.ceiling must be >= base, got %d", c.Concurrency.Ceiling)
	}

	if c.Breaker.ThresholdPercent <= 0 || c.Breaker.ThresholdPercent > 1 {
		return fmt.Errorf("breaker.threshold_percent must be in (0,1], got %f", c.Breaker.ThresholdPercent)
	}

	if c.Checkpoint.Interval < 0 {
		return fmt.Errorf("checkpoint.interval must be >= 0, got %d", c.Checkpoint.Interval)
	}
	if c.Checkpoint.Interval > 0 {
		if c.Checkpoint.Dir == "" {
			return fmt.Errorf("checkpoint.dir is required when checkpointing is enabled")
		}
		if c.Checkpoint.Keep <= 0 {
			return fmt.Errorf("checkpoint.keep must be positive, got %d", c.Checkpoint.Keep)
		}
	}

	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required unless storage.use_memory is set")
	}
	if c.Storage.UseMemory && c.Storage.PersonasFile == "" {
		return fmt.Errorf("storage.personas_file is required in memory mode")
	}

	return nil
}

// SimulatedStartTime parses the simulated epoch, defaulting to now.
func (c *Config) SimulatedStartTime() time.Time {
	if c.Run.SimulatedStart == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, c.Run.SimulatedStart)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
