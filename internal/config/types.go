package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as a string ("90s", "1h").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Execution holds the defaults the task and job engines fall back to.
type Execution struct {
	DefaultTimeout Duration `json:"default_timeout" yaml:"default_timeout" env:"TASKRUNNER_DEFAULT_TIMEOUT"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"TASKRUNNER_LOG_LEVEL"` // debug, info, warn, error
}

// EventsConfig configures the event bus and its exporters.
type EventsConfig struct {
	MinSeverity string `json:"min_severity" yaml:"min_severity" env:"TASKRUNNER_MIN_SEVERITY"`
	RedisAddr   string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" env:"TASKRUNNER_REDIS_ADDR"`       // Empty disables export
	RedisStream string `json:"redis_stream,omitempty" yaml:"redis_stream,omitempty" env:"TASKRUNNER_REDIS_STREAM"` // Stream key prefix
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" env:"TASKRUNNER_METRICS_ADDR"` // Empty disables the endpoint
}

// BreakerConfig configures the per-handler circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32   `json:"consecutive_failures" yaml:"consecutive_failures" env:"TASKRUNNER_BREAKER_FAILURES"`
	OpenTimeout         Duration `json:"open_timeout" yaml:"open_timeout" env:"TASKRUNNER_BREAKER_TIMEOUT"`
}

// Config is the top-level configuration.
type Config struct {
	Execution Execution     `json:"execution" yaml:"execution"`
	Log       LogConfig     `json:"log" yaml:"log"`
	Events    EventsConfig  `json:"events" yaml:"events"`
	Metrics   MetricsConfig `json:"metrics" yaml:"metrics"`
	Breaker   BreakerConfig `json:"breaker" yaml:"breaker"`
}
