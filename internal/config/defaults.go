package config

import "time"

// DefaultTimeout applies to tasks and jobs that do not set their own timeout.
const DefaultTimeout = 60 * time.Minute

// DefaultExecution returns the built-in execution defaults.
func DefaultExecution() Execution {
	return Execution{DefaultTimeout: Duration(DefaultTimeout)}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Execution: DefaultExecution(),
		Log: LogConfig{
			Level: "info",
		},
		Events: EventsConfig{
			MinSeverity: "info",
			RedisStream: "taskrunner:events",
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         Duration(30 * time.Second),
		},
	}
}
