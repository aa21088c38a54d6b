package pipeline

import "time"

// Config holds the queueing and scheduling settings of the pipeline.
type Config struct {
	QueueSize            int           `mapstructure:"queue_size"`
	ReceiveTimeout       time.Duration `mapstructure:"receive_timeout"`
	DrainTimeout         time.Duration `mapstructure:"drain_timeout"`
	AnalysisParallelism  int           `mapstructure:"analysis_parallelism"`
	HousekeepingInterval time.Duration `mapstructure:"housekeeping_interval"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:            64,
		ReceiveTimeout:       time.Second,
		DrainTimeout:         10 * time.Second,
		AnalysisParallelism:  4,
		HousekeepingInterval: time.Minute,
	}
}

// EscalationConfig controls the escalation worker pool.
type EscalationConfig struct {
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	RatePerMinute int           `mapstructure:"rate_per_minute"` // 0 disables rate limiting
}

// DefaultEscalationConfig returns two workers making at most two attempts
// ten seconds apart.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Workers:       2,
		QueueSize:     64,
		MaxAttempts:   2,
		RetryBackoff:  10 * time.Second,
		RatePerMinute: 30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.AnalysisParallelism <= 0 {
		c.AnalysisParallelism = d.AnalysisParallelism
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = d.HousekeepingInterval
	}
	return c
}

func (c EscalationConfig) withDefaults() EscalationConfig {
	d := DefaultEscalationConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	return c
}
