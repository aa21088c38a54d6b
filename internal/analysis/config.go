package analysis

import "time"

// Config holds the per-point analysis tunables. It is decoded from the
// "engine" configuration section.
type Config struct {
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	PredictionPoints int           `mapstructure:"prediction_points"` // forecast horizon N

	TrendWindow     int     `mapstructure:"trend_window"`
	TrendMinHistory int     `mapstructure:"trend_min_history"` // trend needs more samples than this
	TrendFloor      float64 `mapstructure:"trend_floor"`

	FluctuationWindow  int `mapstructure:"fluctuation_window"`
	MutationMinHistory int `mapstructure:"mutation_min_history"`

	AnomalyMinHistory  int     `mapstructure:"anomaly_min_history"` // pattern path needs more samples than this
	StabilityWindow    int     `mapstructure:"stability_window"`
	StabilityThreshold float64 `mapstructure:"stability_threshold"` // relative (max-min)/max
	StableProbability  float64 `mapstructure:"stable_probability"`
	PatternThreshold   float64 `mapstructure:"pattern_threshold"`

	PredictionTrendBand float64 `mapstructure:"prediction_trend_band"`

	StatusSeparator string `mapstructure:"status_separator"`
}

// DefaultConfig returns the defaults used on 5-second plant data.
func DefaultConfig() Config {
	return Config{
		SampleInterval:   5 * time.Second,
		PredictionPoints: 36,

		TrendWindow:     10,
		TrendMinHistory: 10,
		TrendFloor:      0.001,

		FluctuationWindow:  5,
		MutationMinHistory: 3,

		AnomalyMinHistory:  30,
		StabilityWindow:    20,
		StabilityThreshold: 0.01,
		StableProbability:  0.1,
		PatternThreshold:   0.8,

		PredictionTrendBand: 0.05,

		StatusSeparator: ", ",
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleInterval <= 0 {
		c.SampleInterval = d.SampleInterval
	}
	if c.PredictionPoints <= 0 {
		c.PredictionPoints = d.PredictionPoints
	}
	if c.TrendWindow < 2 {
		c.TrendWindow = d.TrendWindow
	}
	if c.TrendMinHistory <= 0 {
		c.TrendMinHistory = d.TrendMinHistory
	}
	if c.TrendFloor <= 0 {
		c.TrendFloor = d.TrendFloor
	}
	if c.FluctuationWindow < 2 {
		c.FluctuationWindow = d.FluctuationWindow
	}
	if c.MutationMinHistory < 2 {
		c.MutationMinHistory = d.MutationMinHistory
	}
	if c.AnomalyMinHistory <= 0 {
		c.AnomalyMinHistory = d.AnomalyMinHistory
	}
	if c.StabilityWindow < 2 {
		c.StabilityWindow = d.StabilityWindow
	}
	if c.StabilityThreshold <= 0 {
		c.StabilityThreshold = d.StabilityThreshold
	}
	if c.StableProbability < 0 {
		c.StableProbability = d.StableProbability
	}
	if c.PatternThreshold <= 0 {
		c.PatternThreshold = d.PatternThreshold
	}
	if c.PredictionTrendBand <= 0 {
		c.PredictionTrendBand = d.PredictionTrendBand
	}
	if c.StatusSeparator == "" {
		c.StatusSeparator = d.StatusSeparator
	}
	return c
}
