// Package analytics provides the shared types of the turbinewatch point analysis
// engine: alarm levels, trends, per-point assessments, fault records and the
// per-batch alert cycle result. Sinks and external collaborators depend only on
// this package, never on the engine internals.
package analytics

import "time"

// AlarmLevel is the six-level threshold classification of a single value.
type AlarmLevel string

const (
	LevelNormal   AlarmLevel = "NORMAL"
	LevelMedium   AlarmLevel = "MEDIUM"
	LevelHigh     AlarmLevel = "HIGH"
	LevelCritical AlarmLevel = "CRITICAL"
)

// Rank orders alarm levels so the most severe compares greatest.
func (l AlarmLevel) Rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// Trend is the direction of a point's recent or predicted movement.
type Trend string

const (
	TrendStable     Trend = "STABLE"
	TrendIncreasing Trend = "INCREASING"
	TrendDecreasing Trend = "DECREASING"
)

// Sample is a single timestamped measurement.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Limits is a fully resolved threshold set for one point in one cycle.
// A nil entry means the level is not configured (or its reference did not
// resolve against the current batch).
type Limits struct {
	LLL   *float64 `json:"lll,omitempty"`
	LL    *float64 `json:"ll,omitempty"`
	L     *float64 `json:"l,omitempty"`
	H     *float64 `json:"h,omitempty"`
	HH    *float64 `json:"hh,omitempty"`
	HHH   *float64 `json:"hhh,omitempty"`
	Lower *float64 `json:"lower_limit,omitempty"`
	Upper *float64 `json:"upper_limit,omitempty"`
}

// Float returns a pointer to v. Convenience for building Limits.
func Float(v float64) *float64 {
	return &v
}

// Batch is one timestamped set of measurements delivered by the ingestion
// boundary. Points missing from Values are simply not analysed that cycle.
type Batch struct {
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}
