// Package analysis evaluates one point per cycle: threshold classification,
// short-window trend, fluctuation and mutation detectors, the stability-gated
// pattern anomaly check and the forecast look-ahead.
package analysis

import "github.com/HerbHall/turbinewatch/pkg/analytics"

// Crossing names the threshold a value reached.
type Crossing struct {
	Name      string // "HHH", "LL", ...
	Level     analytics.AlarmLevel
	Threshold float64
	Above     bool // true for the H side, false for the L side
}

type levelCheck struct {
	name  string
	level analytics.AlarmLevel
	above bool
	limit func(analytics.Limits) *float64
}

// levelChecks is the evaluation precedence: HHH and LLL first, then HH/LL,
// then H/L. The high side is checked before the low side at each level.
var levelChecks = []levelCheck{
	{"HHH", analytics.LevelCritical, true, func(l analytics.Limits) *float64 { return l.HHH }},
	{"LLL", analytics.LevelCritical, false, func(l analytics.Limits) *float64 { return l.LLL }},
	{"HH", analytics.LevelHigh, true, func(l analytics.Limits) *float64 { return l.HH }},
	{"LL", analytics.LevelHigh, false, func(l analytics.Limits) *float64 { return l.LL }},
	{"H", analytics.LevelMedium, true, func(l analytics.Limits) *float64 { return l.H }},
	{"L", analytics.LevelMedium, false, func(l analytics.Limits) *float64 { return l.L }},
}

// Crossed returns the first threshold value reaches in precedence order.
// Unset thresholds are skipped, never treated as zero.
func Crossed(value float64, lim analytics.Limits) (Crossing, bool) {
	for _, c := range levelChecks {
		t := c.limit(lim)
		if t == nil {
			continue
		}
		if (c.above && value >= *t) || (!c.above && value <= *t) {
			return Crossing{Name: c.name, Level: c.level, Threshold: *t, Above: c.above}, true
		}
	}
	return Crossing{}, false
}

// Breach describes a protection limit violation.
type Breach struct {
	Limit float64
	Above bool
}

// ProtectionBreach reports whether value is strictly outside the absolute
// protection limits. The upper limit is checked first.
func ProtectionBreach(value float64, lim analytics.Limits) (Breach, bool) {
	if lim.Upper != nil && value > *lim.Upper {
		return Breach{Limit: *lim.Upper, Above: true}, true
	}
	if lim.Lower != nil && value < *lim.Lower {
		return Breach{Limit: *lim.Lower, Above: false}, true
	}
	return Breach{}, false
}

// Evaluate classifies value against the resolved limits. A protection
// breach is reported separately and always raises the level to CRITICAL.
func Evaluate(value float64, lim analytics.Limits) (level analytics.AlarmLevel, breach bool) {
	level = analytics.LevelNormal
	if c, ok := Crossed(value, lim); ok {
		level = c.Level
	}
	if _, breach = ProtectionBreach(value, lim); breach {
		level = analytics.LevelCritical
	}
	return level, breach
}
