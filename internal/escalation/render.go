package escalation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func withUnit(v float64, unit string) string {
	if unit == "" {
		return num(v)
	}
	return num(v) + " " + unit
}

// writeThresholds lists configured limits from the highest alarm level down.
func writeThresholds(b *strings.Builder, lim analytics.Limits, unit, indent string) {
	rows := []struct {
		name string
		v    *float64
	}{
		{"HHH alarm", lim.HHH},
		{"HH alarm", lim.HH},
		{"H alarm", lim.H},
		{"L alarm", lim.L},
		{"LL alarm", lim.LL},
		{"LLL alarm", lim.LLL},
		{"Lower limit", lim.Lower},
		{"Upper limit", lim.Upper},
	}
	n := 0
	for _, r := range rows {
		if r.v == nil {
			continue
		}
		fmt.Fprintf(b, "%s%s: %s\n", indent, r.name, withUnit(*r.v, unit))
		n++
	}
	if n == 0 {
		fmt.Fprintf(b, "%sno thresholds configured\n", indent)
	}
}

// writeDetections reports fluctuation and mutation results against their
// limits. It reports whether anything was written.
func writeDetections(b *strings.Builder, a *analytics.PointAssessment, indent string) bool {
	wrote := false
	if a.FluctuationDetected && a.FluctuationLimit != nil {
		fmt.Fprintf(b, "%sFluctuation: %.2f %s/s > limit %s %s/s\n",
			indent, a.FluctuationRate, a.Unit, num(*a.FluctuationLimit), a.Unit)
		wrote = true
	}
	if a.MutationDetected && a.MutationLimit != nil {
		fmt.Fprintf(b, "%sSudden change: %.2f %s > limit %s %s\n",
			indent, a.Mutation, a.Unit, num(*a.MutationLimit), a.Unit)
		wrote = true
	}
	return wrote
}

func splitRelations(correlated []analytics.CorrelatedPoint) (pos, neg []analytics.CorrelatedPoint) {
	for _, c := range correlated {
		if c.Relation == analytics.RelationNegative {
			neg = append(neg, c)
		} else {
			pos = append(pos, c)
		}
	}
	return pos, neg
}

func writeCorrelated(b *strings.Builder, title string, points []analytics.CorrelatedPoint, indent string) {
	if len(points) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d):\n", title, len(points))
	for _, c := range points {
		trend, level, prob := "unknown", analytics.LevelNormal, 0.0
		if c.Analysis != nil {
			trend, level, prob = string(c.Analysis.Trend), c.Analysis.AlarmLevel, c.Analysis.AnomalyProbability
		}
		fmt.Fprintf(b, "%s- %s: %s (trend: %s, alarm: %s, anomaly probability: %.3f)\n",
			indent, c.Name, withUnit(c.CurrentValue, c.Unit), trend, level, prob)
	}
}

// writeHistory lists the last n samples, one per line, separating every
// group of 12 (one minute at the default cadence).
func writeHistory(b *strings.Builder, samples []analytics.Sample, n int, unit, indent string) {
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	if len(samples) == 0 {
		fmt.Fprintf(b, "%sno history\n", indent)
		return
	}
	for i, s := range samples {
		fmt.Fprintf(b, "%s%s: %s\n", indent, s.Timestamp.Format("15:04:05"), withUnit(s.Value, unit))
		if (i+1)%12 == 0 && i < len(samples)-1 {
			fmt.Fprintf(b, "%s%s\n", indent, strings.Repeat("-", 30))
		}
	}
}

func signals(f *analytics.FaultRecord) string {
	if len(f.Signals) == 0 {
		return "none"
	}
	return strings.Join(f.Signals, ", ")
}

// Truncate cuts s to limit bytes on a rune boundary and appends a marker.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

const truncationMarker = "...\n[truncated]"
