package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// Status clause labels. The label of the first clause is the assessment's
// primary clause and becomes part of the escalation cooldown signature, so
// labels carry no measured numbers.
const (
	ClauseCritical        = "critical alarm"
	ClauseHigh            = "high alarm"
	ClauseMedium          = "medium alarm"
	ClauseRising          = "rising trend"
	ClauseFalling         = "falling trend"
	ClausePattern         = "anomalous pattern"
	ClauseFluctuation     = "severe fluctuation"
	ClauseMutation        = "sudden change"
	ClausePredictedRise   = "predicted rising trend"
	ClausePredictedFall   = "predicted falling trend"
	ClausePredictionAlarm = "predicted alarm"

	StatusNormal = "normal"
)

type clause struct {
	label string
	text  string
}

// FormatSeconds renders a time-to-alarm as "45s" below a minute and as
// "2m15s" from a minute up.
func FormatSeconds(s int) string {
	if s < 60 {
		return strconv.Itoa(s) + "s"
	}
	return fmt.Sprintf("%dm%ds", s/60, s%60)
}

// FormatLimit renders a configured limit the way it was written.
func FormatLimit(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// exceeded renders "(actual>limit)".
func exceeded(actual float64, limit *float64) string {
	if limit == nil {
		return fmt.Sprintf("(%.2f)", actual)
	}
	return fmt.Sprintf("(%.2f>%s)", actual, FormatLimit(*limit))
}

func levelLabel(l analytics.AlarmLevel) string {
	switch l {
	case analytics.LevelCritical:
		return ClauseCritical
	case analytics.LevelHigh:
		return ClauseHigh
	case analytics.LevelMedium:
		return ClauseMedium
	default:
		return ""
	}
}

func trendClause(t analytics.Trend, rise, fall string) (clause, bool) {
	switch t {
	case analytics.TrendIncreasing:
		return clause{label: rise, text: rise}, true
	case analytics.TrendDecreasing:
		return clause{label: fall, text: fall}, true
	default:
		return clause{}, false
	}
}

// statusClauses lists the clauses that hold for a, in fixed order.
func statusClauses(a *analytics.PointAssessment) []clause {
	var out []clause
	if l := levelLabel(a.AlarmLevel); l != "" {
		out = append(out, clause{label: l, text: l})
	}
	if c, ok := trendClause(a.Trend, ClauseRising, ClauseFalling); ok {
		out = append(out, c)
	}
	if a.PatternAnomaly {
		out = append(out, clause{label: ClausePattern, text: ClausePattern})
	}
	if a.FluctuationDetected {
		out = append(out, clause{label: ClauseFluctuation, text: ClauseFluctuation + " " + exceeded(a.FluctuationRate, a.FluctuationLimit)})
	}
	if a.MutationDetected {
		out = append(out, clause{label: ClauseMutation, text: ClauseMutation + " " + exceeded(a.Mutation, a.MutationLimit)})
	}
	if a.PredictionError == "" {
		if c, ok := trendClause(a.PredictedTrend, ClausePredictedRise, ClausePredictedFall); ok {
			out = append(out, c)
		}
	}
	if pa := a.PredictionAlarm; pa != nil {
		text := fmt.Sprintf("%s alarm predicted in %s", strings.ToLower(string(pa.Level)), FormatSeconds(pa.SecondsToAlarm))
		out = append(out, clause{label: ClausePredictionAlarm, text: text})
	}
	return out
}

// Describe composes the status description and its primary clause label.
// With no clause the status is "normal".
func Describe(a *analytics.PointAssessment, sep string) (status, primary string) {
	clauses := statusClauses(a)
	if len(clauses) == 0 {
		return StatusNormal, StatusNormal
	}
	texts := make([]string, len(clauses))
	for i, c := range clauses {
		texts[i] = c.text
	}
	return strings.Join(texts, sep), clauses[0].label
}

// Signals lists the anomaly signals of a: fluctuation and mutation over their
// limits and the anomalous pattern. They decide whether a non-critical point
// becomes a fault record.
func Signals(a *analytics.PointAssessment) []string {
	var out []string
	if a.FluctuationDetected {
		out = append(out, ClauseFluctuation+" "+exceeded(a.FluctuationRate, a.FluctuationLimit))
	}
	if a.MutationDetected {
		out = append(out, ClauseMutation+" "+exceeded(a.Mutation, a.MutationLimit))
	}
	if a.PatternAnomaly {
		out = append(out, ClausePattern)
	}
	return out
}
