package alert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// Health derives the overall health and risk from the cycle counts. The
// first matching row wins.
func Health(critical, warnings, faults int, predictions []analytics.PredictionAlarm) (analytics.Health, analytics.Risk) {
	switch {
	case critical > 0:
		return analytics.HealthCritical, analytics.RiskVeryHigh
	case warnings > 2:
		return analytics.HealthWarning, analytics.RiskHigh
	case warnings > 0:
		return analytics.HealthAttention, analytics.RiskMedium
	case len(predictions) > 0:
		switch highestPredicted(predictions) {
		case analytics.LevelCritical:
			return analytics.HealthPredictionCritical, analytics.RiskHigh
		case analytics.LevelHigh:
			return analytics.HealthPredictionWarning, analytics.RiskMedium
		default:
			return analytics.HealthPredictionAttention, analytics.RiskLowMonitor
		}
	case faults > 0:
		return analytics.HealthMonitor, analytics.RiskLowMonitor
	default:
		return analytics.HealthHealthy, analytics.RiskLow
	}
}

func highestPredicted(predictions []analytics.PredictionAlarm) analytics.AlarmLevel {
	best := analytics.LevelNormal
	for _, p := range predictions {
		if p.Level.Rank() > best.Rank() {
			best = p.Level
		}
	}
	return best
}

func countLevel(predictions []analytics.PredictionAlarm, l analytics.AlarmLevel) int {
	n := 0
	for _, p := range predictions {
		if p.Level == l {
			n++
		}
	}
	return n
}

// Summary is the one-sentence operator summary of a cycle.
func Summary(r *analytics.AlertCycleResult) string {
	switch r.OverallHealth {
	case analytics.HealthCritical:
		return fmt.Sprintf("Plant in critical alarm: %d critical alarm(s) need immediate action.", len(r.CriticalAlarms))
	case analytics.HealthWarning:
		return fmt.Sprintf("Multiple abnormal parameters: %d warning(s), increase monitoring and adjust promptly.", len(r.Warnings))
	case analytics.HealthAttention:
		return fmt.Sprintf("Plant mostly normal with %d warning(s), watch the related parameters.", len(r.Warnings))
	case analytics.HealthPredictionCritical:
		return fmt.Sprintf("%d point(s) predicted to reach a critical alarm within the forecast horizon, take preventive action now.",
			countLevel(r.PredictionAlarms, analytics.LevelCritical))
	case analytics.HealthPredictionWarning:
		return fmt.Sprintf("%d point(s) predicted to reach a high alarm within the forecast horizon, monitor closely.",
			countLevel(r.PredictionAlarms, analytics.LevelHigh))
	case analytics.HealthPredictionAttention:
		return fmt.Sprintf("%d point(s) predicted to reach a medium alarm within the forecast horizon, watch their trends.",
			countLevel(r.PredictionAlarms, analytics.LevelMedium))
	case analytics.HealthMonitor:
		return fmt.Sprintf("Parameters within limits but anomaly signals detected (%s), watch the related points.", signalKinds(r.FaultRecords))
	default:
		return "Plant operating normally, all parameters within limits."
	}
}

// signalKinds lists the distinct signal kinds of the fault records, without
// measured values, in sorted order.
func signalKinds(faults []analytics.FaultRecord) string {
	seen := make(map[string]bool)
	for _, f := range faults {
		for _, s := range f.Signals {
			kind, _, _ := strings.Cut(s, " (")
			seen[kind] = true
		}
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return strings.Join(kinds, ", ")
}
