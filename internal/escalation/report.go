package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

const faultReportHistory = 30

var rule = strings.Repeat("=", 80)

// FullReport renders the notification text for an analysed fault: fault
// details, thresholds, detections, correlated points, recent history and the
// expert analysis. The result is truncated to limit characters.
func FullReport(f *analytics.FaultRecord, correlated []analytics.CorrelatedPoint, analysis *analytics.ExpertAnalysis, historyPoints, limit int) string {
	a := &f.Assessment
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nExpert analysis report (confidence: %.2f)\n%s\n\n", rule, analysis.Confidence, rule)
	b.WriteString("Fault:\n")
	fmt.Fprintf(&b, "  Point: %s (%s)\n", a.Name, a.Description)
	fmt.Fprintf(&b, "  System: %s\n", a.System)
	fmt.Fprintf(&b, "  Time: %s\n", f.DetectedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "  Current value: %s\n", withUnit(a.Value, a.Unit))
	fmt.Fprintf(&b, "  Alarm level: %s\n", a.AlarmLevel)
	fmt.Fprintf(&b, "  Anomaly signals: %s\n", signals(f))
	fmt.Fprintf(&b, "  Trend: %s\n", a.Trend)
	fmt.Fprintf(&b, "  Predicted trend: %s\n", a.PredictedTrend)
	fmt.Fprintf(&b, "  Status: %s\n", a.Status)

	b.WriteString("\nAlarm thresholds:\n")
	writeThresholds(&b, a.Limits, a.Unit, "  ")

	b.WriteString("\nFluctuation and sudden change:\n")
	if !writeDetections(&b, a, "  ") {
		b.WriteString("  none detected\n")
	}

	pos, neg := splitRelations(correlated)
	writeCorrelated(&b, "Positively correlated points", pos, "  ")
	writeCorrelated(&b, "Negatively correlated points", neg, "  ")

	fmt.Fprintf(&b, "\nRecent data (last %d samples):\n", historyPoints)
	writeHistory(&b, f.RecentHistory, historyPoints, a.Unit, "  ")

	fmt.Fprintf(&b, "\n%s\nExpert analysis:\n%s\n%s\n", rule, rule, analysis.Text)
	fmt.Fprintf(&b, "\n%s\nGenerated: %s\n%s\n", rule, analysis.GeneratedAt.Format(time.DateTime), rule)

	return Truncate(b.String(), limit)
}

// FaultReport renders a fault record as plain text for the journal and the
// message sinks.
func FaultReport(f *analytics.FaultRecord, correlated []analytics.CorrelatedPoint) string {
	a := &f.Assessment
	var b strings.Builder
	dash := strings.Repeat("-", 80)

	fmt.Fprintf(&b, "%s\nFault recorded: %s\n%s\n", dash, f.DetectedAt.Format(time.DateTime), dash)
	fmt.Fprintf(&b, "Point: %s (%s)\n", a.Name, a.PointID)
	fmt.Fprintf(&b, "Current value: %s\n", withUnit(a.Value, a.Unit))
	fmt.Fprintf(&b, "Alarm level: %s\n", a.AlarmLevel)
	writeDetections(&b, a, "")
	fmt.Fprintf(&b, "Anomaly probability: %.3f\n", a.AnomalyProbability)
	fmt.Fprintf(&b, "Trend: %s\n", a.Trend)
	fmt.Fprintf(&b, "Predicted trend: %s\n", a.PredictedTrend)
	fmt.Fprintf(&b, "Status: %s\n", a.Status)
	fmt.Fprintf(&b, "Anomaly signals: %s\n", signals(f))

	pos, neg := splitRelations(correlated)
	writeCorrelated(&b, "Positively correlated points", pos, "  ")
	writeCorrelated(&b, "Negatively correlated points", neg, "  ")

	b.WriteString("\nAlarm thresholds:\n")
	writeThresholds(&b, a.Limits, a.Unit, "  ")

	fmt.Fprintf(&b, "\nRecent data (last %d samples):\n", faultReportHistory)
	writeHistory(&b, f.RecentHistory, faultReportHistory, a.Unit, "  ")
	return b.String()
}
