package alert

import (
	"fmt"

	"github.com/HerbHall/turbinewatch/internal/analysis"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

func withUnit(v float64, unit string) string {
	if unit == "" {
		return analysis.FormatLimit(v)
	}
	return analysis.FormatLimit(v) + " " + unit
}

func direction(above bool) string {
	if above {
		return ">"
	}
	return "<"
}

// CriticalMessage names the limit a critical point actually crossed: the
// protection limit first, then the alarm threshold in evaluation precedence.
func CriticalMessage(a *analytics.PointAssessment) string {
	if b, ok := analysis.ProtectionBreach(a.Value, a.Limits); ok {
		return fmt.Sprintf("%s exceeded protection limit: %s %s %s",
			a.Name, withUnit(a.Value, a.Unit), direction(b.Above), withUnit(b.Limit, a.Unit))
	}
	if c, ok := analysis.Crossed(a.Value, a.Limits); ok {
		return fmt.Sprintf("%s reached %s alarm: %s %s %s",
			a.Name, c.Name, withUnit(a.Value, a.Unit), direction(c.Above), withUnit(c.Threshold, a.Unit))
	}
	return WarningMessage(a)
}

// WarningMessage renders "name: value unit - status".
func WarningMessage(a *analytics.PointAssessment) string {
	return fmt.Sprintf("%s: %s - %s", a.Name, withUnit(a.Value, a.Unit), a.Status)
}

// PredictionMessage describes a prediction alarm for operators.
func PredictionMessage(p *analytics.PredictionAlarm, unit string) string {
	return fmt.Sprintf("%s predicted to reach %s alarm in %s: %s vs %s %s",
		p.Name, p.ThresholdName, analysis.FormatSeconds(p.SecondsToAlarm),
		withUnit(p.PredictedValue, unit), p.ThresholdName, withUnit(p.Threshold, unit))
}
