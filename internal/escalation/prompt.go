package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

const promptInstructions = `
Structure the analysis as:
1. Fault type and affected scope
2. Probable causes, taking the correlated points into account
3. Immediate actions and operating steps
4. Points to keep monitoring, including correlated points
5. Preventive maintenance recommendations

Positively correlated points normally move in the same direction as the
faulty point and negatively correlated points move against it. Base the
analysis on the operating data above and on heavy-duty gas turbine plant
operating practice.`

// BuildPrompt renders the expert-analysis prompt for a fault.
func BuildPrompt(f *analytics.FaultRecord, correlated []analytics.CorrelatedPoint, historyPoints int) string {
	a := &f.Assessment
	var b strings.Builder

	b.WriteString("You are a gas turbine power plant expert. Analyse the following fault and recommend how to handle it.\n\n")
	b.WriteString("Fault:\n")
	fmt.Fprintf(&b, "- Point: %s (%s)\n", a.Name, a.PointID)
	fmt.Fprintf(&b, "- Description: %s\n", a.Description)
	fmt.Fprintf(&b, "- System: %s\n", a.System)
	fmt.Fprintf(&b, "- Time: %s\n", f.DetectedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "- Current value: %s\n", withUnit(a.Value, a.Unit))
	fmt.Fprintf(&b, "- Alarm level: %s\n", a.AlarmLevel)
	fmt.Fprintf(&b, "- Anomaly signals: %s\n", signals(f))
	fmt.Fprintf(&b, "- Trend: %s\n", a.Trend)
	fmt.Fprintf(&b, "- Predicted trend: %s\n", a.PredictedTrend)
	fmt.Fprintf(&b, "- Status: %s\n", a.Status)

	b.WriteString("\nAlarm thresholds:\n")
	writeThresholds(&b, a.Limits, a.Unit, "- ")

	b.WriteString("\nFluctuation and sudden change detection:\n")
	if !writeDetections(&b, a, "- ") {
		b.WriteString("- none detected\n")
	}

	pos, neg := splitRelations(correlated)
	writeCorrelated(&b, "Positively correlated points", pos, "")
	writeCorrelated(&b, "Negatively correlated points", neg, "")

	fmt.Fprintf(&b, "\nRecent data (last %d samples):\n", historyPoints)
	writeHistory(&b, f.RecentHistory, historyPoints, a.Unit, "- ")

	b.WriteString(promptInstructions)
	return b.String()
}
