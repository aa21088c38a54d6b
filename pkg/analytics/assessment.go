package analytics

import "time"

// PredictedValue is one step of a forecast horizon.
type PredictedValue struct {
	OffsetSeconds int     `json:"time_offset"`
	Value         float64 `json:"value"`
}

// PredictionAlarm is the earliest forecast step that crosses a threshold.
type PredictionAlarm struct {
	PointID        string     `json:"point_id"`
	Name           string     `json:"name"`
	Level          AlarmLevel `json:"level"`
	ThresholdName  string     `json:"threshold_name"` // "HHH", "LL", ...
	Threshold      float64    `json:"threshold"`
	PredictedValue float64    `json:"predicted_value"`
	SecondsToAlarm int        `json:"seconds_to_alarm"`
}

// PointAssessment is the analysis of one point for one batch.
type PointAssessment struct {
	PointID     string    `json:"point_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	System      string    `json:"system,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
	Limits      Limits    `json:"limits"`

	AlarmLevel       AlarmLevel `json:"alarm_level"`
	ProtectionBreach bool       `json:"protection_breach"`

	Trend          Trend `json:"trend"`
	PredictedTrend Trend `json:"predicted_trend"`

	FluctuationDetected bool     `json:"fluctuation_detected"`
	FluctuationRate     float64  `json:"actual_fluctuation"`
	FluctuationLimit    *float64 `json:"fluctuation_limit,omitempty"`
	MutationDetected    bool     `json:"mutation_detected"`
	Mutation            float64  `json:"actual_mutation"`
	MutationLimit       *float64 `json:"mutation_limit,omitempty"`

	AnomalyProbability float64 `json:"anomaly_probability"`
	Stable             bool    `json:"stable"`
	PatternAnomaly     bool    `json:"pattern_anomaly"`
	ClassifierError    string  `json:"classifier_error,omitempty"`

	Prediction      []PredictedValue `json:"prediction,omitempty"`
	PredictionAlarm *PredictionAlarm `json:"prediction_alarm,omitempty"`
	PredictionError string           `json:"prediction_error,omitempty"`

	Status        string `json:"status_description"`
	PrimaryClause string `json:"-"`
}

// Summary returns the compact view of the assessment used for correlated
// point snapshots.
func (a *PointAssessment) Summary() PointSummary {
	return PointSummary{
		Trend:              a.Trend,
		PredictedTrend:     a.PredictedTrend,
		AlarmLevel:         a.AlarmLevel,
		AnomalyProbability: a.AnomalyProbability,
	}
}

// PointSummary is the last analysis of a correlated point.
type PointSummary struct {
	Trend              Trend      `json:"trend"`
	PredictedTrend     Trend      `json:"predicted_trend"`
	AlarmLevel         AlarmLevel `json:"alarm_level"`
	AnomalyProbability float64    `json:"anomaly_probability"`
}

// Relation values for CorrelatedPoint.
const (
	RelationPositive = "positive"
	RelationNegative = "negative"
)

// CorrelatedPoint is supporting context for an escalated fault: a point that
// is expected to move with (positive) or against (negative) the faulty one.
type CorrelatedPoint struct {
	PointID       string        `json:"point_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	System        string        `json:"system,omitempty"`
	Unit          string        `json:"unit,omitempty"`
	Relation      string        `json:"relation"`
	CurrentValue  float64       `json:"current_value"`
	RecentHistory []Sample      `json:"recent_history"`
	Analysis      *PointSummary `json:"analysis,omitempty"`
}
