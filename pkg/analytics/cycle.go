package analytics

import "time"

// Health is the overall plant state derived from one cycle.
type Health string

const (
	HealthCritical            Health = "CRITICAL"
	HealthWarning             Health = "WARNING"
	HealthAttention           Health = "ATTENTION"
	HealthPredictionCritical  Health = "PREDICTION_CRITICAL"
	HealthPredictionWarning   Health = "PREDICTION_WARNING"
	HealthPredictionAttention Health = "PREDICTION_ATTENTION"
	HealthMonitor             Health = "MONITOR"
	HealthHealthy             Health = "HEALTHY"
)

// Risk is the risk level paired with Health.
type Risk string

const (
	RiskVeryHigh   Risk = "VERY_HIGH"
	RiskHigh       Risk = "HIGH"
	RiskMedium     Risk = "MEDIUM"
	RiskLowMonitor Risk = "LOW_MONITOR"
	RiskLow        Risk = "LOW"
)

// SignatureProtectionBreach is the cooldown signature of every protection
// limit breach, regardless of status wording.
const SignatureProtectionBreach = "protection_breach"

// FaultRecord is a point assessment that warrants downstream attention.
type FaultRecord struct {
	ID             string          `json:"id"`
	CycleID        string          `json:"cycle_id"`
	DetectedAt     time.Time       `json:"timestamp"`
	Assessment     PointAssessment `json:"assessment"`
	Signals        []string        `json:"anomaly_signals"`
	Signature      string          `json:"alarm_signature"`
	RecentHistory  []Sample        `json:"recent_history"`
	ShouldEscalate bool            `json:"should_escalate"`
}

// FaultGroup links fault records of one cycle whose points are correlated in
// the point catalog. Root is the first fault of the group in assessment order.
type FaultGroup struct {
	Root     string   `json:"root_point_id"`
	PointIDs []string `json:"point_ids"`
}

// AlertCycleResult aggregates all assessments of one batch.
type AlertCycleResult struct {
	ID               string            `json:"id"`
	Source           string            `json:"data_source"`
	Timestamp        time.Time         `json:"timestamp"`
	OverallHealth    Health            `json:"overall_health"`
	RiskLevel        Risk              `json:"risk_level"`
	Summary          string            `json:"summary"`
	CriticalAlarms   []string          `json:"alarms"`
	Warnings         []string          `json:"warnings"`
	FaultRecords     []FaultRecord     `json:"fault_points"`
	PredictionAlarms []PredictionAlarm `json:"prediction_alarms"`
	FaultGroups      []FaultGroup      `json:"fault_groups,omitempty"`
	Assessments      []PointAssessment `json:"point_analysis"`
}

// ExpertAnalysis is the free-text analysis returned by the escalation
// capability for one fault.
type ExpertAnalysis struct {
	Text        string    `json:"expert_analysis"`
	Model       string    `json:"model,omitempty"`
	Confidence  float64   `json:"confidence_score"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EscalationOutcome is the terminal state of one escalation.
type EscalationOutcome string

const (
	OutcomeSent      EscalationOutcome = "sent"
	OutcomeAbandoned EscalationOutcome = "abandoned"
)

// Escalation is the payload delivered to the notification channel for a
// fault record that passed the cooldown check.
type Escalation struct {
	ID         string            `json:"id"`
	Fault      FaultRecord       `json:"fault"`
	Correlated []CorrelatedPoint `json:"correlation_points"`
	Analysis   *ExpertAnalysis   `json:"analysis,omitempty"`
	Report     string            `json:"report,omitempty"`
	Attempts   int               `json:"attempts"`
	Outcome    EscalationOutcome `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}
