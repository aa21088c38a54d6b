package ws

import (
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageCycleSnapshot      MessageType = "cycle.snapshot"
	MessageCycleCompleted     MessageType = "cycle.completed"
	MessageFaultDetected      MessageType = "fault.detected"
	MessageEscalationFinished MessageType = "escalation.finished"
)

// Message is the envelope for all WebSocket messages. ID is the cycle,
// fault batch or escalation the message refers to.
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// CycleData is the payload of cycle.completed and cycle.snapshot messages.
// Per-point assessments are left out; dashboards fetch them from
// /api/v1/cycles/latest when they need the detail.
type CycleData struct {
	Source           string                      `json:"data_source"`
	OverallHealth    analytics.Health            `json:"overall_health"`
	RiskLevel        analytics.Risk              `json:"risk_level"`
	Summary          string                      `json:"summary"`
	Alarms           []string                    `json:"alarms"`
	Warnings         []string                    `json:"warnings"`
	FaultCount       int                         `json:"fault_count"`
	PredictionAlarms []analytics.PredictionAlarm `json:"prediction_alarms"`
	FaultGroups      []analytics.FaultGroup      `json:"fault_groups,omitempty"`
}

// FaultData is the payload of fault.detected messages.
type FaultData struct {
	Fault analytics.FaultRecord `json:"fault"`
}

// EscalationData is the payload of escalation.finished messages.
type EscalationData struct {
	PointID   string                      `json:"point_id"`
	Signature string                      `json:"alarm_signature"`
	Outcome   analytics.EscalationOutcome `json:"outcome"`
	Attempts  int                         `json:"attempts"`
	Report    string                      `json:"report,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

func cycleMessage(typ MessageType, res *analytics.AlertCycleResult) Message {
	return Message{
		Type:      typ,
		ID:        res.ID,
		Timestamp: res.Timestamp,
		Data: CycleData{
			Source:           res.Source,
			OverallHealth:    res.OverallHealth,
			RiskLevel:        res.RiskLevel,
			Summary:          res.Summary,
			Alarms:           res.CriticalAlarms,
			Warnings:         res.Warnings,
			FaultCount:       len(res.FaultRecords),
			PredictionAlarms: res.PredictionAlarms,
			FaultGroups:      res.FaultGroups,
		},
	}
}
