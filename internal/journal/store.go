package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// CycleEntry is one journaled cycle summary.
type CycleEntry struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	Timestamp   time.Time        `json:"timestamp"`
	Health      analytics.Health `json:"overall_health"`
	Risk        analytics.Risk   `json:"risk_level"`
	Summary     string           `json:"summary"`
	Alarms      int              `json:"alarms"`
	Warnings    int              `json:"warnings"`
	Faults      int              `json:"faults"`
	Predictions int              `json:"predictions"`
	Points      int              `json:"points"`
}

// FaultEntry is one journaled fault record with its text report.
type FaultEntry struct {
	ID             string               `json:"id"`
	CycleID        string               `json:"cycle_id"`
	PointID        string               `json:"point_id"`
	DetectedAt     time.Time            `json:"detected_at"`
	Value          float64              `json:"value"`
	AlarmLevel     analytics.AlarmLevel `json:"alarm_level"`
	Signature      string               `json:"alarm_signature"`
	ShouldEscalate bool                 `json:"should_escalate"`
	Signals        []string             `json:"anomaly_signals"`
	Report         string               `json:"report"`
}

// EscalationEntry is one journaled escalation outcome.
type EscalationEntry struct {
	ID         string                      `json:"id"`
	FaultID    string                      `json:"fault_id"`
	PointID    string                      `json:"point_id"`
	Signature  string                      `json:"alarm_signature"`
	Outcome    analytics.EscalationOutcome `json:"outcome"`
	Attempts   int                         `json:"attempts"`
	Report     string                      `json:"report,omitempty"`
	Error      string                      `json:"error,omitempty"`
	FinishedAt time.Time                   `json:"finished_at"`
}

// Store provides database access for the journal.
type Store struct {
	db *sql.DB
}

// NewStore creates a journal store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// -- Cycles --

// InsertCycle records a cycle summary. Re-recording a cycle ID replaces it.
func (s *Store) InsertCycle(ctx context.Context, c *CycleEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO journal_cycles (
			id, source, timestamp, health, risk, summary,
			alarms, warnings, faults, predictions, points
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Source, c.Timestamp.UTC(), string(c.Health), string(c.Risk), c.Summary,
		c.Alarms, c.Warnings, c.Faults, c.Predictions, c.Points,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, timestamp, health, risk, summary,
			alarms, warnings, faults, predictions, points
		FROM journal_cycles ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleEntry
	for rows.Next() {
		var c CycleEntry
		var health, risk string
		if err := rows.Scan(
			&c.ID, &c.Source, &c.Timestamp, &health, &risk, &c.Summary,
			&c.Alarms, &c.Warnings, &c.Faults, &c.Predictions, &c.Points,
		); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		c.Health, c.Risk = analytics.Health(health), analytics.Risk(risk)
		out = append(out, c)
	}
	return out, rows.Err()
}

// -- Faults --

// InsertFault records a fault record.
func (s *Store) InsertFault(ctx context.Context, f *FaultEntry) error {
	signals, err := json.Marshal(f.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	escalate := 0
	if f.ShouldEscalate {
		escalate = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO journal_faults (
			id, cycle_id, point_id, detected_at, value, alarm_level,
			signature, should_escalate, signals, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CycleID, f.PointID, f.DetectedAt.UTC(), f.Value, string(f.AlarmLevel),
		f.Signature, escalate, string(signals), f.Report,
	)
	if err != nil {
		return fmt.Errorf("insert fault: %w", err)
	}
	return nil
}

// Faults returns up to limit fault records, newest first. An empty pointID
// lists every point.
func (s *Store) Faults(ctx context.Context, pointID string, limit int) ([]FaultEntry, error) {
	query := `
		SELECT id, cycle_id, point_id, detected_at, value, alarm_level,
			signature, should_escalate, signals, report
		FROM journal_faults`
	args := []any{}
	if pointID != "" {
		query += ` WHERE point_id = ?`
		args = append(args, pointID)
	}
	query += ` ORDER BY detected_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	defer rows.Close()

	var out []FaultEntry
	for rows.Next() {
		var f FaultEntry
		var level, signals string
		var escalate int
		if err := rows.Scan(
			&f.ID, &f.CycleID, &f.PointID, &f.DetectedAt, &f.Value, &level,
			&f.Signature, &escalate, &signals, &f.Report,
		); err != nil {
			return nil, fmt.Errorf("scan fault row: %w", err)
		}
		f.AlarmLevel = analytics.AlarmLevel(level)
		f.ShouldEscalate = escalate != 0
		if err := json.Unmarshal([]byte(signals), &f.Signals); err != nil {
			return nil, fmt.Errorf("decode signals of fault %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// -- Escalations --

// InsertEscalation records an escalation outcome.
func (s *Store) InsertEscalation(ctx context.Context, e *EscalationEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO journal_escalations (
			id, fault_id, point_id, signature, outcome, attempts, report, error, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FaultID, e.PointID, e.Signature, string(e.Outcome), e.Attempts,
		e.Report, e.Error, e.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// Escalations returns up to limit escalations, newest first.
func (s *Store) Escalations(ctx context.Context, limit int) ([]EscalationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fault_id, point_id, signature, outcome, attempts, report, error, finished_at
		FROM journal_escalations ORDER BY finished_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []EscalationEntry
	for rows.Next() {
		var e EscalationEntry
		var outcome string
		if err := rows.Scan(
			&e.ID, &e.FaultID, &e.PointID, &e.Signature, &outcome, &e.Attempts,
			&e.Report, &e.Error, &e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan escalation row: %w", err)
		}
		e.Outcome = analytics.EscalationOutcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

// -- Retention --

// Prune deletes entries older than before and returns how many rows went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	var total int64
	for _, q := range []string{
		`DELETE FROM journal_cycles WHERE timestamp < ?`,
		`DELETE FROM journal_faults WHERE detected_at < ?`,
		`DELETE FROM journal_escalations WHERE finished_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, before)
		if err != nil {
			return total, fmt.Errorf("prune journal: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
