// Package alert aggregates the point assessments of one cycle into alarms,
// warnings, fault records and prediction alarms, derives the overall health
// and applies the escalation cooldown.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/analysis"
	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/internal/insight/correlation"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// Config holds the alert correlation settings.
type Config struct {
	Cooldown                time.Duration `mapstructure:"cooldown"`
	Retention               time.Duration `mapstructure:"retention"`
	RecentHistory           time.Duration `mapstructure:"recent_history"`
	CorrelatedHistoryPoints int           `mapstructure:"correlated_history_points"`
}

// DefaultConfig returns a one hour cooldown with a day of retention.
func DefaultConfig() Config {
	return Config{
		Cooldown:                time.Hour,
		Retention:               24 * time.Hour,
		RecentHistory:           2*time.Minute + 30*time.Second,
		CorrelatedHistoryPoints: 36,
	}
}

// History is the read side of the history store used for fault context.
type History interface {
	Samples(id string, n int) []analytics.Sample
	Since(id string, t time.Time) []analytics.Sample
}

// Correlator turns the assessments of a batch into an AlertCycleResult.
// Correlate must be called from a single goroutine; the cooldown table it
// owns is safe for concurrent Purge and Len.
type Correlator struct {
	cfg      Config
	catalog  *catalog.Catalog
	history  History
	cooldown *Cooldown
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a correlator with a fresh cooldown table.
func New(cfg Config, cat *catalog.Catalog, h History, logger *zap.Logger) *Correlator {
	d := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = d.Cooldown
	}
	if cfg.Retention <= 0 {
		cfg.Retention = d.Retention
	}
	if cfg.RecentHistory <= 0 {
		cfg.RecentHistory = d.RecentHistory
	}
	if cfg.CorrelatedHistoryPoints <= 0 {
		cfg.CorrelatedHistoryPoints = d.CorrelatedHistoryPoints
	}
	return &Correlator{
		cfg:      cfg,
		catalog:  cat,
		history:  h,
		cooldown: NewCooldown(cfg.Cooldown, cfg.Retention),
		now:      time.Now,
		logger:   logger,
	}
}

// Cooldown returns the correlator's escalation cooldown table.
func (c *Correlator) Cooldown() *Cooldown { return c.cooldown }

// SetClock replaces the wall clock used for cooldown decisions.
func (c *Correlator) SetClock(now func() time.Time) { c.now = now }

// Signature is the cooldown key of an assessment: protection breaches share
// one signature, everything else is keyed by level and primary clause.
func Signature(a *analytics.PointAssessment) string {
	if a.ProtectionBreach {
		return analytics.SignatureProtectionBreach
	}
	return fmt.Sprintf("%s_%s", a.AlarmLevel, a.PrimaryClause)
}

// Correlate aggregates assessments, given in assessment order, for batch.
func (c *Correlator) Correlate(batch analytics.Batch, assessments []analytics.PointAssessment) analytics.AlertCycleResult {
	now := c.now()
	res := analytics.AlertCycleResult{
		ID:          batch.ID,
		Source:      batch.Source,
		Timestamp:   batch.Timestamp,
		Assessments: assessments,
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	for i := range assessments {
		a := &assessments[i]

		switch a.AlarmLevel {
		case analytics.LevelCritical:
			res.CriticalAlarms = append(res.CriticalAlarms, CriticalMessage(a))
		case analytics.LevelHigh, analytics.LevelMedium:
			res.Warnings = append(res.Warnings, WarningMessage(a))
		}

		var signals []string
		if a.AlarmLevel == analytics.LevelCritical {
			signals = []string{analysis.ClauseCritical + ": " + a.Status}
		} else {
			signals = analysis.Signals(a)
		}
		if len(signals) > 0 {
			sig := Signature(a)
			fault := analytics.FaultRecord{
				ID:             uuid.NewString(),
				CycleID:        res.ID,
				DetectedAt:     batch.Timestamp,
				Assessment:     *a,
				Signals:        signals,
				Signature:      sig,
				RecentHistory:  c.history.Since(a.PointID, batch.Timestamp.Add(-c.cfg.RecentHistory)),
				ShouldEscalate: c.cooldown.Allow(a.PointID, sig, now),
			}
			if !fault.ShouldEscalate {
				c.logger.Debug("escalation suppressed by cooldown",
					zap.String("point_id", a.PointID), zap.String("signature", sig))
			}
			res.FaultRecords = append(res.FaultRecords, fault)
		}

		if a.PredictionAlarm != nil {
			res.PredictionAlarms = append(res.PredictionAlarms, *a.PredictionAlarm)
		}
	}

	res.FaultGroups = c.groups(res.FaultRecords)
	res.OverallHealth, res.RiskLevel = Health(len(res.CriticalAlarms), len(res.Warnings), len(res.FaultRecords), res.PredictionAlarms)
	res.Summary = Summary(&res)
	return res
}

// groups links fault records whose points are correlated in the catalog.
func (c *Correlator) groups(faults []analytics.FaultRecord) []analytics.FaultGroup {
	if len(faults) < 2 || c.catalog == nil {
		return nil
	}
	in := make([]correlation.Fault, len(faults))
	var edges []correlation.Edge
	for i, f := range faults {
		in[i] = correlation.Fault{PointID: f.Assessment.PointID, Timestamp: f.DetectedAt}
		p, ok := c.catalog.Get(f.Assessment.PointID)
		if !ok {
			continue
		}
		for _, id := range p.Correlations.Positive {
			edges = append(edges, correlation.Edge{A: p.ID, B: id})
		}
		for _, id := range p.Correlations.Negative {
			edges = append(edges, correlation.Edge{A: p.ID, B: id})
		}
	}

	var out []analytics.FaultGroup
	for _, g := range correlation.Correlate(in, edges, c.cfg.RecentHistory) {
		out = append(out, analytics.FaultGroup{Root: g.Root, PointIDs: g.PointIDs})
	}
	return out
}

// Correlated builds the correlated point snapshots of a fault: every
// positively or negatively correlated point present in the batch with its
// current value, recent history and latest assessment.
func (c *Correlator) Correlated(fault *analytics.FaultRecord, values map[string]float64, latest map[string]*analytics.PointAssessment) []analytics.CorrelatedPoint {
	if c.catalog == nil {
		return nil
	}
	p, ok := c.catalog.Get(fault.Assessment.PointID)
	if !ok {
		return nil
	}

	var out []analytics.CorrelatedPoint
	add := func(ids []string, relation string) {
		for _, id := range ids {
			v, ok := values[id]
			if !ok {
				continue
			}
			cp := analytics.CorrelatedPoint{
				PointID:       id,
				Relation:      relation,
				CurrentValue:  v,
				RecentHistory: c.history.Samples(id, c.cfg.CorrelatedHistoryPoints),
			}
			if q, ok := c.catalog.Get(id); ok {
				cp.Name, cp.Description, cp.System, cp.Unit = q.Name(), q.Description, q.System, q.Unit
			}
			if a := latest[id]; a != nil {
				s := a.Summary()
				cp.Analysis = &s
			}
			out = append(out, cp)
		}
	}
	add(p.Correlations.Positive, analytics.RelationPositive)
	add(p.Correlations.Negative, analytics.RelationNegative)
	return out
}
