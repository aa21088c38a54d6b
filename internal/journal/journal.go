// Package journal keeps a durable record of what the engine concluded: one
// row per cycle summary, fault record and escalation outcome, in SQLite.
package journal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/escalation"
	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/internal/store"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Sink            = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Config holds journal settings.
type Config struct {
	Retention           time.Duration `mapstructure:"retention"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	BufferSize          int           `mapstructure:"buffer_size"`
}

// DefaultConfig keeps thirty days of history.
func DefaultConfig() Config {
	return Config{
		Retention:           30 * 24 * time.Hour,
		MaintenanceInterval: time.Hour,
		BufferSize:          256,
	}
}

// Module is the journal sink. Bus handlers only enqueue; a single writer
// goroutine owns the database writes so publishing never waits on disk.
type Module struct {
	cfg    Config
	db     *store.Store
	store  *Store
	logger *zap.Logger

	entries chan func(ctx context.Context) error
	dropped atomic.Int64
	written atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a journal over an open database.
func New(cfg Config, db *store.Store, logger *zap.Logger) *Module {
	d := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = d.Retention
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = d.MaintenanceInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = d.BufferSize
	}
	return &Module{
		cfg:     cfg,
		db:      db,
		store:   NewStore(db.DB()),
		logger:  logger,
		entries: make(chan func(ctx context.Context) error, cfg.BufferSize),
	}
}

// Store returns the journal's query interface.
func (m *Module) Store() *Store { return m.store }

func (m *Module) Info() plugin.SinkInfo {
	return plugin.SinkInfo{
		Name:        "journal",
		Description: "Records cycle summaries, fault records and escalation outcomes in SQLite",
	}
}

// Start applies migrations and starts the writer and maintenance loops.
func (m *Module) Start(ctx context.Context) error {
	if err := m.db.Migrate(ctx, "journal", migrations()); err != nil {
		return fmt.Errorf("journal migrations: %w", err)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(2)
	go m.writer()
	go m.maintenance()
	m.logger.Info("journal started",
		zap.String("component", "journal"),
		zap.Duration("retention", m.cfg.Retention),
	)
	return nil
}

// Stop flushes queued entries and stops the background loops.
func (m *Module) Stop(_ context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Info("journal stopped",
		zap.Int64("written", m.written.Load()),
		zap.Int64("dropped", m.dropped.Load()),
	)
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: event.TopicCycleCompleted, Handler: m.handleCycle},
		{Topic: event.TopicFaultDetected, Handler: m.handleFault},
		{Topic: event.TopicEscalationFinished, Handler: m.handleEscalation},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	details := map[string]string{
		"written": strconv.FormatInt(m.written.Load(), 10),
		"dropped": strconv.FormatInt(m.dropped.Load(), 10),
		"queued":  strconv.Itoa(len(m.entries)),
	}
	if err := m.db.Ping(ctx); err != nil {
		return plugin.HealthStatus{Status: plugin.StatusUnhealthy, Message: err.Error(), Details: details}
	}
	if m.dropped.Load() > 0 {
		return plugin.HealthStatus{Status: plugin.StatusDegraded, Message: "journal entries dropped", Details: details}
	}
	return plugin.HealthStatus{Status: plugin.StatusHealthy, Details: details}
}

func (m *Module) enqueue(kind string, write func(ctx context.Context) error) {
	select {
	case m.entries <- write:
	default:
		m.dropped.Add(1)
		m.logger.Warn("journal buffer full, entry dropped", zap.String("kind", kind))
	}
}

func (m *Module) handleCycle(_ context.Context, e plugin.Event) {
	var res *analytics.AlertCycleResult
	switch v := e.Payload.(type) {
	case analytics.AlertCycleResult:
		res = &v
	case *analytics.AlertCycleResult:
		res = v
	}
	if res == nil {
		return
	}
	entry := &CycleEntry{
		ID:          res.ID,
		Source:      res.Source,
		Timestamp:   res.Timestamp,
		Health:      res.OverallHealth,
		Risk:        res.RiskLevel,
		Summary:     res.Summary,
		Alarms:      len(res.CriticalAlarms),
		Warnings:    len(res.Warnings),
		Faults:      len(res.FaultRecords),
		Predictions: len(res.PredictionAlarms),
		Points:      len(res.Assessments),
	}
	m.enqueue("cycle", func(ctx context.Context) error { return m.store.InsertCycle(ctx, entry) })
}

func (m *Module) handleFault(_ context.Context, e plugin.Event) {
	var f *analytics.FaultRecord
	switch v := e.Payload.(type) {
	case analytics.FaultRecord:
		f = &v
	case *analytics.FaultRecord:
		f = v
	}
	if f == nil {
		return
	}
	entry := &FaultEntry{
		ID:             f.ID,
		CycleID:        f.CycleID,
		PointID:        f.Assessment.PointID,
		DetectedAt:     f.DetectedAt,
		Value:          f.Assessment.Value,
		AlarmLevel:     f.Assessment.AlarmLevel,
		Signature:      f.Signature,
		ShouldEscalate: f.ShouldEscalate,
		Signals:        f.Signals,
		Report:         escalation.FaultReport(f, nil),
	}
	m.enqueue("fault", func(ctx context.Context) error { return m.store.InsertFault(ctx, entry) })
}

func (m *Module) handleEscalation(_ context.Context, e plugin.Event) {
	var esc *analytics.Escalation
	switch v := e.Payload.(type) {
	case analytics.Escalation:
		esc = &v
	case *analytics.Escalation:
		esc = v
	}
	if esc == nil {
		return
	}
	entry := &EscalationEntry{
		ID:         esc.ID,
		FaultID:    esc.Fault.ID,
		PointID:    esc.Fault.Assessment.PointID,
		Signature:  esc.Fault.Signature,
		Outcome:    esc.Outcome,
		Attempts:   esc.Attempts,
		Report:     esc.Report,
		Error:      esc.Error,
		FinishedAt: esc.FinishedAt,
	}
	m.enqueue("escalation", func(ctx context.Context) error { return m.store.InsertEscalation(ctx, entry) })
}

// writer applies queued entries until stopped, then drains what is left.
func (m *Module) writer() {
	defer m.wg.Done()
	for {
		select {
		case write := <-m.entries:
			m.write(write)
		case <-m.ctx.Done():
			for {
				select {
				case write := <-m.entries:
					m.write(write)
				default:
					return
				}
			}
		}
	}
}

func (m *Module) write(write func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		m.logger.Warn("journal write failed", zap.Error(err))
		return
	}
	m.written.Add(1)
}
