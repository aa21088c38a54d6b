// Package pipeline connects ingestion, analysis, alert correlation and the
// two fan-out channels (cycle results and escalations).
//
// A batch moves through Received, HistoryAppended, Analyzed, Correlated and
// Dispatched on a single analysis worker, so batches are analysed in arrival
// order and every window a batch sees ends at its own samples. Escalations
// run on a separate worker pool and move through Queued, Sending, optional
// RetryScheduled, and end as Sent or Abandoned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/turbinewatch/internal/alert"
	"github.com/HerbHall/turbinewatch/internal/analysis"
	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/internal/history"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

var (
	// ErrDropped marks a batch discarded before it produced a cycle result.
	ErrDropped = errors.New("batch dropped")

	// ErrQueueFull is returned by Submit when the ingestion queue is full.
	ErrQueueFull = fmt.Errorf("%w: ingestion queue full", ErrDropped)

	// ErrStopped is returned by Submit once shutdown has begun.
	ErrStopped = errors.New("pipeline is stopping")
)

// Deps are the collaborators of a pipeline. Analyst may be nil, in which
// case fault records are published but never escalated. Rotate, when set,
// is called on every RotateEvery tick of housekeeping.
type Deps struct {
	Catalog     *catalog.Catalog
	History     *history.Store
	Analyzer    *analysis.Analyzer
	Correlator  *alert.Correlator
	Analyst     analytics.FaultAnalyzer
	Bus         plugin.Publisher
	Logger      *zap.Logger
	Rotate      func() error
	RotateEvery time.Duration
}

// reporter is implemented by analysts that render a notification report.
type reporter interface {
	Report(f *analytics.FaultRecord, correlated []analytics.CorrelatedPoint, analysis *analytics.ExpertAnalysis) string
}

type escalationJob struct {
	fault      analytics.FaultRecord
	correlated []analytics.CorrelatedPoint
}

// Pipeline is the running engine.
type Pipeline struct {
	cfg  Config
	ecfg EscalationConfig
	deps Deps

	batches     chan analytics.Batch
	escalations chan escalationJob

	ingestMu sync.Mutex
	stopping bool

	latest atomic.Pointer[analytics.AlertCycleResult]
	cycles atomic.Int64

	limiter limiter
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	logger  *zap.Logger

	lastPurge  time.Time
	lastRotate time.Time
}

// New creates a pipeline. Call Run to start its workers.
func New(cfg Config, ecfg EscalationConfig, deps Deps) *Pipeline {
	cfg = cfg.withDefaults()
	ecfg = ecfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	now := time.Now
	return &Pipeline{
		cfg:         cfg,
		ecfg:        ecfg,
		deps:        deps,
		batches:     make(chan analytics.Batch, cfg.QueueSize),
		escalations: make(chan escalationJob, ecfg.QueueSize),
		limiter:     newLimiter(ecfg.RatePerMinute),
		sleep:       sleepCtx,
		now:         now,
		logger:      deps.Logger,
		lastPurge:   now(),
		lastRotate:  now(),
	}
}

// Submit enqueues a batch for analysis without blocking. It fails with
// ErrQueueFull when the queue is full and ErrStopped during shutdown.
func (p *Pipeline) Submit(b analytics.Batch) error {
	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	if p.stopping {
		batchesTotal.WithLabelValues(outcomeRejected).Inc()
		return ErrStopped
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	select {
	case p.batches <- b:
		queueDepth.WithLabelValues("ingest").Set(float64(len(p.batches)))
		return nil
	default:
		batchesTotal.WithLabelValues(outcomeRejected).Inc()
		p.logger.Warn("ingestion queue full, batch rejected",
			zap.String("batch_id", b.ID),
			zap.String("source", b.Source),
		)
		return ErrQueueFull
	}
}

// Latest returns the most recent cycle result, or nil before the first.
func (p *Pipeline) Latest() *analytics.AlertCycleResult {
	return p.latest.Load()
}

// Cycles returns the number of cycles completed.
func (p *Pipeline) Cycles() int64 {
	return p.cycles.Load()
}

// Run starts the analysis worker and the escalation pool and blocks until
// ctx is cancelled and the queues have drained. Draining is bounded by
// DrainTimeout; batches still queued after it are dropped and in-flight
// escalations are abandoned.
func (p *Pipeline) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(p.cfg.DrainTimeout, cancelWork)
	})
	defer stop()

	p.logger.Info("pipeline started",
		zap.String("component", "pipeline"),
		zap.Int("queue_size", p.cfg.QueueSize),
		zap.Int("escalation_workers", p.ecfg.Workers),
	)

	var g errgroup.Group
	g.Go(func() error {
		defer close(p.escalations)
		p.analysisLoop(ctx, workCtx)
		return nil
	})
	for range p.ecfg.Workers {
		g.Go(func() error {
			p.escalationWorker(workCtx)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("pipeline stopped", zap.String("component", "pipeline"), zap.Int64("cycles", p.Cycles()))
	return err
}

func (p *Pipeline) stopIngest() {
	p.ingestMu.Lock()
	p.stopping = true
	p.ingestMu.Unlock()
}

func (p *Pipeline) analysisLoop(ctx, workCtx context.Context) {
	ticker := time.NewTicker(p.cfg.ReceiveTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopIngest()
			p.drain(workCtx)
			return
		case b := <-p.batches:
			queueDepth.WithLabelValues("ingest").Set(float64(len(p.batches)))
			if err := p.process(workCtx, b); err != nil {
				p.logger.Error("batch dropped", zap.String("batch_id", b.ID), zap.Error(err))
			}
		case <-ticker.C:
			p.housekeeping(p.now())
		}
	}
}

func (p *Pipeline) drain(workCtx context.Context) {
	for {
		select {
		case b := <-p.batches:
			if workCtx.Err() != nil {
				batchesTotal.WithLabelValues(outcomeDropped).Inc()
				p.logger.Warn("drain timeout, batch dropped", zap.String("batch_id", b.ID))
				continue
			}
			if err := p.process(workCtx, b); err != nil {
				p.logger.Error("batch dropped", zap.String("batch_id", b.ID), zap.Error(err))
			}
		default:
			return
		}
	}
}

// process runs one batch through every state. It either dispatches a full
// cycle result or returns an error wrapping ErrDropped.
func (p *Pipeline) process(ctx context.Context, b analytics.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during analysis: %v", ErrDropped, r)
		}
		if err != nil {
			batchesTotal.WithLabelValues(outcomeDropped).Inc()
		}
	}()

	if b.Timestamp.IsZero() {
		return fmt.Errorf("%w: batch has no timestamp", ErrDropped)
	}

	// A batch is atomic: once its samples are in the history it runs to a
	// cycle result, so the drain deadline is only honoured before that.
	if ctx.Err() != nil {
		return fmt.Errorf("%w: shutdown before analysis", ErrDropped)
	}
	ctx = context.WithoutCancel(ctx)

	// HistoryAppended
	start := time.Now()
	points := p.pointsIn(b)
	p.deps.History.AppendBatch(b, func(id string) bool {
		_, ok := p.deps.Catalog.Get(id)
		return ok
	})
	stageDuration.WithLabelValues("history").Observe(time.Since(start).Seconds())

	// Analyzed
	start = time.Now()
	assessments := make([]analytics.PointAssessment, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.AnalysisParallelism)
	for i, pt := range points {
		g.Go(func() error {
			assessments[i] = p.deps.Analyzer.Analyze(gctx, pt, b.Values[pt.ID], b.Timestamp, b.Values)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}
	stageDuration.WithLabelValues("analysis").Observe(time.Since(start).Seconds())
	countCapabilityFailures(assessments)

	// Correlated
	start = time.Now()
	res := p.deps.Correlator.Correlate(b, assessments)
	stageDuration.WithLabelValues("correlation").Observe(time.Since(start).Seconds())

	// Dispatched
	p.latest.Store(&res)
	p.cycles.Add(1)
	batchesTotal.WithLabelValues(outcomeAnalyzed).Inc()
	p.dispatch(ctx, b, &res)
	p.logCycle(&res)
	return nil
}

// pointsIn returns the catalog points present in the batch, in catalog
// order. Unknown IDs are ignored.
func (p *Pipeline) pointsIn(b analytics.Batch) []*catalog.PointConfig {
	var out []*catalog.PointConfig
	for _, pt := range p.deps.Catalog.Points() {
		if _, ok := b.Values[pt.ID]; ok {
			out = append(out, pt)
		}
	}
	return out
}

func countCapabilityFailures(assessments []analytics.PointAssessment) {
	for i := range assessments {
		if assessments[i].ClassifierError != "" {
			capabilityFailures.WithLabelValues(analytics.CapabilityClassify).Inc()
		}
		if assessments[i].PredictionError != "" {
			capabilityFailures.WithLabelValues(analytics.CapabilityForecast).Inc()
		}
	}
}

// dispatch publishes the cycle result and its fault records, best effort,
// and queues escalations.
func (p *Pipeline) dispatch(ctx context.Context, b analytics.Batch, res *analytics.AlertCycleResult) {
	p.publish(ctx, event.TopicCycleCompleted, *res)

	latest := make(map[string]*analytics.PointAssessment, len(res.Assessments))
	for i := range res.Assessments {
		latest[res.Assessments[i].PointID] = &res.Assessments[i]
	}

	for i := range res.FaultRecords {
		f := res.FaultRecords[i]
		p.publish(ctx, event.TopicFaultDetected, f)
		if !f.ShouldEscalate {
			cooldownSuppressed.Inc()
			continue
		}
		if p.deps.Analyst == nil {
			continue
		}
		job := escalationJob{fault: f, correlated: p.deps.Correlator.Correlated(&f, b.Values, latest)}
		select {
		case p.escalations <- job:
			queueDepth.WithLabelValues("escalation").Set(float64(len(p.escalations)))
		default:
			escalationsTotal.WithLabelValues("dropped").Inc()
			p.logger.Warn("escalation queue full, escalation dropped",
				zap.String("point_id", f.Assessment.PointID),
				zap.String("signature", f.Signature),
			)
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, topic string, payload any) {
	if p.deps.Bus == nil {
		return
	}
	err := p.deps.Bus.Publish(ctx, plugin.Event{
		Topic:     topic,
		Source:    event.SourcePipeline,
		Timestamp: p.now(),
		Payload:   payload,
	})
	if err != nil {
		p.logger.Debug("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Pipeline) logCycle(res *analytics.AlertCycleResult) {
	p.logger.Info("analysis cycle complete",
		zap.String("cycle_id", res.ID),
		zap.String("source", res.Source),
		zap.String("health", string(res.OverallHealth)),
		zap.String("risk", string(res.RiskLevel)),
		zap.Int("alarms", len(res.CriticalAlarms)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("faults", len(res.FaultRecords)),
		zap.Int("predictions", len(res.PredictionAlarms)),
	)
	for _, msg := range res.CriticalAlarms {
		p.logger.Warn("critical alarm", zap.String("message", msg))
	}
	for i := range res.FaultRecords {
		f := &res.FaultRecords[i]
		p.logger.Warn("fault detected",
			zap.String("point_id", f.Assessment.PointID),
			zap.Strings("signals", f.Signals),
			zap.Bool("escalate", f.ShouldEscalate),
		)
	}
	for i := range res.PredictionAlarms {
		pa := &res.PredictionAlarms[i]
		unit := ""
		if pt, ok := p.deps.Catalog.Get(pa.PointID); ok {
			unit = pt.Unit
		}
		p.logger.Info("prediction alarm", zap.String("message", alert.PredictionMessage(pa, unit)))
	}
}

// housekeeping purges expired cooldown entries and rolls the log file.
func (p *Pipeline) housekeeping(now time.Time) {
	if now.Sub(p.lastPurge) >= p.cfg.HousekeepingInterval {
		p.lastPurge = now
		cd := p.deps.Correlator.Cooldown()
		if n := cd.Purge(now); n > 0 {
			p.logger.Debug("cooldown entries purged", zap.Int("count", n))
		}
		cooldownEntries.Set(float64(cd.Len()))
	}
	if p.deps.Rotate != nil && p.deps.RotateEvery > 0 && now.Sub(p.lastRotate) >= p.deps.RotateEvery {
		p.lastRotate = now
		if err := p.deps.Rotate(); err != nil {
			p.logger.Warn("log rotation failed", zap.Error(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
