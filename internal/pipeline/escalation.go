package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/llm"
)

type limiter interface {
	Wait(ctx context.Context) error
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// newLimiter spaces analysis calls perMinute per minute with a burst of one.
func newLimiter(perMinute int) limiter {
	if perMinute <= 0 {
		return unlimited{}
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func (p *Pipeline) escalationWorker(ctx context.Context) {
	for job := range p.escalations {
		queueDepth.WithLabelValues("escalation").Set(float64(len(p.escalations)))
		esc := p.escalate(ctx, job)
		escalationsTotal.WithLabelValues(string(esc.Outcome)).Inc()
		p.publish(ctx, event.TopicEscalationFinished, esc)
	}
}

// escalate requests an expert analysis for one fault, retrying transient
// failures up to MaxAttempts with a fixed backoff. It always returns a
// terminal escalation. The cooldown entry set when the fault was recorded is
// kept when the escalation is abandoned.
func (p *Pipeline) escalate(ctx context.Context, job escalationJob) analytics.Escalation {
	f := job.fault
	esc := analytics.Escalation{
		ID:         uuid.NewString(),
		Fault:      f,
		Correlated: job.correlated,
	}
	log := p.logger.With(
		zap.String("escalation_id", esc.ID),
		zap.String("point_id", f.Assessment.PointID),
		zap.String("signature", f.Signature),
	)

	var lastErr error
	for attempt := 1; attempt <= p.ecfg.MaxAttempts; attempt++ {
		esc.Attempts = attempt
		if err := p.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		analysis, err := p.deps.Analyst.AnalyzeFault(ctx, &f, job.correlated)
		if err == nil {
			esc.Analysis = analysis
			if r, ok := p.deps.Analyst.(reporter); ok {
				esc.Report = r.Report(&f, job.correlated, analysis)
			}
			esc.Outcome = analytics.OutcomeSent
			esc.FinishedAt = p.now()
			log.Info("escalation sent", zap.Int("attempts", attempt))
			return esc
		}

		lastErr = err
		if attempt == p.ecfg.MaxAttempts || !llm.IsRetryable(err) {
			break
		}
		log.Warn("analysis failed, retry scheduled",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", p.ecfg.RetryBackoff),
			zap.Error(err),
		)
		if err := p.sleep(ctx, p.ecfg.RetryBackoff); err != nil {
			lastErr = err
			break
		}
	}

	esc.Outcome = analytics.OutcomeAbandoned
	esc.FinishedAt = p.now()
	if lastErr != nil {
		esc.Error = lastErr.Error()
	}
	log.Warn("escalation abandoned", zap.Int("attempts", esc.Attempts), zap.Error(lastErr))
	return esc
}
