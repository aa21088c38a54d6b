package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
)

// History supplies the trailing values of a point, oldest first. The
// current sample must already be appended.
type History interface {
	Values(id string, n int) []float64
}

// Analyzer produces a PointAssessment for one point and one batch.
type Analyzer struct {
	cfg        Config
	history    History
	classifier analytics.Classifier
	forecaster analytics.Forecaster
	logger     *zap.Logger
}

// NewAnalyzer creates an analyzer. Zero config fields take their defaults.
func NewAnalyzer(cfg Config, history History, clf analytics.Classifier, f analytics.Forecaster, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:        cfg.withDefaults(),
		history:    history,
		classifier: clf,
		forecaster: f,
		logger:     logger,
	}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Analyze evaluates point p at value for the batch values. Capability
// failures degrade the assessment and are recorded on it; Analyze itself
// never fails.
func (a *Analyzer) Analyze(ctx context.Context, p *catalog.PointConfig, value float64, ts time.Time, batch map[string]float64) analytics.PointAssessment {
	lim := p.Limits(batch)
	res := analytics.PointAssessment{
		PointID:          p.ID,
		Name:             p.Name(),
		Description:      p.Description,
		System:           p.System,
		Unit:             p.Unit,
		Value:            value,
		Timestamp:        ts,
		Limits:           lim,
		Trend:            analytics.TrendStable,
		PredictedTrend:   analytics.TrendStable,
		FluctuationLimit: p.Detection.FluctuationRateLimit,
		MutationLimit:    p.Detection.MutationLimit,
	}
	res.AlarmLevel, res.ProtectionBreach = Evaluate(value, lim)

	values := a.history.Values(p.ID, 0)
	res.Trend = a.cfg.Trend(values)

	if a.classifier != nil {
		pr := a.cfg.Pattern(ctx, a.classifier, values)
		res.Stable = pr.Stable
		// A flat window skips the pattern path entirely, so the point
		// reports no anomaly probability at all.
		if !pr.Stable {
			res.AnomalyProbability = pr.Probability
		}
		res.PatternAnomaly = pr.Anomalous(a.cfg.PatternThreshold)
		if pr.Err != nil {
			res.ClassifierError = pr.Err.Error()
			a.logger.Warn("pattern classification failed",
				zap.String("point_id", p.ID), zap.Error(pr.Err))
		}
	}

	if p.Detection.FluctuationEnabled {
		res.FluctuationRate, res.FluctuationDetected = a.cfg.Fluctuation(values, p.Detection.FluctuationRateLimit)
	}
	if p.Detection.MutationEnabled {
		res.Mutation, res.MutationDetected = a.cfg.Mutation(values, p.Detection.MutationLimit)
	}

	if p.Detection.TrendPredictionEnabled && a.forecaster != nil {
		pred := a.cfg.Predict(ctx, a.forecaster, values, lim)
		res.PredictedTrend = pred.Trend
		res.Prediction = pred.Values
		if pred.Err != nil {
			res.PredictionError = pred.Err.Error()
			a.logger.Warn("trend prediction failed",
				zap.String("point_id", p.ID), zap.Error(pred.Err))
		}
		if pred.Alarm != nil {
			res.PredictionAlarm = &analytics.PredictionAlarm{
				PointID:        p.ID,
				Name:           res.Name,
				Level:          pred.Alarm.Level,
				ThresholdName:  pred.Alarm.Name,
				Threshold:      pred.Alarm.Threshold,
				PredictedValue: pred.AlarmValue,
				SecondsToAlarm: pred.SecondsToAlarm,
			}
		}
	}

	res.Status, res.PrimaryClause = Describe(&res, a.cfg.StatusSeparator)
	return res
}
