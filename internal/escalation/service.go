// Package escalation turns escalated fault records into expert analysis by
// prompting an LLM provider, and renders the resulting reports.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/llm"
	"go.uber.org/zap"
)

var errEmptyAnalysis = errors.New("provider returned an empty analysis")

// reasoning models wrap their chain of thought in <think> tags.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Service implements analytics.FaultAnalyzer on top of an llm.Provider.
type Service struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
	ready    atomic.Bool
	now      func() time.Time
}

var _ analytics.FaultAnalyzer = (*Service)(nil)

// New creates an escalation service.
func New(provider llm.Provider, cfg Config, logger *zap.Logger) *Service {
	d := DefaultConfig()
	if cfg.HistoryPoints <= 0 {
		cfg.HistoryPoints = d.HistoryPoints
	}
	if cfg.ReportLimit <= 0 {
		cfg.ReportLimit = d.ReportLimit
	}
	return &Service{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// AnalyzeFault checks provider health before the first call (and again after
// the provider was found unreachable), then requests an analysis. Every
// failure is returned as an analytics.CapabilityError.
func (s *Service) AnalyzeFault(ctx context.Context, f *analytics.FaultRecord, correlated []analytics.CorrelatedPoint) (*analytics.ExpertAnalysis, error) {
	if !s.ready.Load() {
		if hr, ok := s.provider.(llm.HealthReporter); ok {
			if err := hr.Heartbeat(ctx); err != nil {
				return nil, analytics.NewCapabilityError(analytics.CapabilityAnalyze, fmt.Errorf("health check: %w", err))
			}
		}
		s.ready.Store(true)
		s.logger.Info("analysis service ready")
	}

	prompt := BuildPrompt(f, correlated, s.cfg.HistoryPoints)
	resp, err := s.provider.Generate(ctx, prompt, s.options()...)
	if err != nil {
		if llm.IsServerError(err) {
			s.ready.Store(false)
		}
		return nil, analytics.NewCapabilityError(analytics.CapabilityAnalyze, err)
	}

	text := strings.TrimSpace(thinkBlock.ReplaceAllString(resp.Content, ""))
	if text == "" {
		return nil, analytics.NewCapabilityError(analytics.CapabilityAnalyze, errEmptyAnalysis)
	}

	s.logger.Debug("fault analysed",
		zap.String("point_id", f.Assessment.PointID),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.Usage.TotalTokens),
	)
	// LLM-only analysis carries no retrieval evidence, so confidence stays 0.
	return &analytics.ExpertAnalysis{
		Text:        text,
		Model:       resp.Model,
		GeneratedAt: s.now(),
	}, nil
}

// Report renders the notification text for an analysed fault.
func (s *Service) Report(f *analytics.FaultRecord, correlated []analytics.CorrelatedPoint, analysis *analytics.ExpertAnalysis) string {
	return FullReport(f, correlated, analysis, s.cfg.HistoryPoints, s.cfg.ReportLimit)
}

func (s *Service) options() []llm.CallOption {
	opts := []llm.CallOption{
		llm.WithTemperature(s.cfg.Temperature),
		llm.WithMaxTokens(s.cfg.MaxTokens),
		llm.WithTopK(s.cfg.TopK),
		llm.WithTopP(s.cfg.TopP),
		llm.WithRepeatPenalty(s.cfg.RepeatPenalty),
	}
	if s.cfg.Model != "" {
		opts = append(opts, llm.WithModel(s.cfg.Model))
	}
	return opts
}
