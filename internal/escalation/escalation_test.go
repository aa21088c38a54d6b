package escalation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/llm"
	"go.uber.org/zap"
)

type fakeProvider struct {
	content      string
	err          error
	heartbeatErr error
	heartbeats   int
	prompts      []string
	calls        []llm.CallConfig
}

func (p *fakeProvider) Generate(_ context.Context, prompt string, opts ...llm.CallOption) (*llm.Response, error) {
	p.prompts = append(p.prompts, prompt)
	p.calls = append(p.calls, llm.ApplyOptions(opts...))
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.content, Model: "deepseek-r1:14b", Done: true}, nil
}

func (p *fakeProvider) Heartbeat(context.Context) error {
	p.heartbeats++
	return p.heartbeatErr
}

func (p *fakeProvider) ListModels(context.Context) ([]string, error) {
	return []string{"deepseek-r1:14b"}, nil
}

func testFault(t *testing.T) *analytics.FaultRecord {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	history := make([]analytics.Sample, 40)
	for i := range history {
		history[i] = analytics.Sample{Timestamp: base.Add(time.Duration(i) * 5 * time.Second), Value: 480 + float64(i)/2}
	}
	return &analytics.FaultRecord{
		ID:         "f-1",
		DetectedAt: base.Add(200 * time.Second),
		Assessment: analytics.PointAssessment{
			PointID:             "TT_EXHAUST_1",
			Name:                "Exhaust temperature 1",
			Description:         "turbine exhaust thermocouple",
			System:              "turbine",
			Unit:                "℃",
			Value:               501,
			AlarmLevel:          analytics.LevelCritical,
			Trend:               analytics.TrendIncreasing,
			PredictedTrend:      analytics.TrendIncreasing,
			FluctuationDetected: true,
			FluctuationRate:     1.25,
			FluctuationLimit:    analytics.Float(1),
			Limits:              analytics.Limits{HHH: analytics.Float(500), HH: analytics.Float(490)},
			Status:              "critical alarm, rising trend",
		},
		Signals:       []string{"critical alarm: critical alarm, rising trend"},
		RecentHistory: history,
	}
}

func testCorrelated() []analytics.CorrelatedPoint {
	return []analytics.CorrelatedPoint{
		{PointID: "TT_EXHAUST_2", Name: "Exhaust temperature 2", Unit: "℃", Relation: analytics.RelationPositive, CurrentValue: 470,
			Analysis: &analytics.PointSummary{Trend: analytics.TrendStable, AlarmLevel: analytics.LevelNormal, AnomalyProbability: 0.1}},
		{PointID: "FUEL_VALVE", Name: "Fuel valve position", Unit: "%", Relation: analytics.RelationNegative, CurrentValue: 62},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(testFault(t), testCorrelated(), 36)

	for _, want := range []string{
		"Point: Exhaust temperature 1 (TT_EXHAUST_1)",
		"Current value: 501 ℃",
		"Alarm level: CRITICAL",
		"HHH alarm: 500 ℃",
		"HH alarm: 490 ℃",
		"Fluctuation: 1.25 ℃/s > limit 1 ℃/s",
		"Positively correlated points (1):",
		"- Exhaust temperature 2: 470 ℃ (trend: STABLE, alarm: NORMAL, anomaly probability: 0.100)",
		"Negatively correlated points (1):",
		"- Fuel valve position: 62 % (trend: unknown, alarm: NORMAL, anomaly probability: 0.000)",
		"Recent data (last 36 samples):",
		"Preventive maintenance",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Only the last 36 of 40 samples are quoted.
	if strings.Contains(prompt, "09:00:15:") {
		t.Error("prompt should not include samples older than the last 36")
	}
	if !strings.Contains(prompt, "09:00:20: 482 ℃") {
		t.Error("prompt should start history at the 36th-from-last sample")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdef", 4, "abcd" + truncationMarker},
		{"rune boundary", "温度温度", 4, "温" + truncationMarker},
		{"no limit", "abcdef", 0, "abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.limit); got != tt.want {
				t.Errorf("Truncate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFullReport_Truncated(t *testing.T) {
	analysis := &analytics.ExpertAnalysis{Text: strings.Repeat("check the thermocouples. ", 400)}
	report := FullReport(testFault(t), testCorrelated(), analysis, 36, 6000)
	if len(report) != 6000+len(truncationMarker) {
		t.Errorf("len = %d, want %d", len(report), 6000+len(truncationMarker))
	}
	if !strings.HasSuffix(report, truncationMarker) {
		t.Error("report should end with the truncation marker")
	}
	if !strings.Contains(report, "Expert analysis report") {
		t.Error("report header missing")
	}
}

func TestFaultReport(t *testing.T) {
	report := FaultReport(testFault(t), testCorrelated())
	for _, want := range []string{
		"Alarm level: CRITICAL",
		"Anomaly probability: 0.000",
		"Anomaly signals: critical alarm: critical alarm, rising trend",
		"Recent data (last 30 samples):",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestService_AnalyzeFault(t *testing.T) {
	p := &fakeProvider{content: "<think>internal reasoning</think>\n  Inspect the exhaust thermocouples.  "}
	s := New(p, DefaultConfig(), zap.NewNop())
	now := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	got, err := s.AnalyzeFault(context.Background(), testFault(t), testCorrelated())
	if err != nil {
		t.Fatalf("AnalyzeFault: %v", err)
	}
	if got.Text != "Inspect the exhaust thermocouples." {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Model != "deepseek-r1:14b" || !got.GeneratedAt.Equal(now) {
		t.Errorf("analysis = %+v", got)
	}

	call := p.calls[0]
	if call.Temperature != 0.3 || call.MaxTokens != 800 || call.TopK != 20 || call.TopP != 0.85 || call.RepeatPenalty != 1.1 {
		t.Errorf("sampling = %+v", call)
	}

	// Health is checked once.
	if _, err := s.AnalyzeFault(context.Background(), testFault(t), nil); err != nil {
		t.Fatalf("second AnalyzeFault: %v", err)
	}
	if p.heartbeats != 1 {
		t.Errorf("heartbeats = %d, want 1", p.heartbeats)
	}
}

func TestService_AnalyzeFault_Failures(t *testing.T) {
	t.Run("health check fails", func(t *testing.T) {
		p := &fakeProvider{heartbeatErr: errors.New("refused")}
		s := New(p, DefaultConfig(), zap.NewNop())
		_, err := s.AnalyzeFault(context.Background(), testFault(t), nil)
		if !analytics.IsCapabilityError(err) {
			t.Fatalf("err = %v, want capability error", err)
		}
		if len(p.prompts) != 0 {
			t.Error("provider should not be called when unhealthy")
		}
	})

	t.Run("server error resets readiness", func(t *testing.T) {
		p := &fakeProvider{err: llm.NewProviderError(llm.ErrCodeServerError, "down", nil)}
		s := New(p, DefaultConfig(), zap.NewNop())
		_, err := s.AnalyzeFault(context.Background(), testFault(t), nil)
		if !llm.IsRetryable(err) || !analytics.IsCapabilityError(err) {
			t.Fatalf("err = %v, want retryable capability error", err)
		}
		s.AnalyzeFault(context.Background(), testFault(t), nil) //nolint:errcheck
		if p.heartbeats != 2 {
			t.Errorf("heartbeats = %d, want 2", p.heartbeats)
		}
	})

	t.Run("empty analysis", func(t *testing.T) {
		p := &fakeProvider{content: "<think>only thoughts</think>"}
		s := New(p, DefaultConfig(), zap.NewNop())
		_, err := s.AnalyzeFault(context.Background(), testFault(t), nil)
		if !errors.Is(err, errEmptyAnalysis) {
			t.Fatalf("err = %v, want empty analysis", err)
		}
	})
}
