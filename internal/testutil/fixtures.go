// Package testutil provides fixtures shared by package tests: point
// configurations, catalogs, sample series and a recording event bus.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// Epoch is the default start time of generated series.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewPoint returns a point with no thresholds or detectors configured.
// Override individual fields with options.
func NewPoint(id string, opts ...func(*catalog.PointConfig)) *catalog.PointConfig {
	p := &catalog.PointConfig{
		ID:          id,
		DisplayName: id,
		System:      "turbine",
		Unit:        "MW",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithUnit sets the point unit.
func WithUnit(unit string) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) { p.Unit = unit }
}

// WithHigh sets literal H, HH and HHH thresholds.
func WithHigh(h, hh, hhh float64) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) {
		p.Thresholds.H = catalog.LiteralThreshold(h)
		p.Thresholds.HH = catalog.LiteralThreshold(hh)
		p.Thresholds.HHH = catalog.LiteralThreshold(hhh)
	}
}

// WithLow sets literal L, LL and LLL thresholds.
func WithLow(l, ll, lll float64) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) {
		p.Thresholds.L = catalog.LiteralThreshold(l)
		p.Thresholds.LL = catalog.LiteralThreshold(ll)
		p.Thresholds.LLL = catalog.LiteralThreshold(lll)
	}
}

// WithProtection sets the protection limits.
func WithProtection(lower, upper float64) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) {
		p.Protection.Lower = analytics.Float(lower)
		p.Protection.Upper = analytics.Float(upper)
	}
}

// WithFluctuation enables fluctuation detection with limit (units/s).
func WithFluctuation(limit float64) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) {
		p.Detection.FluctuationEnabled = true
		p.Detection.FluctuationRateLimit = analytics.Float(limit)
	}
}

// WithMutation enables mutation detection with limit.
func WithMutation(limit float64) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) {
		p.Detection.MutationEnabled = true
		p.Detection.MutationLimit = analytics.Float(limit)
	}
}

// WithPrediction enables trend prediction.
func WithPrediction() func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) { p.Detection.TrendPredictionEnabled = true }
}

// WithCorrelations sets the positive and negative correlation lists.
func WithCorrelations(positive, negative []string) func(*catalog.PointConfig) {
	return func(p *catalog.PointConfig) {
		p.Correlations.Positive = positive
		p.Correlations.Negative = negative
	}
}

// NewCatalog builds a non-strict catalog from points and fails the test on
// error.
func NewCatalog(t *testing.T, points ...*catalog.PointConfig) *catalog.Catalog {
	t.Helper()
	for i, p := range points {
		p.Index = i + 1
	}
	c, err := catalog.FromPoints(points, false)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return c
}

// Series returns samples starting at Epoch spaced step apart.
func Series(step time.Duration, values ...float64) []analytics.Sample {
	out := make([]analytics.Sample, len(values))
	for i, v := range values {
		out[i] = analytics.Sample{Timestamp: Epoch.Add(time.Duration(i) * step), Value: v}
	}
	return out
}

// Constant returns n copies of v.
func Constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Ramp returns n values starting at start and increasing by step.
func Ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// MockBus records published events. It satisfies plugin.Publisher.
type MockBus struct {
	mu     sync.Mutex
	events []plugin.Event
}

// NewMockBus creates an empty recording bus.
func NewMockBus() *MockBus {
	return &MockBus{}
}

// Publish records the event.
func (b *MockBus) Publish(_ context.Context, e plugin.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

// Events returns the recorded events for topic, or all events when topic
// is empty.
func (b *MockBus) Events(topic string) []plugin.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []plugin.Event
	for _, e := range b.events {
		if topic == "" || e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
