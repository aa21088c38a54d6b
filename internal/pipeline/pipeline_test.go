package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/alert"
	"github.com/HerbHall/turbinewatch/internal/analysis"
	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/internal/history"
	"github.com/HerbHall/turbinewatch/internal/testutil"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/llm"
)

type fakeAnalyst struct {
	mu    sync.Mutex
	errs  []error // per-call errors; calls past the end succeed
	calls int
}

func (a *fakeAnalyst) AnalyzeFault(_ context.Context, f *analytics.FaultRecord, _ []analytics.CorrelatedPoint) (*analytics.ExpertAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.calls <= len(a.errs) && a.errs[a.calls-1] != nil {
		return nil, a.errs[a.calls-1]
	}
	return &analytics.ExpertAnalysis{Text: "inspect " + f.Assessment.PointID}, nil
}

func (a *fakeAnalyst) Report(f *analytics.FaultRecord, _ []analytics.CorrelatedPoint, an *analytics.ExpertAnalysis) string {
	return "report: " + an.Text
}

type fixture struct {
	p       *Pipeline
	bus     *testutil.MockBus
	analyst *fakeAnalyst
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	cat := testutil.NewCatalog(t,
		testutil.NewPoint("GT_LOAD", testutil.WithHigh(400, 450, 500), testutil.WithCorrelations([]string{"FUEL_FLOW"}, nil)),
		testutil.NewPoint("FUEL_FLOW", testutil.WithUnit("kg/s")),
	)
	store := history.New(500)
	bus := testutil.NewMockBus()
	analyst := &fakeAnalyst{}
	p := New(cfg, EscalationConfig{RatePerMinute: 0}, Deps{
		Catalog:    cat,
		History:    store,
		Analyzer:   analysis.NewAnalyzer(analysis.DefaultConfig(), store, nil, nil, zap.NewNop()),
		Correlator: alert.New(alert.DefaultConfig(), cat, store, zap.NewNop()),
		Analyst:    analyst,
		Bus:        bus,
		Logger:     zap.NewNop(),
	})
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return &fixture{p: p, bus: bus, analyst: analyst}
}

// start runs the pipeline until the returned stop function is called.
func (f *fixture) start(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.p.Run(ctx) }()
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Error("pipeline did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func batch(ts time.Time, values map[string]float64) analytics.Batch {
	return analytics.Batch{Source: "dcs", Timestamp: ts, Values: values}
}

func TestPipeline_CriticalBatchEscalates(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	if err := f.p.Submit(batch(testutil.Epoch, map[string]float64{"GT_LOAD": 510, "FUEL_FLOW": 12, "UNKNOWN": 1})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "escalation", func() bool { return len(f.bus.Events(event.TopicEscalationFinished)) == 1 })

	res := f.p.Latest()
	if res == nil {
		t.Fatal("Latest() = nil after a cycle")
	}
	if res.OverallHealth != analytics.HealthCritical {
		t.Errorf("health = %s, want CRITICAL", res.OverallHealth)
	}
	if len(res.Assessments) != 2 {
		t.Errorf("assessments = %d, want 2 (unknown points ignored)", len(res.Assessments))
	}
	if len(f.bus.Events(event.TopicCycleCompleted)) != 1 || len(f.bus.Events(event.TopicFaultDetected)) != 1 {
		t.Errorf("events = %d cycle, %d fault", len(f.bus.Events(event.TopicCycleCompleted)), len(f.bus.Events(event.TopicFaultDetected)))
	}

	esc := f.bus.Events(event.TopicEscalationFinished)[0].Payload.(analytics.Escalation)
	if esc.Outcome != analytics.OutcomeSent || esc.Attempts != 1 {
		t.Errorf("escalation = %s after %d attempts", esc.Outcome, esc.Attempts)
	}
	if esc.Report != "report: inspect GT_LOAD" {
		t.Errorf("report = %q", esc.Report)
	}
	if len(esc.Correlated) != 1 || esc.Correlated[0].PointID != "FUEL_FLOW" {
		t.Errorf("correlated = %+v", esc.Correlated)
	}
}

func TestPipeline_CooldownSuppressesRepeat(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	f.p.Submit(batch(testutil.Epoch, map[string]float64{"GT_LOAD": 510}))                     //nolint:errcheck
	f.p.Submit(batch(testutil.Epoch.Add(5*time.Second), map[string]float64{"GT_LOAD": 512})) //nolint:errcheck
	waitFor(t, "two cycles", func() bool { return f.p.Cycles() == 2 })
	waitFor(t, "escalation", func() bool { return len(f.bus.Events(event.TopicEscalationFinished)) == 1 })

	faults := f.bus.Events(event.TopicFaultDetected)
	if len(faults) != 2 {
		t.Fatalf("fault events = %d, want 2", len(faults))
	}
	if second := faults[1].Payload.(analytics.FaultRecord); second.ShouldEscalate {
		t.Error("repeat fault inside the cooldown window should not escalate")
	}
	// Give a stray escalation a chance to show up.
	time.Sleep(20 * time.Millisecond)
	if n := len(f.bus.Events(event.TopicEscalationFinished)); n != 1 {
		t.Errorf("escalations = %d, want 1", n)
	}
}

func TestPipeline_MissingTimestampDropped(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.p.process(context.Background(), analytics.Batch{ID: "b1", Values: map[string]float64{"GT_LOAD": 1}})
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("err = %v, want ErrDropped", err)
	}
	if f.p.Latest() != nil {
		t.Error("a dropped batch must not produce a cycle result")
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	f := newFixture(t, Config{QueueSize: 1})
	if err := f.p.Submit(batch(testutil.Epoch, map[string]float64{"GT_LOAD": 1})); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	err := f.p.Submit(batch(testutil.Epoch, map[string]float64{"GT_LOAD": 1}))
	if !errors.Is(err, ErrQueueFull) || !errors.Is(err, ErrDropped) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestRun_DrainsQueuedBatchesOnShutdown(t *testing.T) {
	f := newFixture(t, Config{})
	for i := range 3 {
		ts := testutil.Epoch.Add(time.Duration(i) * 5 * time.Second)
		if err := f.p.Submit(batch(ts, map[string]float64{"GT_LOAD": 300})); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.p.Cycles() != 3 {
		t.Errorf("cycles = %d, want 3", f.p.Cycles())
	}
	if err := f.p.Submit(batch(testutil.Epoch, map[string]float64{"GT_LOAD": 1})); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after shutdown = %v, want ErrStopped", err)
	}
}

func TestProcess_ExpiredContextLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.p.process(ctx, batch(testutil.Epoch, map[string]float64{"GT_LOAD": 300, "FUEL_FLOW": 12}))
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("process = %v, want ErrDropped", err)
	}
	for _, id := range []string{"GT_LOAD", "FUEL_FLOW"} {
		if got := f.p.deps.History.Values(id, 0); len(got) != 0 {
			t.Errorf("%s history = %v, want empty", id, got)
		}
	}
	if f.p.Cycles() != 0 || f.p.Latest() != nil {
		t.Error("dropped batch must not produce a cycle")
	}
}

func testJob() escalationJob {
	return escalationJob{fault: analytics.FaultRecord{
		ID:         "f1",
		Signature:  "CRITICAL_critical alarm",
		Assessment: analytics.PointAssessment{PointID: "GT_LOAD"},
	}}
}

func TestEscalate_RetriesThenSends(t *testing.T) {
	f := newFixture(t, Config{})
	f.p.ecfg.RetryBackoff = 10 * time.Second
	var slept []time.Duration
	f.p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	f.analyst.errs = []error{errors.New("connection reset")}

	esc := f.p.escalate(context.Background(), testJob())
	if esc.Outcome != analytics.OutcomeSent || esc.Attempts != 2 {
		t.Fatalf("escalation = %s after %d attempts, want sent after 2", esc.Outcome, esc.Attempts)
	}
	if len(slept) != 1 || slept[0] != 10*time.Second {
		t.Errorf("backoff = %v, want [10s]", slept)
	}
}

func TestEscalate_FixedBackoff(t *testing.T) {
	f := newFixture(t, Config{})
	f.p.ecfg.MaxAttempts = 3
	f.p.ecfg.RetryBackoff = 10 * time.Second
	var slept []time.Duration
	f.p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	f.analyst.errs = []error{errors.New("502"), errors.New("502"), errors.New("502")}

	esc := f.p.escalate(context.Background(), testJob())
	if esc.Outcome != analytics.OutcomeAbandoned || esc.Attempts != 3 {
		t.Fatalf("escalation = %s after %d attempts, want abandoned after 3", esc.Outcome, esc.Attempts)
	}
	if len(slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(slept))
	}
	for i, d := range slept {
		if d != 10*time.Second {
			t.Errorf("backoff[%d] = %v, want 10s", i, d)
		}
	}
}

func TestEscalate_Abandoned(t *testing.T) {
	tests := []struct {
		name     string
		errs     []error
		attempts int
	}{
		{"retries exhausted", []error{errors.New("timeout"), errors.New("timeout")}, 2},
		{"not retryable", []error{llm.NewProviderError(llm.ErrCodeAuthentication, "denied", nil)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.analyst.errs = tt.errs

			esc := f.p.escalate(context.Background(), testJob())
			if esc.Outcome != analytics.OutcomeAbandoned {
				t.Errorf("outcome = %s, want abandoned", esc.Outcome)
			}
			if esc.Attempts != tt.attempts {
				t.Errorf("attempts = %d, want %d", esc.Attempts, tt.attempts)
			}
			if esc.Error == "" || esc.Analysis != nil {
				t.Errorf("escalation = %+v", esc)
			}
		})
	}
}

func TestEscalate_CancelledDuringBackoff(t *testing.T) {
	f := newFixture(t, Config{})
	f.p.sleep = sleepCtx
	f.p.ecfg.RetryBackoff = time.Hour
	f.analyst.errs = []error{errors.New("busy")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	esc := f.p.escalate(ctx, testJob())
	if esc.Outcome != analytics.OutcomeAbandoned {
		t.Errorf("outcome = %s, want abandoned", esc.Outcome)
	}
}

func TestHousekeeping(t *testing.T) {
	f := newFixture(t, Config{HousekeepingInterval: time.Minute})
	rotations := 0
	f.p.deps.Rotate = func() error { rotations++; return nil }
	f.p.deps.RotateEvery = time.Hour

	cd := f.p.deps.Correlator.Cooldown()
	old := time.Now().Add(-48 * time.Hour)
	cd.Allow("GT_LOAD", "protection_breach", old)

	start := f.p.lastPurge
	f.p.housekeeping(start.Add(30 * time.Second))
	if cd.Len() != 1 {
		t.Error("purge should wait for the housekeeping interval")
	}
	f.p.housekeeping(start.Add(2 * time.Minute))
	if cd.Len() != 0 {
		t.Errorf("cooldown entries = %d, want 0 after purge", cd.Len())
	}
	if rotations != 0 {
		t.Error("rotation should wait for its interval")
	}
	f.p.housekeeping(start.Add(61 * time.Minute))
	if rotations != 1 {
		t.Errorf("rotations = %d, want 1", rotations)
	}
}
