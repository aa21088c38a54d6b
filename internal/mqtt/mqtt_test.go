package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/internal/testutil"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
	"github.com/HerbHall/turbinewatch/pkg/plugin/plugintest"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	retain  bool
	payload []byte
}

// fakeClient records publishes. Methods the sink never calls are left to
// the embedded nil interface.
type fakeClient struct {
	pahomqtt.Client
	mu       sync.Mutex
	messages []published
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) Disconnect(uint)   {}
func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, retain: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) byTopic(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, m := range c.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func newTestModule(t *testing.T, cfg Config) (*Module, *fakeClient) {
	t.Helper()
	cat := testutil.NewCatalog(t,
		testutil.NewPoint("GT_LOAD", testutil.WithHigh(400, 450, 500)),
		testutil.NewPoint("Bearing #1 Temp", testutil.WithUnit("℃")),
	)
	m := New(cfg, cat, zap.NewNop())
	fc := &fakeClient{}
	m.client = fc
	return m, fc
}

func TestContract(t *testing.T) {
	plugintest.TestSinkContract(t, func() plugin.Sink { return New(Config{}, nil, zap.NewNop()) })
}

func TestSubscriptions(t *testing.T) {
	m := New(Config{}, nil, zap.NewNop())
	topics := make(map[string]bool)
	for _, s := range m.Subscriptions() {
		topics[s.Topic] = true
	}
	for _, want := range []string{event.TopicCycleCompleted, event.TopicFaultDetected, event.TopicEscalationFinished} {
		if !topics[want] {
			t.Errorf("missing subscription for %q", want)
		}
	}
}

func TestHealth_NoBroker(t *testing.T) {
	m := New(Config{}, nil, zap.NewNop())
	if h := m.Health(context.Background()); h.Status != plugin.StatusHealthy {
		t.Errorf("Health = %+v, want healthy in no-op mode", h)
	}
	m.cfg.BrokerURL = "tcp://127.0.0.1:1883"
	if h := m.Health(context.Background()); h.Status != plugin.StatusDegraded {
		t.Errorf("Health = %+v, want degraded without a client", h)
	}
}

func testCycle() analytics.AlertCycleResult {
	return analytics.AlertCycleResult{
		ID:             "c1",
		Source:         "dcs",
		Timestamp:      testutil.Epoch,
		OverallHealth:  analytics.HealthCritical,
		RiskLevel:      analytics.RiskVeryHigh,
		CriticalAlarms: []string{"GT_LOAD critical"},
		FaultRecords:   []analytics.FaultRecord{{ID: "f1"}},
		Assessments: []analytics.PointAssessment{
			{PointID: "GT_LOAD", Value: 510, AlarmLevel: analytics.LevelCritical, Timestamp: testutil.Epoch},
			{PointID: "Bearing #1 Temp", Value: 71, AlarmLevel: analytics.LevelNormal, Timestamp: testutil.Epoch},
		},
	}
}

func TestHandleCycle(t *testing.T) {
	m, fc := newTestModule(t, Config{TopicPrefix: "tw", PointStates: true})
	m.handleCycle(context.Background(), plugin.Event{Topic: event.TopicCycleCompleted, Payload: testCycle()})

	cycles := fc.byTopic("tw/cycle")
	if len(cycles) != 1 || !cycles[0].retain {
		t.Fatalf("cycle messages = %+v, want one retained", cycles)
	}
	var msg CycleMessage
	if err := json.Unmarshal(cycles[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.OverallHealth != analytics.HealthCritical || msg.Faults != 1 || len(msg.Alarms) != 1 {
		t.Errorf("cycle message = %+v", msg)
	}

	states := fc.byTopic("tw/point/bearing__1_temp/state")
	if len(states) != 1 {
		t.Fatalf("point state messages = %d, want 1", len(states))
	}
	var st PointState
	if err := json.Unmarshal(states[0].payload, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Value != 71 || st.AlarmLevel != analytics.LevelNormal {
		t.Errorf("point state = %+v", st)
	}
}

func TestHandleCycle_PointStatesDisabled(t *testing.T) {
	m, fc := newTestModule(t, Config{TopicPrefix: "tw"})
	m.cfg.PointStates = false
	m.handleCycle(context.Background(), plugin.Event{Payload: testCycle()})
	if len(fc.messages) != 1 {
		t.Errorf("published %d messages, want only the cycle summary", len(fc.messages))
	}
}

func TestHandleFault(t *testing.T) {
	m, fc := newTestModule(t, Config{TopicPrefix: "tw"})
	f := analytics.FaultRecord{
		ID:        "f1",
		Signature: "CRITICAL_critical alarm",
		Signals:   []string{"critical alarm: load high"},
		Assessment: analytics.PointAssessment{
			PointID:    "GT_LOAD",
			Name:       "GT_LOAD",
			Value:      510,
			AlarmLevel: analytics.LevelCritical,
		},
	}
	m.handleFault(context.Background(), plugin.Event{Payload: &f})

	msgs := fc.byTopic("tw/fault/gt_load")
	if len(msgs) != 1 {
		t.Fatalf("fault messages = %d, want 1", len(msgs))
	}
	var msg FaultMessage
	if err := json.Unmarshal(msgs[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Fault.ID != "f1" || !strings.Contains(msg.Report, "GT_LOAD") {
		t.Errorf("fault message = %+v", msg)
	}
}

func TestHandleEscalation(t *testing.T) {
	m, fc := newTestModule(t, Config{TopicPrefix: "tw"})
	esc := analytics.Escalation{
		ID:       "e1",
		Fault:    analytics.FaultRecord{Signature: "protection_breach", Assessment: analytics.PointAssessment{PointID: "GT_LOAD"}},
		Outcome:  analytics.OutcomeSent,
		Attempts: 1,
		Report:   "full report",
	}
	m.handleEscalation(context.Background(), plugin.Event{Payload: esc})
	m.handleEscalation(context.Background(), plugin.Event{Payload: "not an escalation"})

	msgs := fc.byTopic("tw/escalation/sent")
	if len(msgs) != 1 {
		t.Fatalf("escalation messages = %d, want 1", len(msgs))
	}
	var msg EscalationMessage
	if err := json.Unmarshal(msgs[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.PointID != "GT_LOAD" || msg.Report != "full report" || msg.Signature != "protection_breach" {
		t.Errorf("escalation message = %+v", msg)
	}
}

func TestPublishDiscovery(t *testing.T) {
	m, fc := newTestModule(t, Config{TopicPrefix: "tw", HADiscovery: true})
	m.publishDiscovery()

	msgs := fc.byTopic("homeassistant/sensor/tw_gt_load_value/config")
	if len(msgs) != 1 || !msgs[0].retain {
		t.Fatalf("discovery messages = %+v", msgs)
	}
	var cfg SensorConfig
	if err := json.Unmarshal(msgs[0].payload, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.StateTopic != "tw/point/gt_load/state" || cfg.UnitOfMeasurement != "MW" {
		t.Errorf("sensor config = %+v", cfg)
	}
	if cfg.Device.Name != "turbine" {
		t.Errorf("device = %+v, want the point's system", cfg.Device)
	}
	if n := len(fc.messages); n != 4 {
		t.Errorf("published %d discovery configs, want 4", n)
	}
}

func TestSafeObjectID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"GT_LOAD", "gt_load"},
		{"Bearing #1 Temp", "bearing__1_temp"},
		{"--", "unknown"},
		{"10MKA01CE001", "10mka01ce001"},
	}
	for _, tt := range tests {
		if got := SafeObjectID(tt.in); got != tt.want {
			t.Errorf("SafeObjectID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
