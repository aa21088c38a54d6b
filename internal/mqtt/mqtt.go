package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/internal/escalation"
	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Sink            = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module is the MQTT result and notification sink. It publishes cycle
// summaries, per-point states, fault reports and escalation reports, and
// optionally Home Assistant discovery configs for every catalog point.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	catalog *catalog.Catalog
	client  pahomqtt.Client
	mu      sync.RWMutex
}

// New creates an MQTT sink. cat may be nil when discovery is disabled.
func New(cfg Config, cat *catalog.Catalog, logger *zap.Logger) *Module {
	return &Module{cfg: cfg.withDefaults(), catalog: cat, logger: logger}
}

func (m *Module) Info() plugin.SinkInfo {
	return plugin.SinkInfo{
		Name:        "mqtt",
		Description: "Publishes cycle results and escalation reports to an MQTT broker",
	}
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.BrokerURL == "" {
		m.logger.Info("mqtt sink started (no-op: no broker configured)", zap.String("component", "mqtt"))
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(m.cfg.Timeout).
		SetOnConnectHandler(func(pahomqtt.Client) {
			// Discovery configs are retained, so republishing on every
			// (re)connect keeps HA in sync with the current catalog.
			if m.cfg.HADiscovery {
				m.publishDiscovery()
			}
		})

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password) //nolint:gosec // G101: config field
	}

	client := pahomqtt.NewClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	token := client.Connect()
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		m.logger.Warn("mqtt connection failed; will reconnect in background",
			zap.Error(token.Error()),
		)
	default:
		m.logger.Info("mqtt connected to broker",
			zap.String("broker_url", m.cfg.BrokerURL),
			zap.String("topic_prefix", m.cfg.TopicPrefix),
		)
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}
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
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.cfg.BrokerURL == "" {
		return plugin.HealthStatus{
			Status:  plugin.StatusHealthy,
			Message: "no broker configured (no-op mode)",
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{
			Status:  plugin.StatusDegraded,
			Message: "not connected to MQTT broker",
		}
	}
	return plugin.HealthStatus{
		Status:  plugin.StatusHealthy,
		Message: "connected to " + m.cfg.BrokerURL,
	}
}

// CycleMessage is the compact cycle summary published on <prefix>/cycle.
type CycleMessage struct {
	ID               string                      `json:"id"`
	Source           string                      `json:"data_source"`
	Timestamp        time.Time                   `json:"timestamp"`
	OverallHealth    analytics.Health            `json:"overall_health"`
	RiskLevel        analytics.Risk              `json:"risk_level"`
	Summary          string                      `json:"summary"`
	Alarms           []string                    `json:"alarms"`
	Warnings         []string                    `json:"warnings"`
	Faults           int                         `json:"fault_count"`
	PredictionAlarms []analytics.PredictionAlarm `json:"prediction_alarms"`
}

// PointState is the retained state of one point.
type PointState struct {
	PointID            string               `json:"point_id"`
	Value              float64              `json:"value"`
	AlarmLevel         analytics.AlarmLevel `json:"alarm_level"`
	Trend              analytics.Trend      `json:"trend"`
	AnomalyProbability float64              `json:"anomaly_probability"`
	Status             string               `json:"status"`
	Timestamp          time.Time            `json:"timestamp"`
}

// FaultMessage carries a fault record and its plain-text report.
type FaultMessage struct {
	Fault  analytics.FaultRecord `json:"fault"`
	Report string                `json:"report"`
}

// EscalationMessage is the notification published for a finished escalation.
type EscalationMessage struct {
	ID         string                      `json:"id"`
	PointID    string                      `json:"point_id"`
	Signature  string                      `json:"alarm_signature"`
	Outcome    analytics.EscalationOutcome `json:"outcome"`
	Attempts   int                         `json:"attempts"`
	Report     string                      `json:"report,omitempty"`
	Error      string                      `json:"error,omitempty"`
	FinishedAt time.Time                   `json:"finished_at"`
}

func (m *Module) handleCycle(_ context.Context, e plugin.Event) {
	res, ok := cycleFromPayload(e.Payload)
	if !ok {
		return
	}
	m.publish(m.cfg.TopicPrefix+"/cycle", true, CycleMessage{
		ID:               res.ID,
		Source:           res.Source,
		Timestamp:        res.Timestamp,
		OverallHealth:    res.OverallHealth,
		RiskLevel:        res.RiskLevel,
		Summary:          res.Summary,
		Alarms:           res.CriticalAlarms,
		Warnings:         res.Warnings,
		Faults:           len(res.FaultRecords),
		PredictionAlarms: res.PredictionAlarms,
	})
	if !m.cfg.PointStates {
		return
	}
	for i := range res.Assessments {
		a := &res.Assessments[i]
		m.publish(PointStateTopic(m.cfg.TopicPrefix, a.PointID), true, PointState{
			PointID:            a.PointID,
			Value:              a.Value,
			AlarmLevel:         a.AlarmLevel,
			Trend:              a.Trend,
			AnomalyProbability: a.AnomalyProbability,
			Status:             a.Status,
			Timestamp:          a.Timestamp,
		})
	}
}

func (m *Module) handleFault(_ context.Context, e plugin.Event) {
	var f analytics.FaultRecord
	switch v := e.Payload.(type) {
	case analytics.FaultRecord:
		f = v
	case *analytics.FaultRecord:
		f = *v
	default:
		return
	}
	m.publish(m.cfg.TopicPrefix+"/fault/"+SafeObjectID(f.Assessment.PointID), false, FaultMessage{
		Fault:  f,
		Report: escalation.FaultReport(&f, nil),
	})
}

func (m *Module) handleEscalation(_ context.Context, e plugin.Event) {
	var esc analytics.Escalation
	switch v := e.Payload.(type) {
	case analytics.Escalation:
		esc = v
	case *analytics.Escalation:
		esc = *v
	default:
		return
	}
	m.publish(m.cfg.TopicPrefix+"/escalation/"+string(esc.Outcome), false, EscalationMessage{
		ID:         esc.ID,
		PointID:    esc.Fault.Assessment.PointID,
		Signature:  esc.Fault.Signature,
		Outcome:    esc.Outcome,
		Attempts:   esc.Attempts,
		Report:     esc.Report,
		Error:      esc.Error,
		FinishedAt: esc.FinishedAt,
	})
}

func cycleFromPayload(payload any) (*analytics.AlertCycleResult, bool) {
	switch v := payload.(type) {
	case analytics.AlertCycleResult:
		return &v, true
	case *analytics.AlertCycleResult:
		return v, v != nil
	default:
		return nil, false
	}
}

func (m *Module) publish(topic string, retain bool, payload any) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil || !m.client.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("failed to marshal MQTT payload",
			zap.String("mqtt_topic", topic),
			zap.Error(err),
		)
		return
	}

	token := m.client.Publish(topic, m.cfg.QoS, retain, data)
	if !token.WaitTimeout(m.cfg.Timeout) {
		m.logger.Warn("mqtt publish timed out", zap.String("mqtt_topic", topic))
		return
	}
	if token.Error() != nil {
		m.logger.Warn("mqtt publish failed",
			zap.String("mqtt_topic", topic),
			zap.Error(token.Error()),
		)
		return
	}
	m.logger.Debug("mqtt message published", zap.String("mqtt_topic", topic))
}

// publishDiscovery publishes HA discovery configs for every catalog point.
func (m *Module) publishDiscovery() {
	if m.catalog == nil {
		return
	}
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return
	}

	n := 0
	for _, p := range m.catalog.Points() {
		for _, cfg := range BuildPointDiscoveryConfigs(p, m.cfg.TopicPrefix, m.cfg.HADiscoveryPrefix) {
			// Discovery configs are always retained so HA picks them up on restart.
			token := client.Publish(cfg.Topic, m.cfg.QoS, true, cfg.Payload)
			if !token.WaitTimeout(m.cfg.Timeout) || token.Error() != nil {
				m.logger.Warn("ha discovery publish failed",
					zap.String("topic", cfg.Topic),
					zap.Error(token.Error()),
				)
				continue
			}
			n++
		}
	}
	m.logger.Debug("ha discovery published", zap.Int("configs", n))
}
