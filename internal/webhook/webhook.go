// Package webhook delivers escalation reports to an HTTP endpoint. Each
// request body is signed with HMAC-SHA256 when a secret is configured.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Sink            = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// Request headers.
const (
	HeaderSignature = "X-TurbineWatch-Signature"
	HeaderEvent     = "X-TurbineWatch-Event"
	userAgent       = "TurbineWatch-Webhook/1.0"
)

// Config holds the webhook sink configuration.
type Config struct {
	URL             string        `mapstructure:"url"`
	Secret          string        `mapstructure:"secret"` //nolint:gosec // G101: config field name
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryCount      int           `mapstructure:"retry_count"`
	RetryWait       time.Duration `mapstructure:"retry_wait"`
	NotifyAbandoned bool          `mapstructure:"notify_abandoned"`
}

// DefaultConfig returns the sink defaults. The sink is idle until a URL is
// configured.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		RetryCount: 2,
		RetryWait:  time.Second,
	}
}

// Module implements the webhook notification sink.
type Module struct {
	logger *zap.Logger
	cfg    Config
	client *resty.Client
}

// New creates a webhook sink.
func New(cfg Config, logger *zap.Logger) *Module {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = d.RetryWait
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4*cfg.RetryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", userAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Module{cfg: cfg, logger: logger, client: client}
}

func (m *Module) Info() plugin.SinkInfo {
	return plugin.SinkInfo{
		Name:        "webhook",
		Description: "Sends signed HTTP POST notifications with escalation reports",
	}
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.URL == "" {
		m.logger.Warn("webhook URL not configured; notifications will be dropped",
			zap.String("component", "webhook"),
		)
		return nil
	}
	m.logger.Info("webhook sink started",
		zap.String("component", "webhook"),
		zap.String("url", m.cfg.URL),
		zap.Bool("signed", m.cfg.Secret != ""),
	)
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: event.TopicEscalationFinished, Handler: m.handleEscalation},
	}
}

// WebhookPayload is the JSON body sent to the webhook URL.
type WebhookPayload struct {
	Event     string       `json:"event"`
	Source    string       `json:"source"`
	Timestamp string       `json:"timestamp"`
	Data      Notification `json:"data"`
}

// Notification is the escalation summary carried by a webhook.
type Notification struct {
	EscalationID string                      `json:"escalation_id"`
	PointID      string                      `json:"point_id"`
	PointName    string                      `json:"point_name"`
	AlarmLevel   analytics.AlarmLevel        `json:"alarm_level"`
	Value        float64                     `json:"value"`
	Signature    string                      `json:"alarm_signature"`
	Outcome      analytics.EscalationOutcome `json:"outcome"`
	Report       string                      `json:"report,omitempty"`
	Error        string                      `json:"error,omitempty"`
}

func (m *Module) handleEscalation(ctx context.Context, e plugin.Event) {
	if m.cfg.URL == "" {
		return
	}
	var esc analytics.Escalation
	switch v := e.Payload.(type) {
	case analytics.Escalation:
		esc = v
	case *analytics.Escalation:
		esc = *v
	default:
		return
	}
	if esc.Outcome != analytics.OutcomeSent && !m.cfg.NotifyAbandoned {
		return
	}

	a := &esc.Fault.Assessment
	body, err := json.Marshal(WebhookPayload{
		Event:     e.Topic,
		Source:    e.Source,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Data: Notification{
			EscalationID: esc.ID,
			PointID:      a.PointID,
			PointName:    a.Name,
			AlarmLevel:   a.AlarmLevel,
			Value:        a.Value,
			Signature:    esc.Fault.Signature,
			Outcome:      esc.Outcome,
			Report:       esc.Report,
			Error:        esc.Error,
		},
	})
	if err != nil {
		m.logger.Error("failed to marshal webhook payload",
			zap.String("topic", e.Topic),
			zap.Error(err),
		)
		return
	}

	m.send(ctx, body, e.Topic)
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (m *Module) send(ctx context.Context, body []byte, topic string) {
	req := m.client.R().
		SetContext(ctx).
		SetHeader(HeaderEvent, topic).
		SetBody(body)
	if m.cfg.Secret != "" {
		req.SetHeader(HeaderSignature, Sign(m.cfg.Secret, body))
	}

	resp, err := req.Post(m.cfg.URL)
	if err != nil {
		m.logger.Warn("webhook delivery failed",
			zap.String("url", m.cfg.URL),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}
	if resp.IsError() {
		m.logger.Warn("webhook endpoint returned error",
			zap.String("url", m.cfg.URL),
			zap.String("topic", topic),
			zap.Int("status_code", resp.StatusCode()),
		)
		return
	}

	m.logger.Debug("webhook delivered",
		zap.String("topic", topic),
		zap.Int("status_code", resp.StatusCode()),
	)
}
