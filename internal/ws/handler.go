package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/auth"
	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Sink            = (*Handler)(nil)
	_ plugin.EventSubscriber = (*Handler)(nil)
	_ plugin.HealthChecker   = (*Handler)(nil)
)

// LatestFunc returns the most recent cycle result, or nil before the first.
type LatestFunc func() *analytics.AlertCycleResult

// Handler streams cycle results, faults and escalation outcomes to
// dashboard clients over WebSocket. It is registered as a sink so the
// registry wires its bus subscriptions.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	latest LatestFunc
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler. tokens may be nil when
// authentication is disabled; latest may be nil to skip the snapshot sent
// on connect.
func NewHandler(tokens *auth.TokenService, latest LatestFunc, logger *zap.Logger) *Handler {
	return &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		latest: latest,
		logger: logger,
	}
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/cycles", h.handleCycleStream)
}

func (h *Handler) Info() plugin.SinkInfo {
	return plugin.SinkInfo{
		Name:        "ws",
		Description: "Streams cycle results to dashboard clients over WebSocket",
	}
}

func (h *Handler) Start(_ context.Context) error { return nil }

// Stop disconnects every client.
func (h *Handler) Stop(_ context.Context) error {
	h.hub.CloseAll()
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (h *Handler) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: event.TopicCycleCompleted, Handler: h.onCycle},
		{Topic: event.TopicFaultDetected, Handler: h.onFault},
		{Topic: event.TopicEscalationFinished, Handler: h.onEscalation},
	}
}

// Health implements plugin.HealthChecker.
func (h *Handler) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{
		Status: plugin.StatusHealthy,
		Details: map[string]string{
			"clients": strconv.Itoa(h.hub.ClientCount()),
			"dropped": strconv.FormatUint(h.hub.Dropped(), 10),
		},
	}
}

// handleCycleStream upgrades the connection to WebSocket and streams events.
func (h *Handler) handleCycleStream(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if h.tokens != nil {
		// Browser WebSocket APIs cannot set headers, so the token travels
		// as a query parameter.
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token parameter", http.StatusUnauthorized)
			return
		}
		claims, err := h.tokens.Validate(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		if !claims.Role.Allows(auth.RoleViewer) {
			http.Error(w, "token role may not stream cycles", http.StatusForbidden)
			return
		}
		subject = claims.Subject
	}

	// Clear the server's read/write timeouts; they would otherwise survive
	// the hijack and cut long-lived streams.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Any origin is accepted; access is gated by the token above.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := newClient(conn, subject, h.logger)
	if h.latest != nil {
		if res := h.latest(); res != nil {
			client.send <- cycleMessage(MessageCycleSnapshot, res)
		}
	}
	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until the client disconnects or Stop closes the conn.
	client.readPump(ctx)

	h.hub.Unregister(client)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

func (h *Handler) onCycle(_ context.Context, e plugin.Event) {
	var res *analytics.AlertCycleResult
	switch v := e.Payload.(type) {
	case analytics.AlertCycleResult:
		res = &v
	case *analytics.AlertCycleResult:
		res = v
	}
	if res == nil {
		return
	}
	h.hub.Broadcast(cycleMessage(MessageCycleCompleted, res))
}

func (h *Handler) onFault(_ context.Context, e plugin.Event) {
	var f analytics.FaultRecord
	switch v := e.Payload.(type) {
	case analytics.FaultRecord:
		f = v
	case *analytics.FaultRecord:
		f = *v
	default:
		return
	}
	h.hub.Broadcast(Message{
		Type:      MessageFaultDetected,
		ID:        f.ID,
		Timestamp: e.Timestamp,
		Data:      FaultData{Fault: f},
	})
}

func (h *Handler) onEscalation(_ context.Context, e plugin.Event) {
	var esc analytics.Escalation
	switch v := e.Payload.(type) {
	case analytics.Escalation:
		esc = v
	case *analytics.Escalation:
		esc = *v
	default:
		return
	}
	h.hub.Broadcast(Message{
		Type:      MessageEscalationFinished,
		ID:        esc.ID,
		Timestamp: esc.FinishedAt,
		Data: EscalationData{
			PointID:   esc.Fault.Assessment.PointID,
			Signature: esc.Fault.Signature,
			Outcome:   esc.Outcome,
			Attempts:  esc.Attempts,
			Report:    esc.Report,
			Error:     esc.Error,
		},
	})
}
