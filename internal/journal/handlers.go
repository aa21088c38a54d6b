package journal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/auth"
	"github.com/HerbHall/turbinewatch/internal/problem"
)

// RegisterRoutes mounts the read-only journal API. Every route requires a
// viewer token when authentication is enabled.
func (m *Module) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/journal/cycles", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(m.handleCycles)))
	mux.Handle("GET /api/v1/journal/faults", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(m.handleFaults)))
	mux.Handle("GET /api/v1/journal/faults/{point_id}", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(m.handleFaults)))
	mux.Handle("GET /api/v1/journal/escalations", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(m.handleEscalations)))
}

// handleCycles returns the most recent cycle summaries, newest first.
func (m *Module) handleCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := m.store.RecentCycles(r.Context(), parseLimit(r, 50))
	if err != nil {
		m.logger.Error("list journal cycles", zap.Error(err))
		problem.InternalError(w, "failed to list cycles", r.URL.Path)
		return
	}
	if cycles == nil {
		cycles = []CycleEntry{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

// handleFaults returns fault records, optionally for one point.
func (m *Module) handleFaults(w http.ResponseWriter, r *http.Request) {
	faults, err := m.store.Faults(r.Context(), r.PathValue("point_id"), parseLimit(r, 50))
	if err != nil {
		m.logger.Error("list journal faults", zap.Error(err))
		problem.InternalError(w, "failed to list faults", r.URL.Path)
		return
	}
	if faults == nil {
		faults = []FaultEntry{}
	}
	writeJSON(w, http.StatusOK, faults)
}

func (m *Module) handleEscalations(w http.ResponseWriter, r *http.Request) {
	escs, err := m.store.Escalations(r.Context(), parseLimit(r, 50))
	if err != nil {
		m.logger.Error("list journal escalations", zap.Error(err))
		problem.InternalError(w, "failed to list escalations", r.URL.Path)
		return
	}
	if escs == nil {
		escs = []EscalationEntry{}
	}
	writeJSON(w, http.StatusOK, escs)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
