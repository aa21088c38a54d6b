// Package server provides the HTTP surface of the engine: probes, metrics,
// batch ingestion and read access to cycle results and the point catalog.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/turbinewatch/internal/auth"
	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/internal/problem"
	"github.com/HerbHall/turbinewatch/internal/version"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// Engine exposes the pipeline state served by the API. Defined here
// (consumer-side) rather than importing the concrete pipeline.
type Engine interface {
	Latest() *analytics.AlertCycleResult
	Cycles() int64
}

// SinkHealth reports the health of the registered sinks.
type SinkHealth interface {
	Health(ctx context.Context) map[string]plugin.HealthStatus
}

// ReadinessChecker verifies that the server is ready to serve traffic.
// Returns nil if ready, an error describing why not otherwise.
type ReadinessChecker func(ctx context.Context) error

// RouteRegistrar allows other packages to mount routes on the server mux
// without creating import cycles.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Deps are the collaborators of the server. Engine and Ingest are
// required; everything else is optional.
type Deps struct {
	Engine  Engine
	Catalog *catalog.Catalog
	Ingest  http.Handler // POST /api/v1/batches
	Sinks   SinkHealth
	Ready   ReadinessChecker
	Tokens  *auth.TokenService // nil disables authentication
	Routes  []RouteRegistrar
	Logger  *zap.Logger
}

// Server is the engine's HTTP server.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *zap.Logger
	mux        *http.ServeMux
}

// operationalPaths bypass rate limiting and request logging.
var operationalPaths = []string{"/healthz", "/readyz", "/metrics"}

// New creates a Server with middleware and routes.
func New(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	mux := http.NewServeMux()

	s := &Server{
		deps:   deps,
		logger: deps.Logger,
		mux:    mux,
	}
	s.registerRoutes()
	for _, r := range deps.Routes {
		r.RegisterRoutes(mux)
	}

	// Middleware chain: outermost listed first.
	middlewares := []Middleware{
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware,
		LoggingMiddleware(s.logger, operationalPaths),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, operationalPaths),
	}
	if deps.Tokens != nil {
		middlewares = append(middlewares, auth.Middleware(deps.Tokens))
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      Chain(recordRoute(mux), middlewares...),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// registerRoutes sets up all core routes.
func (s *Server) registerRoutes() {
	// Unversioned operational endpoints.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned API endpoints.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	if s.deps.Ingest != nil {
		s.mux.Handle("POST /api/v1/batches", auth.RequireRole(auth.RoleCollector, s.deps.Ingest))
	}
	s.mux.Handle("GET /api/v1/cycles/latest", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(s.handleLatestCycle)))
	s.mux.Handle("GET /api/v1/points", auth.RequireRole(auth.RoleViewer, http.HandlerFunc(s.handlePoints)))
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz is a liveness probe -- returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz checks readiness -- returns 200 if the server can serve traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string                         `json:"status"`
	Service string                         `json:"service"`
	Version map[string]string              `json:"version"`
	Cycles  int64                          `json:"cycles"`
	Sinks   map[string]plugin.HealthStatus `json:"sinks,omitempty"`
}

// handleHealth returns the engine status with version information and the
// health of every sink. The status is "degraded" when any sink is not
// healthy; the endpoint itself always answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Service: "turbinewatch",
		Version: version.Map(),
	}
	if s.deps.Engine != nil {
		resp.Cycles = s.deps.Engine.Cycles()
	}
	if s.deps.Sinks != nil {
		resp.Sinks = s.deps.Sinks.Health(r.Context())
		for _, h := range resp.Sinks {
			if h.Status != plugin.StatusHealthy {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLatestCycle returns the most recent AlertCycleResult.
func (s *Server) handleLatestCycle(w http.ResponseWriter, r *http.Request) {
	var res *analytics.AlertCycleResult
	if s.deps.Engine != nil {
		res = s.deps.Engine.Latest()
	}
	if res == nil {
		problem.NotFound(w, "no cycle has completed yet", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PointsResponse lists the catalog with the defects found while loading it.
type PointsResponse struct {
	Count   int                    `json:"count"`
	Points  []*catalog.PointConfig `json:"points"`
	Defects []catalog.Defect       `json:"defects"`
}

func (s *Server) handlePoints(w http.ResponseWriter, _ *http.Request) {
	resp := PointsResponse{
		Points:  []*catalog.PointConfig{},
		Defects: []catalog.Defect{},
	}
	if c := s.deps.Catalog; c != nil {
		resp.Points = c.Points()
		if d := c.Defects(); len(d) > 0 {
			resp.Defects = d
		}
	}
	resp.Count = len(resp.Points)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
