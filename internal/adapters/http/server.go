// Package http exposes the pipeline trigger over a small webhook API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gantry-ci/gantry/internal/logging"
	"github.com/gantry-ci/gantry/pkg/domain"
	"github.com/gantry-ci/gantry/pkg/ports"
)

// Engine defines the trigger surface the server needs from the orchestrator.
type Engine interface {
	TriggerAsync(ctx context.Context, event domain.Event) string
	Definition() *domain.Definition
	Store() ports.RunStore
}

// Server handles webhook deliveries and run inspection.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	version string

	// runCtx is the lifetime of spawned runs; webhook replies return long
	// before their run does.
	runCtx context.Context
}

// ServerOption configures the Server.
type ServerOption func(*Server, *chi.Mux)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server, _ *chi.Mux) {
		s.logger = logger
	}
}

// WithVersion reports a version string on /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server, _ *chi.Mux) {
		s.version = v
	}
}

// WithRunContext bounds the lifetime of runs started by webhooks.
func WithRunContext(ctx context.Context) ServerOption {
	return func(s *Server, _ *chi.Mux) {
		s.runCtx = ctx
	}
}

// WithMetrics mounts a Prometheus endpoint for the given registry.
func WithMetrics(reg *prometheus.Registry) ServerOption {
	return func(_ *Server, r *chi.Mux) {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
}

// NewHandler creates the HTTP handler for the trigger API.
func NewHandler(engine Engine, opts ...ServerOption) http.Handler {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
		runCtx: context.Background(),
	}
	r := chi.NewRouter()
	for _, opt := range opts {
		opt(s, r)
	}

	r.Post("/events", s.handleEvent)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleEvent ingests one webhook delivery. Payload fields beyond the event
// envelope are kept opaque; the core only routes on the event type.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	var event domain.Event
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &event})
	if err != nil {
		http.Error(w, "decoder setup failed", http.StatusInternalServerError)
		return
	}
	if err := dec.Decode(raw); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	if event.Type == "" {
		http.Error(w, "event type is required", http.StatusBadRequest)
		return
	}

	if !s.engine.Definition().Triggers(event.Type) {
		s.logger.Info("event ignored", "event", event.Type)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	runID := s.engine.TriggerAsync(s.runCtx, event)
	s.logger.Info("run accepted", "run", runID, "event", event.Type, "ref", event.Ref)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "accepted",
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	result, err := s.engine.Store().Load(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Store().List(r.Context())
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": ids})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"pipeline": s.engine.Definition().Name,
		"version":  s.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
