// SPDX-License-Identifier: MIT

// Package api exposes a door over HTTP JSON.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/turnstile/internal/api/middleware"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/health"
	"github.com/ManuGH/turnstile/internal/scanner"
)

// Door is the slice of *scanner.Orchestrator the API drives.
type Door interface {
	View() scanner.View
	Submit(ctx context.Context, text string) (ticket.Attempt, error)
	Reset() error
	SetMode(ctx context.Context, mode scanner.Mode) error
	Settings() scanner.Settings
	SetAutoConfirm(v bool) scanner.Settings
	SetSoundEnabled(v bool) scanner.Settings
	History() []ticket.Attempt
	Stats() directory.Occupancy
}

// Config shapes the router.
type Config struct {
	// Token guards the mutating routes when set.
	Token string
	// ServeMetrics mounts /metrics on this router.
	ServeMetrics      bool
	TracingService    string
	RateLimit         bool
	RequestsPerMinute int
}

// Server routes requests to a Door.
type Server struct {
	cfg    Config
	door   Door
	health *health.Manager
	router chi.Router
}

// New builds the router. health may be nil.
func New(cfg Config, door Door, hm *health.Manager) *Server {
	s := &Server{cfg: cfg, door: door, health: hm}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}
	if s.cfg.ServeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit {
			r.Use(middleware.APIRateLimit(s.cfg.RequestsPerMinute))
		}
		r.Get("/state", s.handleState)
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)
		r.Get("/settings", s.handleGetSettings)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.cfg.Token))
			r.Post("/scans", s.handleScan)
			r.Post("/reset", s.handleReset)
			r.Put("/mode", s.handleMode)
			r.Patch("/settings", s.handlePatchSettings)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	})
	return r
}

// MetricsHandler serves /metrics on a dedicated listener.
func MetricsHandler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
