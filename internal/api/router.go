package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/apply", s.handleApplyCommand)
				})
			})

			r.Get("/energy", s.handleEnergy)

			// WebSocket (token via query parameter, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status and snapshot freshness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()

	status := "ok"
	if snap.Stale {
		status = "degraded"
	}

	var age float64
	if !snap.FetchedAt.IsZero() {
		age = time.Since(snap.FetchedAt).Seconds()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"version":          s.version,
		"devices":          len(snap.Devices),
		"snapshot_stale":   snap.Stale,
		"snapshot_age_sec": age,
	})
}
