package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shutters/internal/auth"
)

// healthCheckTimeout bounds each dependency check of the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsCfg.Enabled && s.metricsCfg.Path != "" {
		r.Handle(s.metricsCfg.Path, s.collectors.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.require(auth.PermCoverRead)).Get("/ws", s.handleWebSocket)

			r.Route("/covers", func(r chi.Router) {
				r.Use(s.require(auth.PermCoverRead))
				r.Get("/", s.handleListCovers)

				r.Route("/{cover}", func(r chi.Router) {
					r.Get("/", s.handleGetCover)
					r.Get("/history", s.handleCoverHistory)

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermCoverOperate))
						r.Post("/override", s.handleSetOverride)
						r.Delete("/override", s.handleClearOverride)
						r.Post("/shading", s.handleActivateShading)
						r.Post("/recalibrate", s.handleRecalibrate)
					})
				})
			})

			r.Route("/entries", func(r chi.Router) {
				r.Use(s.require(auth.PermCoverRead))
				r.Get("/", s.handleListEntries)
				r.Get("/{entry}/options", s.handleGetEntryOptions)
				r.With(s.require(auth.PermEntryConfigure)).Patch("/{entry}/options", s.handlePatchEntryOptions)
			})

			r.With(s.require(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
//
// Each registered dependency is checked; any failure turns the response
// into 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"covers":     s.coverCount(),
		"clients":    s.hub.ClientCount(),
		"components": components,
	})
}

// coverCount counts managed covers without reading engine state.
func (s *Server) coverCount() int {
	n := 0
	for _, c := range s.registry.All() {
		n += len(c.Covers())
	}
	return n
}
