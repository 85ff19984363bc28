package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.bodySizeLimit(maxRequestBodySize)).Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.bodySizeLimit(maxRequestBodySize))

				r.Post("/auth/ws-ticket", s.handleWSTicket)
				r.Get("/status", s.handleStatus)
				r.Post("/connectivity", s.handleConnectivity)
				r.Get("/updates/history", s.handleHistory)
			})

			// Local update files are far larger than any JSON body.
			r.With(s.bodySizeLimit(s.cfg.MaxUploadSize)).
				Post("/updates/{target}", s.handleUpdate)
		})

		// WebSocket authenticates with a ticket, validated in the handler.
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the server version and the state of each optional
// dependency. Unhealthy dependencies degrade the status but keep a 200 so
// the device path can still be used without the broker or InfluxDB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if c == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
