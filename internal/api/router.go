package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeValidation, "method not allowed")
	})

	r.Get("/", s.handlePing)
	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// WebSocket (auth via cookie, validated after upgrade)
	r.Get(s.cfg.WebSocket.Path, s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Get("/check", s.handleCheck)
			r.With(s.requireIdentity).Post("/logout", s.handleLogout)
		})

		r.Route("/room", func(r chi.Router) {
			// Anonymous callers may read public rooms
			r.Get("/get", s.handleGetRooms)

			r.Group(func(r chi.Router) {
				r.Use(s.requireIdentity)
				r.Post("/create", s.handleCreateRoom)
				r.Patch("/update", s.handleUpdateRoom)
				r.Delete("/delete/{id}", s.handleDeleteRoom)
				r.Get("/getMessages", s.handleGetMessages)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireIdentity)
			r.Patch("/user/edit", s.handleEditUser)
			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handlePing answers the root liveness probe.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unhealthy",
			"version": s.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
