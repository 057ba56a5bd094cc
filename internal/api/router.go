package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/auth"
)

// buildRouter assembles the route tree and middleware chain.
//
// Three role tiers apply: viewers read, operators additionally override
// rooms and trigger re-schedules, admins additionally read the audit
// trail.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID)
	r.Use(s.withAccessLog)
	r.Use(s.withRecovery)
	r.Use(s.withCORS)
	r.Use(s.withBodyLimit)

	r.Route("/api/v1", func(r chi.Router) {
		// Reachable without a token: health, login, and the upgrade
		// endpoint (which authenticates via ticket instead).
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/ws", s.handleWebSocket)

		// Everything below requires a Bearer token.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			// Only logged-in callers may mint WebSocket tickets.
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", s.handleListRooms)

				r.Route("/{room}", func(r chi.Router) {
					r.Get("/", s.handleGetRoom)
					r.Get("/evaluate", s.handleEvaluateRoom)
					r.Get("/history", s.handleRoomHistory)

					r.With(s.requireRole(auth.RoleOperator)).Put("/value", s.handleSetRoomValue)
					r.With(s.requireRole(auth.RoleOperator)).Post("/reschedule", s.handleRescheduleRoom)
				})
			})

			// Re-schedule every room at once.
			r.With(s.requireRole(auth.RoleOperator)).Post("/reschedule", s.handleRescheduleAll)

			r.Route("/entities", func(r chi.Router) {
				r.Get("/", s.handleListEntities)
				r.Get("/{id}", s.handleGetEntity)
			})

			r.Get("/snippets", s.handleListSnippets)
			r.Get("/system", s.handleSystemInfo)

			r.With(s.requireRole(auth.RoleAdmin)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth answers liveness probes without touching auth.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
