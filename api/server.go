/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/ambassadors/*    Ambassador enrollment and ledger views
  /api/referrals/*      Lead lifecycle
  /api/settlements/*    Settlement creation and payout
  /api/slabs/*          Tier table configuration
  /api/config           Program configuration
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. The actor headers are trusted as
  resolved upstream (gateway or session layer).

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Ambassador routes
		r.Route("/ambassadors", func(r chi.Router) {
			r.Get("/", h.ListAmbassadors)
			r.Post("/", h.CreateAmbassador)
			r.Get("/{id}", h.GetAmbassador)
			r.Get("/{id}/pending", h.GetPending)
			r.Get("/{id}/leads", h.ListAmbassadorLeads)
			r.Get("/{id}/settlements", h.ListAmbassadorSettlements)
			r.Get("/{id}/audit", h.GetAuditTrail)
		})

		// Referral lead routes
		r.Route("/referrals", func(r chi.Router) {
			r.Post("/", h.CreateLead)
			r.Get("/{id}", h.GetLead)
			r.Post("/{id}/confirm", h.ConfirmLead)
			r.Post("/{id}/follow-up", h.MarkFollowUp)
			r.Post("/{id}/reject", h.RejectLead)
		})

		// Settlement routes
		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Post("/", h.CreateSettlement)
			r.Post("/bulk-process", h.ProcessBulkPayouts)
			r.Get("/{id}", h.GetSettlement)
			r.Post("/{id}/process", h.ProcessPayout)
		})

		// Slab configuration routes
		r.Route("/slabs", func(r chi.Router) {
			r.Get("/{table}", h.GetSlabs)
			r.Put("/{table}", h.UpdateSlabs)
		})

		// Program configuration
		r.Post("/config", h.ApplyConfig)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
