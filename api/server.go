/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the management frontend

ROUTE GROUPS:
  /api/contracts/*      Contract snapshot, generation, events, export
  /api/installments/*   Ledger mutations and notification surface

SECURITY NOTE:
  No authentication middleware. The surrounding system fronts this
  service and injects the acting user id in request bodies.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Contract routes
		r.Route("/contracts/{id}", func(r chi.Router) {
			r.Put("/", h.SaveContract)
			r.Get("/", h.GetContract)
			r.Post("/installments/generate", h.GenerateInstallments)
			r.Get("/installments", h.ListInstallments)
			r.Post("/events", h.AppendEvent)
			r.Get("/events", h.ListEvents)
			r.Get("/export", h.ExportContract)
		})

		// Installment routes
		r.Route("/installments/{id}", func(r chi.Router) {
			r.Get("/", h.GetInstallment)
			r.Post("/payments", h.RegisterPayment)
			r.Post("/items", h.AddItem)
			r.Post("/agreement", h.SetAgreement)
			r.Post("/notification-override", h.SetNotificationOverride)
			r.Get("/notification-decision", h.GetNotificationDecision)
			r.Post("/notification-log", h.LogNotification)
		})
	})

	return r
}
