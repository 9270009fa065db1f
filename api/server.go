/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for the frontend
  5. RequireAuth: Bearer-token check (everything except register/login)

ROUTE GROUPS:
  /api/register /api/login       Public account endpoints
  /api/user/*                    Account profile
  /api/settings                  Fund configuration
  /api/savers/*                  Saver management, loans, eligibility
  /api/periods/*                 Due and penalty mutations
  /api/loans/*                   Loan payments and removal
  /api/reports                   Fund-wide aggregates

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: RequireAuth middleware
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
		// Public account endpoints
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		// Everything below requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Post("/logout", h.Logout)
			r.Get("/user", h.GetCurrentUser)
			r.Put("/user/profile", h.UpdateProfile)

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			r.Route("/savers", func(r chi.Router) {
				r.Get("/", h.ListSavers)
				r.Post("/", h.CreateSaver)
				r.Get("/{id}", h.GetSaver)
				r.Put("/{id}", h.UpdateSaver)
				r.Delete("/{id}", h.DeleteSaver)
				r.Post("/{id}/generate-month", h.GenerateMonth)
				r.Get("/{id}/loans", h.ListLoans)
				r.Post("/{id}/loans", h.CreateLoan)
				r.Get("/{id}/loan-eligibility", h.LoanEligibility)
			})

			r.Route("/periods", func(r chi.Router) {
				r.Post("/{id}/toggle-quincena", h.ToggleQuincena)
				r.Post("/{id}/toggle-penalty", h.TogglePenalty)
				r.Post("/{id}/apply-penalty", h.ApplyPenalty)
			})

			r.Route("/loans", func(r chi.Router) {
				r.Post("/{id}/payment", h.RecordLoanPayment)
				r.Delete("/{id}", h.DeleteLoan)
			})

			r.Get("/reports", h.GetReport)
		})
	})

	return r
}
