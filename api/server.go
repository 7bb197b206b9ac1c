/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request logger, child logger in the request context
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/health           Liveness, no token
  /api/staff/*          Staff management (admin)
  /api/income/*         Patients, income records, income summaries
  /api/outcome/*        Expenses, timesheets, salaries
  /api/clinic/*         Clinic dashboard (admin)
  /api/scenarios/*      Demo data (admin)

SECURITY:
  Everything but /api/health requires a bearer token. Admin-only groups sit
  behind RequireAdmin; timesheets and the doctor overview check ownership in
  the handler.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Tokens and role checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/policlinic/backoffice/logger"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Auth, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/api/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Staff routes
		r.Route("/staff", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ListStaff)
			r.Post("/", h.CreateStaff)
			r.Delete("/{id}", h.DeactivateStaff)
			r.Post("/{id}/restore", h.RestoreStaff)
			r.Post("/{id}/commission", h.SetCommissionRate)
		})

		// Income routes
		r.Route("/income", func(r chi.Router) {
			r.Get("/doctor/{id}/overview", h.DoctorOverview)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/patients", h.ListPatients)
				r.Post("/patients", h.CreatePatient)
				r.Get("/records", h.ListIncome)
				r.Post("/records", h.CreateIncome)
				r.Delete("/records/{id}", h.DeleteIncome)
				r.Get("/summary/daily", h.DailyIncome)
				r.Get("/summary/monthly", h.MonthlyIncome)
				r.Get("/summary/total", h.IncomeTotal)
			})
		})

		// Outcome routes
		r.Route("/outcome", func(r chi.Router) {
			// Self-service
			r.Get("/timesheets", h.ListTimesheets)
			r.Post("/timesheets", h.CreateTimesheet)
			r.Put("/timesheets/{id}", h.UpdateTimesheet)
			r.Delete("/timesheets/{id}", h.DeleteTimesheet)
			r.Get("/staff/self/dashboard", h.SelfStatement)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/categories", h.ListCategories)
				r.Get("/records", h.ListExpenses)
				r.Post("/records", h.CreateExpense)
				r.Delete("/records/{id}", h.DeleteExpense)
				r.Get("/summary/monthly", h.MonthlyOutcome)
				r.Get("/salary/suggested", h.SuggestedSalary)
				r.Get("/salaries", h.ListSalaries)
				r.Post("/salaries", h.Withdraw)
				r.Delete("/salaries/{id}", h.DeleteSalary)
				r.Get("/salaries/audit", h.WithdrawalAudits)
			})
		})

		// Clinic routes
		r.Route("/clinic", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/dashboard", h.Dashboard)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger puts a request-scoped zerolog logger in the context and
// logs each request once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithLogger(r.Context(), map[string]interface{}{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.FromContext(ctx).Info().
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
