/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

AUTH:
  POST /api/login and GET /health are public. Everything else sits
  behind the bearer-token middleware. The audit purge additionally
  requires the admin role.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/auth.go: Middleware and RequireRole
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/medcore/hospital-ledger/auth"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		// Everything else needs a session
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)

			r.Route("/patients", func(r chi.Router) {
				r.Get("/", h.ListPatients)
				r.Post("/", h.CreatePatient)
				r.Get("/{id}", h.GetPatient)
				r.Put("/{id}", h.UpdatePatient)
				r.Delete("/{id}", h.DeletePatient)
				r.Get("/{id}/balance", h.GetBalance)
				r.Get("/{id}/payment-status", h.GetPaymentStatus)
				r.Get("/{id}/bills", h.ListPatientBills)
				r.Get("/{id}/payments", h.ListPatientPayments)
				r.Get("/{id}/records", h.ListPatientRecords)
				r.Get("/{id}/prescriptions", h.ListPatientPrescriptions)
				r.Get("/{id}/lab-tests", h.ListPatientLabTests)
				r.Get("/{id}/audit", h.GetPatientAudit)
			})

			r.Route("/doctors", func(r chi.Router) {
				r.Get("/", h.ListDoctors)
				r.Post("/", h.CreateDoctor)
				r.Get("/{id}", h.GetDoctor)
			})

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", h.ListAppointments)
				r.Post("/", h.CreateAppointment)
			})

			r.Post("/records", h.CreateMedicalRecord)
			r.Post("/bills", h.CreateBilling)
			r.Post("/payments", h.CreatePayment)

			r.Route("/lab-tests", func(r chi.Router) {
				r.Post("/", h.CreateLabTest)
				r.Post("/{id}/status", h.SetLabTestStatus)
			})

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", h.ListRooms)
				r.Post("/", h.CreateRoom)
				r.Post("/{id}/occupancy", h.SetRoomOccupancy)
			})

			r.Post("/prescriptions", h.CreatePrescription)

			r.Route("/departments", func(r chi.Router) {
				r.Get("/", h.ListDepartments)
				r.Post("/", h.CreateDepartment)
			})

			r.Get("/audit", h.QueryAudit)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/reconcile", h.Reconcile)
				r.Get("/schema", h.VerifySchema)
				r.With(auth.RequireRole(auth.RoleAdmin)).Delete("/audit", h.PurgeAudit)
			})

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		})
	})

	return r
}
