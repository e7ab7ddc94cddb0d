package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/fleetledger/internal/api/handler"
	mw "github.com/kiranshivaraju/fleetledger/internal/api/middleware"
	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
)

// Workflow is the engine surface the HTTP layer exposes.
type Workflow interface {
	handler.ExpiryService
	handler.IncomeService
	handler.DriverService
	handler.FleetService
	handler.PolicyService
	handler.AuditService
	handler.APIKeyService
}

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Resolver  mw.Resolver

	Workflow Workflow
	Reports  handler.SummaryService
	Health   http.HandlerFunc

	// Optional. When set, /metrics is served and requests are measured.
	Metrics interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}
	ServiceName string
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	if deps.ServiceName != "" {
		r.Use(telemetry.Middleware(deps.ServiceName))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.Health))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	expiry := handler.NewExpiry(deps.Workflow)
	incomes := handler.NewIncomes(deps.Workflow)
	drivers := handler.NewDrivers(deps.Workflow)
	fleet := handler.NewFleet(deps.Workflow)
	policy := handler.NewPolicy(deps.Workflow)
	keys := handler.NewAPIKeys(deps.Workflow)

	// Role checks happen in the engine; the group only establishes who and where.
	r.Route("/tenant", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)
		r.Use(mw.Tenant(deps.Resolver))

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", drivers.List)
			r.Post("/", drivers.Create)
			r.Post("/mfa-reminders", drivers.SendMFAReminders)

			r.Route("/expiry-update-requests", func(r chi.Router) {
				r.Get("/", expiry.List)
				r.Post("/", expiry.Submit)
				r.Get("/{id}", expiry.Get)
				r.Patch("/{id}/approve", expiry.Approve)
				r.Patch("/{id}/reject", expiry.Reject)
			})

			r.Get("/{id}", drivers.Get)
			r.Patch("/{id}/activate", drivers.Activate)
			r.Patch("/{id}/deactivate", drivers.Deactivate)
		})

		r.Route("/incomes", func(r chi.Router) {
			r.Get("/", incomes.List)
			r.Post("/", incomes.Create)
			r.Get("/{id}", incomes.Get)
			r.Delete("/{id}", incomes.Delete)
			r.Patch("/{id}/approve", incomes.Approve)
			r.Patch("/{id}/reject", incomes.Reject)
		})

		r.Get("/vehicles", fleet.ListVehicles)
		r.Post("/vehicles", fleet.CreateVehicle)
		r.Post("/documents", fleet.RegisterDocument)

		r.Get("/policy", policy.Get)
		r.Put("/policy", policy.Update)

		r.Get("/audit", handler.Audit(deps.Workflow))
		r.Get("/reports/summary", orNotImplemented(summary(deps.Reports)))

		r.Get("/api-keys", keys.List)
		r.Post("/api-keys", keys.Create)
		r.Delete("/api-keys/{id}", keys.Revoke)
	})

	return r
}

func summary(svc handler.SummaryService) http.HandlerFunc {
	if svc == nil {
		return nil
	}
	return handler.Summary(svc)
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
