package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/shoeclean-loyalty/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса лояльности.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Post("/api/referral/validate", h.ValidateReferral)
		r.Post("/api/points/validate", h.ValidatePoints)

		r.Route("/api/checkout", func(r chi.Router) {
			r.Use(h.serviceAuth.Middleware)

			r.Post("/process", h.ProcessCheckout)
			r.Post("/rollback", h.RollbackCheckout)
		})

		r.Route("/api/customers/{id}/points", func(r chi.Router) {
			r.Get("/", h.GetPoints)
			r.Get("/transactions", h.GetTransactions)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/login", h.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/referral-settings", h.GetSettings)
				r.Put("/referral-settings", h.UpdateSettings)
				r.Post("/points/adjust", h.AdjustPoints)
				r.Get("/referrals/{referrerID}/usages", h.GetReferralUsages)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
