package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/nfsuisse/intake/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса приёма заявок.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/healthz", h.Health)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth", h.Login)
		r.Get("/auth", h.AuthStatus)
		r.Delete("/auth", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.session.Middleware)

			r.Post("/contact", h.Contact)

			r.Post("/create-payment-intent", h.CreatePaymentIntent)
			r.Post("/create-checkout-session", h.CreateCheckoutSession)
			r.With(h.admin.Middleware).Get("/admin/payments", h.ListPayments)

			r.Post("/extension-requests", h.CreateExtensionRequest)
			r.With(h.admin.Middleware).Get("/extension-requests", h.ListExtensionRequests)

			r.Post("/tax-requests", h.CreateTaxRequest)
			r.With(h.admin.Middleware).Get("/tax-requests", h.ListTaxRequests)
			r.With(h.admin.Middleware).Patch("/tax-requests/{reference}/status", h.UpdateTaxRequestStatus)

			r.Post("/upload", h.Upload)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", h.CreateServiceRequest)
				r.With(h.admin.Middleware).Get("/", h.ListServiceRequests)

				r.Post("/send-code", h.SendCode)
				r.Post("/verify-code", h.VerifyCode)

				r.Get("/{reference}", h.Track)
				r.Post("/{reference}/documents", h.UploadRequestDocuments)
				r.Get("/{reference}/documents", h.ListRequestDocuments)
				r.With(h.admin.Middleware).Patch("/{reference}/status", h.UpdateServiceRequestStatus)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
