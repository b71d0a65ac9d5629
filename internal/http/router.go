package httpx

import (
	"net/http"
	"time"

	"paylink/internal/http/handlers"
	middlewarex "paylink/internal/http/middleware"
	"paylink/internal/http/respond"
	"paylink/internal/provider"
	"paylink/internal/services/payment"
	"paylink/internal/services/providers"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies holds all dependencies for the HTTP router
type RouterDependencies struct {
	JWTSecret      string
	WebhookTimeout time.Duration
	Payments       *payment.Service
	Providers      *providers.Service
	Adapters       *provider.Registry
}

// NewRouter wires the public webhook ingress and the authenticated
// dashboard API.
func NewRouter(deps RouterDependencies) http.Handler {
	if deps.WebhookTimeout <= 0 {
		deps.WebhookTimeout = 10 * time.Second
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middlewarex.AccessLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/payments", func(r chi.Router) {
		// Webhooks are public; the signature is the authentication
		r.With(chimw.Timeout(deps.WebhookTimeout)).
			Post("/webhook/{provider}", handlers.PaymentWebhook(deps.Payments, deps.Adapters))

		r.Group(func(r chi.Router) {
			r.Use(middlewarex.JWTAuth(deps.JWTSecret))

			r.Post("/create-link", handlers.CreateLink(deps.Payments))

			r.Get("/providers", handlers.ListProviders(deps.Providers))
			r.Post("/providers", handlers.AddProvider(deps.Providers))
			r.Put("/providers/{id}", handlers.UpdateProvider(deps.Providers))
			r.Delete("/providers/{id}", handlers.RemoveProvider(deps.Providers))
			r.Post("/providers/{id}/rotate-secret", handlers.RotateWebhookSecret(deps.Providers))
		})
	})

	return r
}
