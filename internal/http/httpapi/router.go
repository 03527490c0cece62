package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/obs"
)

// NewRouter wires every endpoint behind the shared middleware stack. The
// Stripe webhook and the health/metrics probes stay outside JWT auth.
func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(cfg.AllowedOrigins),
		obs.MetricsMiddleware,
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

		r.Get("/v1/niches", app.NichesList)
		r.Get("/v1/credits/packages", app.CreditPackages)
		r.Post("/v1/webhooks/stripe", app.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(cfg.JWTSecret))

			r.Post("/v1/uploads", app.UploadCreate)
			r.Get("/v1/listings/{id}", app.ListingGet)
			r.Post("/v1/feedback", app.FeedbackSubmit)
			r.Post("/v1/credits/checkout", app.CreditsCheckout)

			r.Route("/v1/admin", func(r chi.Router) {
				r.Delete("/cache", app.CacheClear)
				r.Put("/credentials", app.CredentialsSet)
			})
		})
	})

	return r
}
