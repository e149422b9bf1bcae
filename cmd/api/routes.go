package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/FACorreiaa/smb-ledger/pkg/interceptors"
)

// newRouter builds the HTTP routes: public health and metrics, everything
// under /api behind the bearer token.
func newRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.Config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Get("/healthz", d.ImportHandler.Health)
	if d.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(d.RateLimiter.Middleware)
		r.Use(middleware.Timeout(d.Config.Server.RequestTimeout))
		r.Use(interceptors.Auth(d.TokenValidator, d.Logger))

		r.Route("/import", d.ImportHandler.Routes)
	})

	return r
}
