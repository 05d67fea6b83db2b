package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
)

type RouterConfig struct {
	JWTSecret      []byte
	ScanRateLimit  int
	ScanRatePeriod time.Duration
	Limiter        Limiter
	Idempotency    IdempotencyStore
}

func SetupRouter(h *Handlers, logger observability.Logger, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(cfg.JWTSecret))

		r.With(IdempotencyMiddleware(cfg.Idempotency)).Post("/v1/tickets/{id}/token", h.GenerateToken)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleValidator, RoleAdmin))
			r.With(RateLimitMiddleware(cfg.Limiter, cfg.ScanRateLimit, cfg.ScanRatePeriod)).Post("/v1/entry/validate", h.Validate)
			r.Get("/v1/tickets/{id}/entries", h.History)
			r.Get("/v1/events/{id}/entry-stats", h.Stats)
		})
	})

	return r
}
