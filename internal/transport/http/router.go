// Package http exposes the trigger surface over HTTP: routine management,
// on-demand execution, file uploads and diagnostics.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"cnabd/internal/config"
	"cnabd/internal/infrastructure"
	"cnabd/internal/middleware"
)

// NewRouter assembles the middleware chain and mounts all handlers.
func NewRouter(cfg *config.Config, routines *RoutineHandler, files *FileHandler, health *HealthHandler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.StripSlashes)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	rl := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
	r.Use(rl.Handler)

	r.Route("/api", func(api chi.Router) {
		api.Mount("/routines", routines.Routes())
		api.Mount("/files", files.Routes())
		api.Mount("/health", health.Routes())
	})

	r.Method(http.MethodGet, "/metrics", infrastructure.MetricsHandler())

	return r
}
