package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmanoj0905/natural-language-sql/internal/middleware"
)

// RouterConfig configures the middleware stack.
type RouterConfig struct {
	RateLimit          middleware.RateLimitConfig
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter mounts h under /v1 behind the request id, session, access log,
// rate limit and CORS middleware. ctx bounds background middleware work.
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", middleware.SessionHeader, middleware.PerformerHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Session)

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))
		}

		r.Post("/query/natural", h.AskQuestion)
		r.Post("/query/sql", h.DirectSQL)

		r.Route("/plans/{planID}", func(r chi.Router) {
			r.Get("/", h.GetPlan)
			r.Post("/execute", h.ExecutePlan)
			r.Post("/cancel", h.CancelPlan)
		})

		r.Get("/rollback", h.RollbackStatus)
		r.Post("/rollback/{recordID}", h.Rollback)
		r.Delete("/rollback/{recordID}", h.KeepChanges)
		r.Get("/rollback/{recordID}/countdown", h.RollbackCountdown)

		r.Get("/databases", h.ListDatabases)
		r.Post("/databases", h.RegisterDatabase)
		r.Delete("/databases/{databaseID}", h.UnregisterDatabase)
		r.Put("/databases/{databaseID}/default", h.SetDefaultDatabase)
		r.Get("/databases/{databaseID}/schema", h.GetSchema)

		r.Get("/audit", h.ListAudit)
	})
	return r
}
