package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"netmon-auth/internal/config"
	"netmon-auth/internal/handler"
	"netmon-auth/internal/metrics"
	"netmon-auth/internal/middleware"
)

func New(
	cfg *config.Config,
	m *metrics.Metrics,
	clientIPs *middleware.ClientIPResolver,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(clientIPs))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Post(middleware.LoginPath, authHandler.Login)
		api.With(authMiddleware.RequireAuth).Get("/users/me", authHandler.Me)

		api.With(authMiddleware.RequireAuth, authMiddleware.RequireAdmin).Post("/users", userHandler.Create)
		api.With(authMiddleware.RequireAuth, authMiddleware.RequireAdmin).Get("/users", userHandler.List)
		api.With(authMiddleware.RequireAuth, authMiddleware.RequireAdmin).Delete("/users/{username}", userHandler.Delete)
		api.With(authMiddleware.RequireAuth, authMiddleware.RequireAdmin).Put("/admin/credentials", adminHandler.UpdateCredentials)
	})

	return r
}
