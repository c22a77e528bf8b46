// Package router registers the HTTP routes and their guards.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/auth"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, ready handler.Readiness) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready.Ready)
}

// RegisterAuth registers /v1/auth and /v1/me.  limiter guards the
// credential-bearing endpoints (signin and refresh).
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens *auth.TokenService, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/signup", a.SignUp)
	g.POST("/signin", a.SignIn, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	g.POST("/validate", a.Validate)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(tokens))
}

// RegisterMetrics exposes the Prometheus registry to ADMIN users.
func RegisterMetrics(e *echo.Echo, m *metrics.Metrics, tokens *auth.TokenService) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()),
		middleware.JWTAuth(tokens),
		middleware.RequirePermission(model.PermMetricsRead),
	)
}
