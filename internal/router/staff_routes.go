package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/auth"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// RegisterStaff registers the table and client catalogue under /v1.  The
// table listing is served through cache; POST /v1/tables invalidates it.
func RegisterStaff(e *echo.Echo, t *handler.TableHandler, cl *handler.ClientHandler, tokens *auth.TokenService, cache *middleware.ResponseCache) {
	g := e.Group("/v1", middleware.JWTAuth(tokens))
	can := middleware.RequirePermission

	// ---- Tables ----
	g.GET("/tables", t.List, can(model.PermTableRead), cache.Middleware())
	g.GET("/tables/:id", t.Get, can(model.PermTableRead))
	g.POST("/tables", t.Create, can(model.PermTableWrite))

	// ---- Clients ----
	g.GET("/clients", cl.List, can(model.PermClientRead))
	g.GET("/clients/:id", cl.Get, can(model.PermClientRead))
	g.POST("/clients", cl.Create, can(model.PermClientWrite))
}
