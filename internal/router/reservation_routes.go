package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/auth"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// RegisterReservations registers /v1/reservations.  Every route requires a
// valid access token; listing, cancelling and deleting are staff only.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, tokens *auth.TokenService) {
	g := e.Group("/v1/reservations", middleware.JWTAuth(tokens))
	can := middleware.RequirePermission

	g.POST("", h.Create, can(model.PermReservationCreate))
	g.GET("", h.List, can(model.PermReservationList))
	// Static segment; registered alongside :id, echo prefers the static match.
	g.GET("/availability", h.Availability, can(model.PermReservationAvailability))
	g.GET("/:id", h.Get, can(model.PermReservationRead))
	g.PUT("/:id", h.Update, can(model.PermReservationUpdate))
	g.PUT("/:id/cancel", h.Cancel, can(model.PermReservationCancel))
	g.DELETE("/:id", h.Delete, can(model.PermReservationDelete))
}
