package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Context keys set by JWTAuth.
const (
	ctxUsername = "username"
	ctxRole     = "role"
)

// Username returns the authenticated subject, or "" for anonymous requests.
func Username(c echo.Context) string {
	if v, ok := c.Get(ctxUsername).(string); ok {
		return v
	}
	return ""
}

// RoleOf returns the authenticated role, or "" for anonymous requests.
func RoleOf(c echo.Context) model.Role {
	if v, ok := c.Get(ctxRole).(model.Role); ok {
		return v
	}
	return ""
}

// userKey identifies the caller for rate limiting and logging.  It returns
// "anon" when no user is authenticated.
func userKey(c echo.Context) string {
	if u := Username(c); u != "" {
		return u
	}
	return "anon"
}
