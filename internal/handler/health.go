package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health is a liveness probe.  It returns a plain text "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Readiness reports whether the database, and Redis when configured, answer.
type Readiness struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (r Readiness) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := echo.Map{"database": "ok"}
	status := http.StatusOK
	if err := r.DB.PingContext(ctx); err != nil {
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if r.Redis != nil {
		checks["redis"] = "ok"
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			// Redis is optional; report but stay ready.
			checks["redis"] = "unavailable"
		}
	}
	return c.JSON(status, checks)
}
