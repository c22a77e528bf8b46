package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-reservation/internal/apperr"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// requestTimeout bounds every database round trip made by a handler.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.BadRequest:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message}.  Internal errors are logged
// with their cause and rendered with a generic message.
func respondError(c echo.Context, log zerolog.Logger, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(statusFor(kind), echo.Map{"error": apperr.MessageOf(err)})
}

// HTTPErrorHandler renders errors that escape handlers (routing misses,
// bind failures, panics recovered by middleware) in the same shape as
// respondError.
func HTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "internal server error"

		var he *echo.HTTPError
		var ae *apperr.Error
		switch {
		case errors.As(err, &he):
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		case errors.As(err, &ae):
			status = statusFor(ae.Kind)
			msg = apperr.MessageOf(err)
		}
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
			msg = "internal server error"
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.BadRequestf("invalid %s", name)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.BadRequestf("invalid %s", name)
	}
	return n, nil
}

// queryUint reads an optional unsigned integer query parameter.
func queryUint(c echo.Context, name string) (uint64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, apperr.BadRequestf("invalid %s", name)
	}
	return n, nil
}

// parseTime accepts RFC 3339 timestamps.
func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, apperr.BadRequestf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, apperr.BadRequestf("%s must be an RFC 3339 timestamp", name)
	}
	return t.UTC(), nil
}

// repoError translates repository sentinels for handlers that talk to a
// repository directly.
func repoError(err error, what string, id uint64) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFoundf("%s %d not found", what, id)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflictf("%s already exists", what)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflictf("%s is being modified concurrently, retry", what)
	default:
		return apperr.Wrap(apperr.Internal, err, "database error")
	}
}
