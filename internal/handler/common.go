// Package handler exposes the booking and payment services over HTTP.
// Handlers only translate between JSON and service calls; every decision
// about booking state is made by the services.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/middleware"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// JWT roles.  RoleAdmin may read and cancel any booking and manage
// showtimes.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// DefaultTimeout bounds a service call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// getUserID returns the authenticated user id stored by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

func isAdmin(c echo.Context) bool {
	role, _ := c.Get(middleware.KeyRole).(string)
	return role == RoleAdmin
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// queryUint reads an optional non-negative integer query parameter.
func queryUint(c echo.Context, name string) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// requestContext derives the context for one service call.
func requestContext(c echo.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

// statusOf maps a service error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case repository.IsNotFound(err):
		return http.StatusNotFound
	case repository.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrUnavailable), repository.IsTransient(err),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": message}.  Internal failures are
// logged and hidden from the client.
func writeError(c echo.Context, err error) error {
	status := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal error"})
	case http.StatusServiceUnavailable:
		logger.Warn("service unavailable", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(status, echo.Map{"error": "service temporarily unavailable, retry later"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
