// Package router registers the HTTP routes on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes.  ready may be nil.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterBookings registers /v1/bookings.  Every route requires a JWT with
// the CUSTOMER or ADMIN role; writes also pass through limit.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/bookings",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(handler.RoleCustomer, handler.RoleAdmin),
	)
	g.POST("", h.Create, limit)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Cancel, limit)
}

// RegisterPayments registers /v1/payments.  The gateway callback is the
// only route without a JWT.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/v1/payments/callback", h.Callback)

	g := e.Group("/v1/payments",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(handler.RoleCustomer, handler.RoleAdmin),
	)
	g.POST("/initiate", h.Initiate, limit)
	g.GET("/:bookingId/status", h.Status)
}

// RegisterShowtimes registers the ADMIN-only showtime scheduling routes.
func RegisterShowtimes(e *echo.Echo, h *handler.ShowtimeHandler, jwtSecret string) {
	g := e.Group("/v1/showtimes",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(handler.RoleAdmin),
	)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
}
