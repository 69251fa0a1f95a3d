package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/service"
)

// ShowtimeHandler serves the admin showtime routes.
type ShowtimeHandler struct {
	Showtimes *service.ShowtimeService
	Timeout   time.Duration
}

// NewShowtimeHandler panics when showtimes is nil.
func NewShowtimeHandler(showtimes *service.ShowtimeService, timeout time.Duration) *ShowtimeHandler {
	if showtimes == nil {
		panic("nil showtime service passed to NewShowtimeHandler")
	}
	return &ShowtimeHandler{Showtimes: showtimes, Timeout: timeout}
}

// Create handles POST /v1/showtimes.
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var body service.ShowtimeInput
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	sh, err := h.Showtimes.Create(ctx, body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sh)
}

// Update handles PUT /v1/showtimes/:id.  Omitted fields keep their value.
func (h *ShowtimeHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	var body service.ShowtimeInput
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	sh, err := h.Showtimes.Update(ctx, id, body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sh)
}
