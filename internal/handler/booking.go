package handler

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/service"
)

// BookingHandler serves /v1/bookings.  Every route runs behind JWTAuth.
// Customers only see and cancel their own bookings; admins see all.
type BookingHandler struct {
	Bookings *service.BookingService
	Timeout  time.Duration
}

// NewBookingHandler panics when bookings is nil.
func NewBookingHandler(bookings *service.BookingService, timeout time.Duration) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Timeout: timeout}
}

type createBookingRequest struct {
	ShowtimeID uint64 `json:"showtime_id"`
	SeatID     uint64 `json:"seat_id"`
}

// Create handles POST /v1/bookings.  It holds the seat for the caller and
// returns 201 with the PENDING booking, or 409 when the seat is taken.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ShowtimeID == 0 || body.SeatID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id and seat_id are required"})
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	b, err := h.Bookings.Create(ctx, userID, body.ShowtimeID, body.SeatID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings.  Query parameters: showtime_id,
// payment_status, page, page_size and, for admins, user_id.  Pagination
// applies only when both page and page_size are given.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	f := model.BookingFilter{
		UserID:        userID,
		PaymentStatus: model.PaymentStatus(strings.ToUpper(c.QueryParam("payment_status"))),
	}
	if f.ShowtimeID, err = queryUint(c, "showtime_id"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime_id"})
	}
	if isAdmin(c) {
		if f.UserID, err = queryUint(c, "user_id"); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id"})
		}
	}
	page, err := queryUint(c, "page")
	if err != nil || page > math.MaxInt {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page"})
	}
	size, err := queryUint(c, "page_size")
	if err != nil || size > math.MaxInt {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page_size"})
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	out, err := h.Bookings.FindAll(ctx, f, model.Pagination{Page: int(page), PageSize: int(size)})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	v, err := h.Bookings.FindOne(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if v.UserID != userID && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, v)
}

// Cancel handles DELETE /v1/bookings/:id.  Only PENDING holds can be
// canceled; a paid or already canceled booking yields 409.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	v, err := h.Bookings.FindOne(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if v.UserID != userID && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	b, err := h.Bookings.Cancel(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
