package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/service"
)

// PaymentHandler serves /v1/payments.  Initiate and Status run behind
// JWTAuth; Callback is the gateway webhook and is unauthenticated.
type PaymentHandler struct {
	Payments *service.PaymentService
	Bookings *service.BookingService // ownership checks
	Timeout  time.Duration
}

// NewPaymentHandler panics when a service is nil.
func NewPaymentHandler(payments *service.PaymentService, bookings *service.BookingService, timeout time.Duration) *PaymentHandler {
	if payments == nil || bookings == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: payments, Bookings: bookings, Timeout: timeout}
}

type initiateRequest struct {
	BookingID uint64 `json:"booking_id"`
	Method    string `json:"method"`
	ReturnURL string `json:"return_url"`
}

// Initiate handles POST /v1/payments/initiate and returns the payment intent
// with the URL the client should be sent to.
func (h *PaymentHandler) Initiate(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body initiateRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id is required"})
	}
	method := model.PaymentMethod(strings.ToUpper(strings.TrimSpace(body.Method)))
	if method == "" {
		method = model.DefaultPaymentMethod
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	v, err := h.Bookings.FindOne(ctx, body.BookingID)
	if err != nil {
		return writeError(c, err)
	}
	if v.UserID != userID && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	intent, err := h.Payments.Initiate(ctx, body.BookingID, method, body.ReturnURL)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

type callbackRequest struct {
	BookingID     uint64 `json:"booking_id"`
	TransactionID string `json:"transaction_id"`
	ResultCode    *int   `json:"result_code"`
	Method        string `json:"method"`
}

// Callback handles POST /v1/payments/callback.  A redelivered callback
// returns 200 with the stored booking; a callback for a booking settled by
// another transaction returns 409.
func (h *PaymentHandler) Callback(c echo.Context) error {
	var body callbackRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.BookingID == 0 || body.TransactionID == "" || body.ResultCode == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id, transaction_id and result_code are required"})
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()
	b, err := h.Payments.HandleCallback(ctx, service.CallbackInput{
		BookingID:     body.BookingID,
		TransactionID: body.TransactionID,
		ResultCode:    *body.ResultCode,
		Method:        model.PaymentMethod(strings.ToUpper(strings.TrimSpace(body.Method))),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Status handles GET /v1/payments/:bookingId/status.
func (h *PaymentHandler) Status(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "bookingId")
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
	st, err := h.Payments.GetStatus(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
