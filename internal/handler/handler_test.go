package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/retry"
	"github.com/iliyamo/showtime-booking/internal/router"
	"github.com/iliyamo/showtime-booking/internal/service"
)

const secret = "test-secret"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

type server struct {
	e     *echo.Echo
	store *repository.MemoryBookingRepo
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newServer(t *testing.T) *server {
	t.Helper()
	cat := repository.NewMemoryCatalogRepo()
	cat.PutMovie(model.Movie{ID: 1, Name: "Dune", BasePrice: 100000})
	cat.PutCinema(model.Cinema{ID: 1, Name: "Galaxy"})
	cat.PutRoom(model.Room{ID: 1, CinemaID: 1, Name: "Room 1"})
	cat.PutSeat(model.Seat{ID: 1, RoomID: 1, Name: "A1", SeatType: &model.SeatType{Name: "VIP", Multiplier: 1.2}})
	cat.PutSeat(model.Seat{ID: 2, RoomID: 1, Name: "A2"})
	cat.PutShowtime(model.Showtime{ID: 1, MovieID: 1, CinemaID: 1, RoomID: 1, BasePrice: 100000,
		ShowDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), ShowTimeStart: "19:00", ShowTimeEnd: "21:00"})

	store := repository.NewMemoryBookingRepo(cat)
	clk := &clock{t: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
	bookings := service.NewBookingService(store, cat, service.WithClock(clk.Now))
	payments := service.NewPaymentService(store, "", service.WithClock(clk.Now))
	showtimes := service.NewShowtimeService(cat, service.WithClock(clk.Now))

	e := echo.New()
	router.RegisterRoutes(e, nil)
	router.RegisterBookings(e, handler.NewBookingHandler(bookings, time.Second), secret, passthrough)
	router.RegisterPayments(e, handler.NewPaymentHandler(payments, bookings, time.Second), secret, passthrough)
	router.RegisterShowtimes(e, handler.NewShowtimeHandler(showtimes, time.Second), secret)
	return &server{e: e, store: store}
}

func token(t *testing.T, sub any, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (s *server) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestBookingFlow(t *testing.T) {
	s := newServer(t)
	alice := token(t, "7", handler.RoleCustomer)
	bob := token(t, float64(8), handler.RoleCustomer)

	rec := s.do(t, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seat_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[model.Booking](t, rec)
	assert.Equal(t, int64(120000), b.SeatPrice)
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)
	assert.Equal(t, uint64(7), b.UserID)

	rec = s.do(t, http.MethodPost, "/v1/bookings", bob, `{"showtime_id":1,"seat_id":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bookings/%d", b.ID), alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[model.BookingView](t, rec)
	require.NotNil(t, v.SeatName)
	assert.Equal(t, "A1", *v.SeatName)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bookings/%d", b.ID), bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/bookings?page=1&page_size=10", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[model.BookingPage](t, rec)
	assert.Equal(t, 1, page.TotalItem)
	assert.Equal(t, 10, page.PageSize)

	rec = s.do(t, http.MethodGet, "/v1/bookings", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[model.BookingPage](t, rec).TotalItem, "customers only see their own bookings")

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/bookings/%d", b.ID), bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/bookings/%d", b.ID), alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.PaymentCanceled, decode[model.Booking](t, rec).PaymentStatus)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/bookings/%d", b.ID), alice, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/bookings", bob, `{"showtime_id":1,"seat_id":1}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBookingErrors(t *testing.T) {
	s := newServer(t)
	alice := token(t, "7", handler.RoleCustomer)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   string
		want   int
	}{
		{"no token", http.MethodGet, "/v1/bookings", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/v1/bookings", "garbage", "", http.StatusUnauthorized},
		{"unknown role", http.MethodGet, "/v1/bookings", token(t, "7", "GUEST"), "", http.StatusForbidden},
		{"non numeric subject", http.MethodGet, "/v1/bookings", token(t, "alice", handler.RoleCustomer), "", http.StatusUnauthorized},
		{"missing fields", http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/bookings", alice, `{`, http.StatusBadRequest},
		{"unknown showtime", http.MethodPost, "/v1/bookings", alice, `{"showtime_id":9,"seat_id":1}`, http.StatusNotFound},
		{"unknown booking", http.MethodGet, "/v1/bookings/99", alice, "", http.StatusNotFound},
		{"bad booking id", http.MethodGet, "/v1/bookings/abc", alice, "", http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/v1/bookings?payment_status=refunded", alice, "", http.StatusBadRequest},
		{"bad page", http.MethodGet, "/v1/bookings?page=-1", alice, "", http.StatusBadRequest},
		{"page offset overflows", http.MethodGet, "/v1/bookings?page=4611686018427387904&page_size=4", alice, "", http.StatusBadRequest},
		{"page beyond int", http.MethodGet, "/v1/bookings?page=18446744073709551615&page_size=4", alice, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.bearer, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPaymentFlow(t *testing.T) {
	s := newServer(t)
	alice := token(t, "7", handler.RoleCustomer)

	rec := s.do(t, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seat_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[model.Booking](t, rec)

	rec = s.do(t, http.MethodPost, "/v1/payments/initiate", alice, fmt.Sprintf(`{"booking_id":%d,"method":"zalopay"}`, b.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	intent := decode[service.PaymentIntent](t, rec)
	assert.Equal(t, model.MethodZaloPay, intent.Method)
	assert.Contains(t, intent.PaymentURL, "fake-gateway.local")

	callback := fmt.Sprintf(`{"booking_id":%d,"transaction_id":"T1","result_code":0}`, b.ID)
	rec = s.do(t, http.MethodPost, "/v1/payments/callback", "", callback)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[model.Booking](t, rec)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, model.MethodZaloPay, *paid.PaymentMethod)

	// redelivery
	rec = s.do(t, http.MethodPost, "/v1/payments/callback", "", callback)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/payments/callback", "", fmt.Sprintf(`{"booking_id":%d,"transaction_id":"T2","result_code":0}`, b.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/payments/%d/status", b.ID), alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[service.PaymentStatusView](t, rec)
	assert.Equal(t, model.PaymentPaid, st.PaymentStatus)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/payments/%d/status", b.ID), token(t, "8", handler.RoleCustomer), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/payments/%d/status", b.ID), token(t, "1", handler.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/bookings/%d", b.ID), alice, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "paid bookings cannot be canceled")
}

func TestPaymentErrors(t *testing.T) {
	s := newServer(t)
	alice := token(t, "7", handler.RoleCustomer)

	rec := s.do(t, http.MethodPost, "/v1/payments/callback", "", `{"booking_id":1,"transaction_id":"T1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "result_code is required")

	rec = s.do(t, http.MethodPost, "/v1/payments/callback", "", `{"booking_id":99,"transaction_id":"T1","result_code":0}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/payments/initiate", "", `{"booking_id":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seat_id":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[model.Booking](t, rec)

	rec = s.do(t, http.MethodPost, "/v1/payments/initiate", alice, fmt.Sprintf(`{"booking_id":%d,"method":"CASH"}`, b.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShowtimeRoutes(t *testing.T) {
	s := newServer(t)
	admin := token(t, "1", handler.RoleAdmin)

	body := `{"movie_id":1,"cinema_id":1,"room_id":1,"show_date":"2024-06-03","show_time_start":"23:00","show_time_end":"01:00"}`
	rec := s.do(t, http.MethodPost, "/v1/showtimes", token(t, "7", handler.RoleCustomer), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/showtimes", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sh := decode[model.Showtime](t, rec)
	assert.Equal(t, 120, sh.DurationMinutes)
	assert.Equal(t, int64(100000), sh.BasePrice)

	rec = s.do(t, http.MethodPost, "/v1/showtimes", admin, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/v1/showtimes/%d", sh.ID), admin, `{"show_time_end":"02:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 180, decode[model.Showtime](t, rec).DurationMinutes)
}

type unavailableStore struct {
	service.BookingStore
}

func (unavailableStore) CreateHold(context.Context, *model.Booking) error {
	return fmt.Errorf("%w: deadlock", repository.ErrTransient)
}

func TestUnavailableMapsTo503(t *testing.T) {
	cat := repository.NewMemoryCatalogRepo()
	cat.PutShowtime(model.Showtime{ID: 1, RoomID: 1, BasePrice: 1})
	cat.PutSeat(model.Seat{ID: 1, RoomID: 1})
	store := unavailableStore{BookingStore: repository.NewMemoryBookingRepo(cat)}
	bookings := service.NewBookingService(store, cat, service.WithRetry(retry.Config{MaxRetries: 0, InitialInterval: time.Millisecond}))

	e := echo.New()
	h := handler.NewBookingHandler(bookings, time.Second)
	e.POST("/v1/bookings", h.Create, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", uint64(7))
			return next(c)
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(`{"showtime_id":1,"seat_id":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadlock")
}
