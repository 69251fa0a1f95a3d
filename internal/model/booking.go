package model

import (
	"math"
	"time"
)

// PaymentStatus is the settlement state of a booking.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentCanceled PaymentStatus = "CANCELED"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCanceled:
		return true
	}
	return false
}

// PaymentMethod is the instrument the customer chose at the gateway.
type PaymentMethod string

const (
	MethodATMCard    PaymentMethod = "ATM_CARD"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodDebitCard  PaymentMethod = "DEBIT_CARD"
	MethodMomo       PaymentMethod = "MOMO"
	MethodZaloPay    PaymentMethod = "ZALOPAY"
	MethodVNPay      PaymentMethod = "VNPAY"
	MethodShopeePay  PaymentMethod = "SHOPEEPAY"
	MethodApplePay   PaymentMethod = "APPLEPAY"
)

// DefaultPaymentMethod is recorded when neither the callback nor the
// initiation supplied a method.
const DefaultPaymentMethod = MethodMomo

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodATMCard, MethodCreditCard, MethodDebitCard, MethodMomo,
		MethodZaloPay, MethodVNPay, MethodShopeePay, MethodApplePay:
		return true
	}
	return false
}

// Booking is a single seat held (or once held) for a showtime by a user.
// Rows are never deleted; cancellation is a state transition.
//
// Fields:
//
//	ID              – primary key identifier.
//	UserID          – user who made the booking.
//	ShowtimeID      – showtime being booked.
//	SeatID          – seat being booked.
//	SeatPrice       – price frozen at creation time.
//	PaymentStatus   – PENDING, PAID or CANCELED.
//	IsBooked        – true while the seat is held (PENDING or PAID).
//	BookingDateTime – when the hold began; nil once canceled.
//	PaymentMethod   – method chosen at initiation or reported by the gateway.
//	TransactionID   – gateway transaction reference.
//	PaidAt          – settlement time of a successful payment.
type Booking struct {
	ID              uint64         `json:"booking_id"`        // bookings.id
	UserID          uint64         `json:"user_id"`           // bookings.user_id
	ShowtimeID      uint64         `json:"showtime_id"`       // bookings.showtime_id
	SeatID          uint64         `json:"seat_id"`           // bookings.seat_id
	SeatPrice       int64          `json:"seat_price"`        // bookings.seat_price
	PaymentStatus   PaymentStatus  `json:"payment_status"`    // bookings.payment_status
	IsBooked        bool           `json:"is_booked"`         // bookings.is_booked
	BookingDateTime *time.Time     `json:"booking_date_time"` // bookings.booking_date_time (nullable)
	PaymentMethod   *PaymentMethod `json:"payment_method"`    // bookings.payment_method (nullable)
	TransactionID   *string        `json:"transaction_id"`    // bookings.transaction_id (nullable)
	PaidAt          *time.Time     `json:"paid_at"`           // bookings.paid_at (nullable)
	CreatedAt       time.Time      `json:"created_at"`        // bookings.created_at
	UpdatedAt       time.Time      `json:"updated_at"`        // bookings.updated_at
}

// Held reports whether the booking currently occupies its seat.
func (b *Booking) Held() bool {
	return b.IsBooked && (b.PaymentStatus == PaymentPending || b.PaymentStatus == PaymentPaid)
}

// SameTransaction reports whether the stored transaction id equals txID.
func (b *Booking) SameTransaction(txID string) bool {
	return b.TransactionID != nil && *b.TransactionID == txID
}

// BookingView is the read projection returned to callers.  The catalog
// names are filled when the store can join the reference tables and are
// nil otherwise.
type BookingView struct {
	Booking
	MovieName     *string    `json:"movie_name"`
	CinemaName    *string    `json:"cinema_name"`
	CinemaAddress *string    `json:"cinema_address"`
	RoomName      *string    `json:"room_name"`
	SeatName      *string    `json:"seat_name"`
	SeatType      *string    `json:"seat_type"`
	ShowDate      *time.Time `json:"show_date"`
	ShowTimeStart *string    `json:"show_time_start"`
	ShowTimeEnd   *string    `json:"show_time_end"`
}

// BookingFilter narrows a booking listing.  Zero values mean "any".
type BookingFilter struct {
	UserID        uint64
	ShowtimeID    uint64
	PaymentStatus PaymentStatus
}

// Pagination selects a page of results.  When either field is zero no
// pagination is applied and the whole matching set is returned.
type Pagination struct {
	Page     int
	PageSize int
}

// Enabled reports whether both page and page size were supplied.
func (p Pagination) Enabled() bool {
	return p.Page > 0 && p.PageSize > 0
}

// InRange reports whether the offset of p fits in an int.
func (p Pagination) InRange() bool {
	return !p.Enabled() || p.Page-1 <= math.MaxInt/p.PageSize
}

// Offset returns the number of rows to skip.  Offsets that would overflow
// saturate at math.MaxInt.
func (p Pagination) Offset() int {
	if !p.Enabled() {
		return 0
	}
	if !p.InRange() {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// BookingPage is a page of bookings plus the counters the listing
// endpoint reports.
type BookingPage struct {
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	TotalItem int           `json:"total_item"`
	TotalPage int           `json:"total_page"`
	Items     []BookingView `json:"items"`
}

// NewBookingPage fills the page counters for items out of total matches.
func NewBookingPage(items []BookingView, total int, p Pagination) *BookingPage {
	page := &BookingPage{Page: 1, PageSize: total, TotalItem: total, TotalPage: 1, Items: items}
	if items == nil {
		page.Items = []BookingView{}
	}
	if p.Enabled() {
		page.Page = p.Page
		page.PageSize = p.PageSize
		page.TotalPage = total / p.PageSize
		if total%p.PageSize != 0 {
			page.TotalPage++
		}
	}
	return page
}
