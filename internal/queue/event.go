// Package queue carries booking lifecycle events over RabbitMQ.
package queue

import (
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// BookingQueue is the durable queue every booking event is routed to.
const BookingQueue = "booking.events"

// EventType names a booking lifecycle transition.
type EventType string

const (
	BookingCreated       EventType = "booking.created"
	BookingCanceled      EventType = "booking.canceled"
	BookingExpired       EventType = "booking.expired"
	BookingPaid          EventType = "booking.paid"
	BookingPaymentFailed EventType = "booking.payment_failed"
)

// BookingEvent is published after a booking changes state.  It carries
// enough of the booking for downstream consumers to log or notify without
// querying the primary database.
type BookingEvent struct {
	Type          EventType           `json:"type"`
	BookingID     uint64              `json:"booking_id"`
	UserID        uint64              `json:"user_id"`
	ShowtimeID    uint64              `json:"showtime_id"`
	SeatID        uint64              `json:"seat_id"`
	SeatPrice     int64               `json:"seat_price"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	TransactionID string              `json:"transaction_id,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// NewBookingEvent snapshots b into an event of the given type.
func NewBookingEvent(typ EventType, b *model.Booking, at time.Time) BookingEvent {
	ev := BookingEvent{
		Type:          typ,
		BookingID:     b.ID,
		UserID:        b.UserID,
		ShowtimeID:    b.ShowtimeID,
		SeatID:        b.SeatID,
		SeatPrice:     b.SeatPrice,
		PaymentStatus: b.PaymentStatus,
		OccurredAt:    at.UTC(),
	}
	if b.TransactionID != nil {
		ev.TransactionID = *b.TransactionID
	}
	return ev
}
