package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/pricing"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// BookingService creates, lists and cancels seat bookings.
type BookingService struct {
	base
	store   BookingStore
	catalog CatalogStore
}

// NewBookingService wires a BookingService.
func NewBookingService(store BookingStore, catalog CatalogStore, opts ...Option) *BookingService {
	return &BookingService{
		base:    newBase("booking-service", opts),
		store:   store,
		catalog: catalog,
	}
}

// Create holds seatID for showtimeID on behalf of userID.  The seat price is
// computed now from the showtime base price and the seat type multiplier and
// is never recomputed.  It fails with repository.ErrSeatAlreadyHeld when
// another booking holds the seat.
func (s *BookingService) Create(ctx context.Context, userID, showtimeID, seatID uint64) (*model.Booking, error) {
	if userID == 0 || showtimeID == 0 || seatID == 0 {
		return nil, fmt.Errorf("%w: user, showtime and seat are required", repository.ErrInvalidInput)
	}

	var created *model.Booking
	err := s.do(ctx, func(ctx context.Context) error {
		show, err := s.catalog.GetShowtime(ctx, showtimeID)
		if err != nil {
			return err
		}
		seat, err := s.catalog.GetSeat(ctx, seatID)
		if err != nil {
			return err
		}
		if seat.RoomID != show.RoomID {
			return fmt.Errorf("%w: seat %d is not in the showtime's room", repository.ErrInvalidInput, seatID)
		}

		now := s.clock()
		b := &model.Booking{
			UserID:          userID,
			ShowtimeID:      showtimeID,
			SeatID:          seatID,
			SeatPrice:       pricing.SeatPrice(show, seat),
			PaymentStatus:   model.PaymentPending,
			IsBooked:        true,
			BookingDateTime: &now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.CreateHold(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.Uint64("booking_id", created.ID),
		zap.Uint64("user_id", userID),
		zap.Uint64("showtime_id", showtimeID),
		zap.Uint64("seat_id", seatID),
		zap.Int64("seat_price", created.SeatPrice),
	)
	s.publish(ctx, queue.BookingCreated, created)
	return created, nil
}

// FindAll lists bookings matching f.  Pagination applies only when both page
// and page size are set.
func (s *BookingService) FindAll(ctx context.Context, f model.BookingFilter, p model.Pagination) (*model.BookingPage, error) {
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", repository.ErrInvalidInput, f.PaymentStatus)
	}
	if p.Page < 0 || p.PageSize < 0 {
		return nil, fmt.Errorf("%w: page and page size must be positive", repository.ErrInvalidInput)
	}
	if !p.InRange() {
		return nil, fmt.Errorf("%w: page %d is out of range", repository.ErrInvalidInput, p.Page)
	}
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	return model.NewBookingPage(items, total, p), nil
}

// FindOne returns a single booking projection.
func (s *BookingService) FindOne(ctx context.Context, id uint64) (*model.BookingView, error) {
	return s.store.GetView(ctx, id)
}

// Cancel releases the seat held by a PENDING booking.  Paid bookings and
// bookings that no longer hold their seat are rejected with a conflict.
func (s *BookingService) Cancel(ctx context.Context, id uint64) (*model.Booking, error) {
	var canceled *model.Booking
	err := s.do(ctx, func(ctx context.Context) error {
		b, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := pendingHold(b); err != nil {
			return err
		}
		ok, err := s.store.Cancel(ctx, id, s.clock())
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, id)
		}
		canceled, err = s.store.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking canceled", zap.Uint64("booking_id", id))
	s.publish(ctx, queue.BookingCanceled, canceled)
	return canceled, nil
}

// lostRace re-reads a booking whose conditional write affected no row and
// reports why.
func (s *BookingService) lostRace(ctx context.Context, id uint64) error {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := pendingHold(b); err != nil {
		return err
	}
	return repository.ErrConflict
}

// pendingHold reports why b can no longer be changed by its holder, or nil
// when it is an active PENDING hold.
func pendingHold(b *model.Booking) error {
	switch {
	case !b.IsBooked:
		return repository.ErrAlreadyCanceled
	case b.PaymentStatus == model.PaymentPaid:
		return repository.ErrAlreadyPaid
	case b.PaymentStatus != model.PaymentPending:
		return repository.ErrAlreadyCanceled
	}
	return nil
}
