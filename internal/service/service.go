// Package service holds the booking lifecycle, payment reconciliation and
// showtime pricing logic.  Services depend on small store interfaces so the
// MySQL and in-memory repositories are interchangeable.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/retry"
)

// BookingStore is the reservation store.  The bool-returning methods are
// conditional writes: they report false, without error, when the booking was
// not in the state the write expects.
type BookingStore interface {
	CreateHold(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	GetView(ctx context.Context, id uint64) (*model.BookingView, error)
	List(ctx context.Context, f model.BookingFilter, p model.Pagination) ([]model.BookingView, int, error)
	Cancel(ctx context.Context, id uint64, at time.Time) (bool, error)
	FindExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	ExpireHolds(ctx context.Context, ids []uint64, cutoff, at time.Time) ([]uint64, error)
	AttachPaymentMethod(ctx context.Context, id uint64, method model.PaymentMethod, at time.Time) (bool, error)
	MarkPaid(ctx context.Context, id uint64, txID string, method model.PaymentMethod, at time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uint64, txID string, at time.Time) (bool, error)
}

// CatalogStore reads pricing reference data and persists showtimes.
type CatalogStore interface {
	GetMovie(ctx context.Context, id uint64) (*model.Movie, error)
	GetCinema(ctx context.Context, id uint64) (*model.Cinema, error)
	GetRoom(ctx context.Context, id uint64) (*model.Room, error)
	GetSeat(ctx context.Context, id uint64) (*model.Seat, error)
	GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error)
	FindDuplicateShowtime(ctx context.Context, s *model.Showtime, excludeID uint64) (bool, error)
	CreateShowtime(ctx context.Context, s *model.Showtime) error
	UpdateShowtime(ctx context.Context, s *model.Showtime) error
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a service.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRetry sets the retry policy for transient storage failures.
func WithRetry(cfg retry.Config) Option {
	return func(b *base) { b.retrier = retry.New(cfg, repository.IsTransient) }
}

// WithPublisher sets where lifecycle events are sent.
func WithPublisher(p queue.Publisher) Option {
	return func(b *base) {
		if p != nil {
			b.events = p
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// base is the plumbing shared by every service.
type base struct {
	now     Clock
	retrier *retry.Retrier
	events  queue.Publisher
	log     *logger.Logger
}

func newBase(name string, opts []Option) base {
	b := base{
		now:     time.Now,
		retrier: retry.New(retry.DefaultConfig(), repository.IsTransient),
		events:  queue.NopPublisher{},
		log:     logger.Get(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.Named(name)
	return b
}

// clock returns the current time truncated to milliseconds, the precision
// the bookings table stores.
func (b *base) clock() time.Time {
	return b.now().UTC().Truncate(time.Millisecond)
}

// do runs op under the retry policy and maps an exhausted budget to
// repository.ErrUnavailable.
func (b *base) do(ctx context.Context, op retry.Operation) error {
	err := b.retrier.Do(ctx, op)
	if errors.Is(err, retry.ErrExhausted) {
		b.log.Error("storage retries exhausted", zap.Int("attempts", retry.Attempts(err)), zap.Error(err))
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}

// publish sends an event and only logs failures.  The state change it
// describes has already committed.
func (b *base) publish(ctx context.Context, typ queue.EventType, bk *model.Booking) {
	ev := queue.NewBookingEvent(typ, bk, b.clock())
	if err := b.events.Publish(ctx, ev); err != nil {
		b.log.Warn("publish booking event failed",
			zap.String("type", string(typ)),
			zap.Uint64("booking_id", bk.ID),
			zap.Error(err),
		)
	}
}
