package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/queue"
)

// ExpiryStore is the part of the reservation store the sweeper needs.
type ExpiryStore interface {
	FindExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	ExpireHolds(ctx context.Context, ids []uint64, cutoff, at time.Time) ([]uint64, error)
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
}

// Config contains configuration for the sweeper.
type Config struct {
	// HoldDuration is how long a PENDING booking may hold its seat.
	HoldDuration time.Duration
	// SweepInterval is the time between sweeps.
	SweepInterval time.Duration
	// BatchSize caps the ids handled per select/update round.
	BatchSize int
}

// DefaultConfig returns a 10 minute hold swept every minute.
func DefaultConfig() Config {
	return Config{
		HoldDuration:  10 * time.Minute,
		SweepInterval: time.Minute,
		BatchSize:     500,
	}
}

// Sweeper cancels PENDING bookings whose hold has outlived HoldDuration.
type Sweeper struct {
	store  ExpiryStore
	events queue.Publisher
	config Config
	now    func() time.Time
	log    *logger.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides the sweeper's time source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithPublisher sets where booking.expired events go.
func WithPublisher(p queue.Publisher) SweeperOption {
	return func(s *Sweeper) { s.events = p }
}

// WithLogger sets the sweeper logger.
func WithLogger(l *logger.Logger) SweeperOption {
	return func(s *Sweeper) { s.log = l }
}

// NewSweeper returns a Sweeper.  Zero config fields take their defaults.
func NewSweeper(store ExpiryStore, config Config, opts ...SweeperOption) *Sweeper {
	def := DefaultConfig()
	if config.HoldDuration <= 0 {
		config.HoldDuration = def.HoldDuration
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	s := &Sweeper{
		store:  store,
		events: queue.NopPublisher{},
		config: config,
		now:    time.Now,
		log:    logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("expiry-sweeper")
	return s
}

// Periodic wraps Sweep in a runner on the configured interval.
func (s *Sweeper) Periodic() *Periodic {
	return NewPeriodic("expiry-sweeper", s.config.SweepInterval, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	}, s.log)
}

// Sweep runs one expiry cycle and returns how many bookings it canceled.
// Each round selects up to BatchSize candidates and cancels them with an
// update that re-checks the expiry predicate, so a booking paid or canceled
// in between is left alone.  Rounds repeat until a short batch.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	cutoff := now.Add(-s.config.HoldDuration)

	total := 0
	for {
		ids, err := s.store.FindExpiredHolds(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}
		expired, err := s.store.ExpireHolds(ctx, ids, cutoff, now)
		if err != nil {
			return total, err
		}
		total += len(expired)
		s.announce(ctx, expired, now)
		if len(ids) < s.config.BatchSize || len(expired) == 0 {
			break
		}
	}

	if total > 0 {
		s.log.Info("expired unpaid bookings", zap.Int("count", total), zap.Time("cutoff", cutoff))
	} else {
		s.log.Debug("no expired bookings", zap.Time("cutoff", cutoff))
	}
	return total, nil
}

func (s *Sweeper) announce(ctx context.Context, ids []uint64, at time.Time) {
	for _, id := range ids {
		b, err := s.store.GetByID(ctx, id)
		if err != nil {
			s.log.Warn("load expired booking failed", zap.Uint64("booking_id", id), zap.Error(err))
			continue
		}
		if err := s.events.Publish(ctx, queue.NewBookingEvent(queue.BookingExpired, b, at)); err != nil {
			s.log.Warn("publish booking.expired failed", zap.Uint64("booking_id", id), zap.Error(err))
		}
	}
}
