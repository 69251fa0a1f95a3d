package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/retry"
)

const (
	testShowtimeID uint64 = 1
	testRoomID     uint64 = 1
	vipSeatID      uint64 = 1
	standardSeatID uint64 = 2
	otherRoomSeat  uint64 = 3
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// seedCatalog stores one showtime priced at 100000 in room 1 with a VIP
// seat (x1.2), a standard seat and a seat that belongs to another room.
func seedCatalog() *repository.MemoryCatalogRepo {
	cat := repository.NewMemoryCatalogRepo()
	cat.PutMovie(model.Movie{ID: 1, Name: "Dune", BasePrice: 100000})
	cat.PutCinema(model.Cinema{ID: 1, Name: "Galaxy", Address: "1 Main St"})
	cat.PutRoom(model.Room{ID: testRoomID, CinemaID: 1, Name: "Room 1"})
	cat.PutRoom(model.Room{ID: 2, CinemaID: 1, Name: "Room 2"})
	cat.PutSeat(model.Seat{ID: vipSeatID, RoomID: testRoomID, Name: "A1", SeatType: &model.SeatType{ID: 2, Name: "VIP", Multiplier: 1.2}})
	cat.PutSeat(model.Seat{ID: standardSeatID, RoomID: testRoomID, Name: "A2", SeatType: &model.SeatType{ID: 1, Name: "STANDARD", Multiplier: 1}})
	cat.PutSeat(model.Seat{ID: otherRoomSeat, RoomID: 2, Name: "B1"})
	cat.PutShowtime(model.Showtime{
		ID: testShowtimeID, MovieID: 1, CinemaID: 1, RoomID: testRoomID, BasePrice: 100000,
		ShowDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), ShowTimeStart: "19:00", ShowTimeEnd: "21:30",
	})
	return cat
}

type fixture struct {
	clock    *fakeClock
	catalog  *repository.MemoryCatalogRepo
	store    *repository.MemoryBookingRepo
	events   *recordingPublisher
	bookings *BookingService
	payments *PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		clock:   newFakeClock(),
		catalog: seedCatalog(),
		events:  &recordingPublisher{},
	}
	f.store = repository.NewMemoryBookingRepo(f.catalog)
	opts := f.options()
	f.bookings = NewBookingService(f.store, f.catalog, opts...)
	f.payments = NewPaymentService(f.store, "", opts...)
	return f
}

func (f *fixture) options() []Option {
	return []Option{
		WithClock(f.clock.Now),
		WithPublisher(f.events),
		WithRetry(retry.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
	}
}

// flakyStore fails the first failures calls to CreateHold with a transient
// error.
type flakyStore struct {
	BookingStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) CreateHold(ctx context.Context, b *model.Booking) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return repository.ErrTransient
	}
	return s.BookingStore.CreateHold(ctx, b)
}

// sweptStore expires the hold just before a settlement write, as if the
// sweeper committed between the callback's read and its conditional update.
type sweptStore struct {
	BookingStore
	at time.Time
}

func (s *sweptStore) sweep(ctx context.Context, id uint64) error {
	_, err := s.BookingStore.ExpireHolds(ctx, []uint64{id}, s.at, s.at)
	return err
}

func (s *sweptStore) MarkPaid(ctx context.Context, id uint64, txID string, method model.PaymentMethod, at time.Time) (bool, error) {
	if err := s.sweep(ctx, id); err != nil {
		return false, err
	}
	return s.BookingStore.MarkPaid(ctx, id, txID, method, at)
}

func (s *sweptStore) MarkPaymentFailed(ctx context.Context, id uint64, txID string, at time.Time) (bool, error) {
	if err := s.sweep(ctx, id); err != nil {
		return false, err
	}
	return s.BookingStore.MarkPaymentFailed(ctx, id, txID, at)
}
