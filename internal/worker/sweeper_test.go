package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/service"
	"github.com/iliyamo/showtime-booking/internal/worker"
)

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type events struct {
	mu  sync.Mutex
	got []queue.BookingEvent
}

func (e *events) Publish(_ context.Context, ev queue.BookingEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
	return nil
}

func (e *events) ofType(typ queue.EventType) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []uint64
	for _, ev := range e.got {
		if ev.Type == typ {
			ids = append(ids, ev.BookingID)
		}
	}
	return ids
}

func hold(t *testing.T, store *repository.MemoryBookingRepo, seatID uint64, at time.Time) *model.Booking {
	t.Helper()
	ts := at
	b := &model.Booking{UserID: 1, ShowtimeID: 1, SeatID: seatID, SeatPrice: 100000, BookingDateTime: &ts, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, store.CreateHold(context.Background(), b))
	return b
}

func TestSweeper_ExpiresOnlyOldPendingHolds(t *testing.T) {
	store := repository.NewMemoryBookingRepo(nil)
	clk := &clock{t: t0}
	ev := &events{}
	s := worker.NewSweeper(store, worker.Config{HoldDuration: 10 * time.Minute}, worker.WithClock(clk.Now), worker.WithPublisher(ev))
	ctx := context.Background()

	old := hold(t, store, 1, t0.Add(-11*time.Minute))
	young := hold(t, store, 2, t0.Add(-9*time.Minute))
	paid := hold(t, store, 3, t0.Add(-30*time.Minute))
	ok, err := store.MarkPaid(ctx, paid.ID, "T1", model.MethodMomo, t0)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCanceled, got.PaymentStatus)
	assert.False(t, got.IsBooked)
	assert.Nil(t, got.BookingDateTime)

	got, err = store.GetByID(ctx, young.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.PaymentStatus)
	assert.True(t, got.IsBooked)

	got, err = store.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.True(t, got.IsBooked)

	assert.Equal(t, []uint64{old.ID}, ev.ofType(queue.BookingExpired))

	// a second sweep finds nothing new
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_Batches(t *testing.T) {
	store := repository.NewMemoryBookingRepo(nil)
	clk := &clock{t: t0}
	s := worker.NewSweeper(store, worker.Config{HoldDuration: time.Minute, BatchSize: 2}, worker.WithClock(clk.Now))

	for seat := uint64(1); seat <= 5; seat++ {
		hold(t, store, seat, t0.Add(-time.Hour))
	}

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	left, err := store.FindExpiredHolds(context.Background(), t0, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSweeper_DefaultsZeroConfig(t *testing.T) {
	store := repository.NewMemoryBookingRepo(nil)
	clk := &clock{t: t0}
	s := worker.NewSweeper(store, worker.Config{}, worker.WithClock(clk.Now))

	b := hold(t, store, 1, t0.Add(-9*time.Minute))
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(2 * time.Minute)
	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCanceled, got.PaymentStatus)
}

func seedCatalog() *repository.MemoryCatalogRepo {
	cat := repository.NewMemoryCatalogRepo()
	cat.PutMovie(model.Movie{ID: 1, Name: "Dune", BasePrice: 100000})
	cat.PutCinema(model.Cinema{ID: 1, Name: "Galaxy"})
	cat.PutRoom(model.Room{ID: 1, CinemaID: 1, Name: "Room 1"})
	cat.PutSeat(model.Seat{ID: 1, RoomID: 1, Name: "A1"})
	cat.PutShowtime(model.Showtime{ID: 1, MovieID: 1, CinemaID: 1, RoomID: 1, BasePrice: 100000, ShowDate: t0, ShowTimeStart: "19:00", ShowTimeEnd: "21:00"})
	return cat
}

func TestSweeper_UnpaidHoldReleasesSeat(t *testing.T) {
	cat := seedCatalog()
	store := repository.NewMemoryBookingRepo(cat)
	clk := &clock{t: t0}
	ev := &events{}
	bookings := service.NewBookingService(store, cat, service.WithClock(clk.Now), service.WithPublisher(ev))
	payments := service.NewPaymentService(store, "", service.WithClock(clk.Now), service.WithPublisher(ev))
	sweeper := worker.NewSweeper(store, worker.DefaultConfig(), worker.WithClock(clk.Now), worker.WithPublisher(ev))
	ctx := context.Background()

	first, err := bookings.Create(ctx, 7, 1, 1)
	require.NoError(t, err)

	_, err = bookings.Create(ctx, 8, 1, 1)
	require.ErrorIs(t, err, repository.ErrSeatAlreadyHeld)

	clk.Advance(11 * time.Minute)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a late success callback cannot resurrect an expired hold
	_, err = payments.HandleCallback(ctx, service.CallbackInput{BookingID: first.ID, TransactionID: "LATE"})
	assert.ErrorIs(t, err, repository.ErrAlreadySettled)

	second, err := bookings.Create(ctx, 8, 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []uint64{first.ID}, ev.ofType(queue.BookingExpired))
}

func TestSweeper_RacesWithPaymentCallback(t *testing.T) {
	for i := 0; i < 20; i++ {
		cat := seedCatalog()
		store := repository.NewMemoryBookingRepo(cat)
		clk := &clock{t: t0}
		bookings := service.NewBookingService(store, cat, service.WithClock(clk.Now))
		payments := service.NewPaymentService(store, "", service.WithClock(clk.Now))
		sweeper := worker.NewSweeper(store, worker.DefaultConfig(), worker.WithClock(clk.Now))
		ctx := context.Background()

		b, err := bookings.Create(ctx, 7, 1, 1)
		require.NoError(t, err)
		clk.Advance(11 * time.Minute)

		var (
			wg       sync.WaitGroup
			swept    int
			sweepErr error
			payErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			swept, sweepErr = sweeper.Sweep(ctx)
		}()
		go func() {
			defer wg.Done()
			_, payErr = payments.HandleCallback(ctx, service.CallbackInput{BookingID: b.ID, TransactionID: "T1"})
		}()
		wg.Wait()
		require.NoError(t, sweepErr)

		got, err := store.GetByID(ctx, b.ID)
		require.NoError(t, err)
		if swept == 1 {
			// rejected when it read the expired hold, a no-op when it lost the write
			if payErr != nil {
				assert.ErrorIs(t, payErr, repository.ErrAlreadySettled)
			}
			assert.Equal(t, model.PaymentCanceled, got.PaymentStatus)
			assert.False(t, got.IsBooked)
		} else {
			assert.NoError(t, payErr)
			assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
			assert.True(t, got.IsBooked)
		}
	}
}

func TestSweeper_RacesWithUserCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		cat := seedCatalog()
		store := repository.NewMemoryBookingRepo(cat)
		clk := &clock{t: t0}
		ev := &events{}
		bookings := service.NewBookingService(store, cat, service.WithClock(clk.Now), service.WithPublisher(ev))
		sweeper := worker.NewSweeper(store, worker.DefaultConfig(), worker.WithClock(clk.Now), worker.WithPublisher(ev))
		ctx := context.Background()

		b, err := bookings.Create(ctx, 7, 1, 1)
		require.NoError(t, err)
		clk.Advance(11 * time.Minute)

		var (
			wg        sync.WaitGroup
			swept     int
			sweepErr  error
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			swept, sweepErr = sweeper.Sweep(ctx)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = bookings.Cancel(ctx, b.ID)
		}()
		wg.Wait()
		require.NoError(t, sweepErr)

		got, err := store.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentCanceled, got.PaymentStatus)
		assert.False(t, got.IsBooked)
		assert.Nil(t, got.BookingDateTime)

		// exactly one of the two writes took effect
		if swept == 1 {
			assert.ErrorIs(t, cancelErr, repository.ErrAlreadyCanceled)
			assert.Equal(t, []uint64{b.ID}, ev.ofType(queue.BookingExpired))
			assert.Empty(t, ev.ofType(queue.BookingCanceled))
		} else {
			assert.NoError(t, cancelErr)
			assert.Equal(t, []uint64{b.ID}, ev.ofType(queue.BookingCanceled))
			assert.Empty(t, ev.ofType(queue.BookingExpired))
		}
	}
}
