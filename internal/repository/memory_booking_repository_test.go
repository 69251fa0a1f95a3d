package repository

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/model"
)

var now = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func newHold(showtimeID, seatID uint64, at time.Time) *model.Booking {
	ts := at
	return &model.Booking{
		UserID: 1, ShowtimeID: showtimeID, SeatID: seatID, SeatPrice: 90000,
		BookingDateTime: &ts, CreatedAt: at, UpdatedAt: at,
	}
}

func TestMemoryBookingRepo_CreateHold(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx := context.Background()

	b := newHold(1, 1, now)
	require.NoError(t, r.CreateHold(ctx, b))
	assert.Equal(t, uint64(1), b.ID)

	assert.ErrorIs(t, r.CreateHold(ctx, newHold(1, 1, now)), ErrSeatAlreadyHeld)
	assert.NoError(t, r.CreateHold(ctx, newHold(2, 1, now)), "same seat, other showtime")
	assert.NoError(t, r.CreateHold(ctx, newHold(1, 2, now)), "same showtime, other seat")

	ok, err := r.Cancel(ctx, b.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, r.CreateHold(ctx, newHold(1, 1, now)), "released seat is free")
}

func TestMemoryBookingRepo_CreateHold_Canceled(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.CreateHold(ctx, newHold(1, 1, now)), context.Canceled)
}

func TestMemoryBookingRepo_ReturnsCopies(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx := context.Background()
	b := newHold(1, 1, now)
	require.NoError(t, r.CreateHold(ctx, b))

	got, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	got.SeatPrice = 1
	*got.BookingDateTime = time.Time{}

	again, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), again.SeatPrice)
	assert.Equal(t, now, *again.BookingDateTime)

	_, err = r.GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	_, err = r.GetView(ctx, 99)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestMemoryBookingRepo_ConditionalTransitions(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx := context.Background()
	b := newHold(1, 1, now)
	require.NoError(t, r.CreateHold(ctx, b))

	ok, err := r.AttachPaymentMethod(ctx, b.ID, model.MethodVNPay, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.MarkPaid(ctx, b.ID, "T1", model.MethodVNPay, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// every pending-guarded write now loses
	ok, err = r.MarkPaid(ctx, b.ID, "T2", model.MethodMomo, now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.MarkPaymentFailed(ctx, b.ID, "T2", now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.Cancel(ctx, b.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.AttachPaymentMethod(ctx, b.ID, model.MethodMomo, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "T1", *got.TransactionID)
	assert.Equal(t, model.MethodVNPay, *got.PaymentMethod)

	// a paid booking keeps its seat
	assert.ErrorIs(t, r.CreateHold(ctx, newHold(1, 1, now)), ErrSeatAlreadyHeld)

	ok, err = r.Cancel(ctx, 99, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBookingRepo_MarkPaymentFailedReleasesSeat(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx := context.Background()
	b := newHold(1, 1, now)
	require.NoError(t, r.CreateHold(ctx, b))

	ok, err := r.MarkPaymentFailed(ctx, b.ID, "T9", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCanceled, got.PaymentStatus)
	assert.False(t, got.IsBooked)
	assert.Nil(t, got.BookingDateTime)
	assert.Equal(t, "T9", *got.TransactionID)

	assert.NoError(t, r.CreateHold(ctx, newHold(1, 1, now)))
}

func TestMemoryBookingRepo_ExpiredHolds(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx := context.Background()
	cutoff := now.Add(-10 * time.Minute)

	older := newHold(1, 1, now.Add(-30*time.Minute))
	old := newHold(1, 2, now.Add(-20*time.Minute))
	young := newHold(1, 3, now.Add(-5*time.Minute))
	for _, b := range []*model.Booking{old, older, young} {
		require.NoError(t, r.CreateHold(ctx, b))
	}

	ids, err := r.FindExpiredHolds(ctx, cutoff, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{older.ID, old.ID}, ids, "oldest first")

	limited, err := r.FindExpiredHolds(ctx, cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{older.ID}, limited)

	// paid between selection and update
	_, err = r.MarkPaid(ctx, old.ID, "T1", model.MethodMomo, now)
	require.NoError(t, err)

	expired, err := r.ExpireHolds(ctx, append(ids, young.ID, 99), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, []uint64{older.ID}, expired)

	got, err := r.GetByID(ctx, young.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.PaymentStatus)

	// the boundary itself is not expired
	r.SetBookingDateTime(young.ID, cutoff)
	ids, err = r.FindExpiredHolds(ctx, cutoff, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryBookingRepo_List(t *testing.T) {
	cat := NewMemoryCatalogRepo()
	cat.PutMovie(model.Movie{ID: 1, Name: "Dune"})
	cat.PutCinema(model.Cinema{ID: 1, Name: "Galaxy", Address: "1 Main St"})
	cat.PutRoom(model.Room{ID: 1, CinemaID: 1, Name: "Room 1"})
	cat.PutSeat(model.Seat{ID: 1, RoomID: 1, Name: "A1", SeatType: &model.SeatType{Name: "VIP", Multiplier: 1.2}})
	cat.PutShowtime(model.Showtime{ID: 1, MovieID: 1, CinemaID: 1, RoomID: 1, ShowDate: now, ShowTimeStart: "19:00", ShowTimeEnd: "21:00"})

	r := NewMemoryBookingRepo(cat)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b := newHold(1, uint64(i+1), now.Add(time.Duration(i)*time.Second))
		b.UserID = uint64(i%2 + 1)
		require.NoError(t, r.CreateHold(ctx, b))
	}

	all, total, err := r.List(ctx, model.BookingFilter{}, model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 5)
	assert.Equal(t, uint64(5), all[0].ID)
	assert.Equal(t, uint64(1), all[4].ID)
	require.NotNil(t, all[4].SeatName)
	assert.Equal(t, "A1", *all[4].SeatName)
	assert.Equal(t, "VIP", *all[4].SeatType)
	assert.Equal(t, "Dune", *all[4].MovieName)
	assert.Equal(t, "1 Main St", *all[4].CinemaAddress)
	assert.Nil(t, all[0].SeatName, "seat 5 is not in the catalog")

	mine, total, err := r.List(ctx, model.BookingFilter{UserID: 2}, model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, mine, 2)

	page, total, err := r.List(ctx, model.BookingFilter{}, model.Pagination{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(1), page[0].ID)

	beyond, _, err := r.List(ctx, model.BookingFilter{}, model.Pagination{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	assert.NotPanics(t, func() {
		far, _, err := r.List(ctx, model.BookingFilter{}, model.Pagination{Page: 1 << 62, PageSize: 4})
		require.NoError(t, err)
		assert.Empty(t, far)
	})
	wide, _, err := r.List(ctx, model.BookingFilter{}, model.Pagination{Page: 1, PageSize: math.MaxInt})
	require.NoError(t, err)
	assert.Len(t, wide, 5)
}

func TestMemoryBookingRepo_ConcurrentHolds(t *testing.T) {
	r := NewMemoryBookingRepo(nil)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.CreateHold(ctx, newHold(1, 1, now)); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}
