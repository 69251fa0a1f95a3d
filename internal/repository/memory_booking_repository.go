package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// MemoryBookingRepo implements the reservation store in process memory.
// A single mutex serializes writes, which gives every conditional method
// the same compare-and-swap semantics as the MySQL conditional UPDATEs.
// It is meant for tests and local runs.
type MemoryBookingRepo struct {
	mu       sync.RWMutex
	bookings map[uint64]*model.Booking
	active   map[string]uint64 // "showtime:seat" -> holding booking id
	nextID   uint64
	catalog  *MemoryCatalogRepo
}

// NewMemoryBookingRepo creates an empty store.  When catalog is non-nil the
// booking views are enriched with its names.
func NewMemoryBookingRepo(catalog *MemoryCatalogRepo) *MemoryBookingRepo {
	return &MemoryBookingRepo{
		bookings: make(map[uint64]*model.Booking),
		active:   make(map[string]uint64),
		catalog:  catalog,
	}
}

func holdKey(showtimeID, seatID uint64) string {
	return fmt.Sprintf("%d:%d", showtimeID, seatID)
}

// CreateHold inserts b as a new PENDING hold unless the seat is already held.
func (r *MemoryBookingRepo) CreateHold(ctx context.Context, b *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := holdKey(b.ShowtimeID, b.SeatID)
	if _, held := r.active[key]; held {
		return ErrSeatAlreadyHeld
	}
	r.nextID++
	b.ID = r.nextID
	b.PaymentStatus = model.PaymentPending
	b.IsBooked = true
	r.bookings[b.ID] = cloneBooking(b)
	r.active[key] = b.ID
	return nil
}

// GetByID returns a copy of the booking or ErrBookingNotFound.
func (r *MemoryBookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// GetView returns the booking projection or ErrBookingNotFound.
func (r *MemoryBookingRepo) GetView(ctx context.Context, id uint64) (*model.BookingView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	v := r.view(b)
	return &v, nil
}

// List returns matching bookings, most recent first, with the total count.
func (r *MemoryBookingRepo) List(ctx context.Context, f model.BookingFilter, p model.Pagination) ([]model.BookingView, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*model.Booking, 0)
	for _, b := range r.bookings {
		if f.UserID != 0 && b.UserID != f.UserID {
			continue
		}
		if f.ShowtimeID != 0 && b.ShowtimeID != f.ShowtimeID {
			continue
		}
		if f.PaymentStatus != "" && b.PaymentStatus != f.PaymentStatus {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if p.Enabled() {
		start := p.Offset()
		if start < 0 || start > total {
			start = total
		}
		end := total
		if p.PageSize < total-start {
			end = start + p.PageSize
		}
		matched = matched[start:end]
	}
	out := make([]model.BookingView, 0, len(matched))
	for _, b := range matched {
		out = append(out, r.view(b))
	}
	return out, total, nil
}

// Cancel releases a PENDING hold.
func (r *MemoryBookingRepo) Cancel(ctx context.Context, id uint64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || !b.IsBooked || b.PaymentStatus != model.PaymentPending {
		return false, nil
	}
	r.release(b, at)
	return true, nil
}

// FindExpiredHolds returns up to limit ids of PENDING holds older than cutoff.
func (r *MemoryBookingRepo) FindExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expired := make([]*model.Booking, 0)
	for _, b := range r.bookings {
		if expiredHold(b, cutoff) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].BookingDateTime.Equal(*expired[j].BookingDateTime) {
			return expired[i].BookingDateTime.Before(*expired[j].BookingDateTime)
		}
		return expired[i].ID < expired[j].ID
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	ids := make([]uint64, 0, len(expired))
	for _, b := range expired {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// ExpireHolds cancels the listed holds still matching the expiry predicate.
func (r *MemoryBookingRepo) ExpireHolds(ctx context.Context, ids []uint64, cutoff, at time.Time) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := make([]uint64, 0, len(ids))
	for _, id := range ids {
		b, ok := r.bookings[id]
		if !ok || !expiredHold(b, cutoff) {
			continue
		}
		r.release(b, at)
		changed = append(changed, id)
	}
	return changed, nil
}

// AttachPaymentMethod records the initiation method on a PENDING booking.
func (r *MemoryBookingRepo) AttachPaymentMethod(ctx context.Context, id uint64, method model.PaymentMethod, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.PaymentStatus != model.PaymentPending {
		return false, nil
	}
	m := method
	b.PaymentMethod = &m
	b.UpdatedAt = at
	return true, nil
}

// MarkPaid settles a PENDING booking as PAID.
func (r *MemoryBookingRepo) MarkPaid(ctx context.Context, id uint64, txID string, method model.PaymentMethod, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.PaymentStatus != model.PaymentPending {
		return false, nil
	}
	tx, m, paid := txID, method, at
	b.PaymentStatus = model.PaymentPaid
	b.IsBooked = true
	b.TransactionID = &tx
	b.PaymentMethod = &m
	b.PaidAt = &paid
	b.UpdatedAt = at
	return true, nil
}

// MarkPaymentFailed settles a PENDING booking as CANCELED.
func (r *MemoryBookingRepo) MarkPaymentFailed(ctx context.Context, id uint64, txID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.PaymentStatus != model.PaymentPending {
		return false, nil
	}
	r.release(b, at)
	tx := txID
	b.TransactionID = &tx
	return true, nil
}

// SetBookingDateTime overrides the hold start of a booking.  Tests use it to
// age a hold without waiting.
func (r *MemoryBookingRepo) SetBookingDateTime(id uint64, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bookings[id]; ok {
		b.BookingDateTime = &t
	}
}

// release must be called with mu held.
func (r *MemoryBookingRepo) release(b *model.Booking, at time.Time) {
	key := holdKey(b.ShowtimeID, b.SeatID)
	if r.active[key] == b.ID {
		delete(r.active, key)
	}
	b.IsBooked = false
	b.PaymentStatus = model.PaymentCanceled
	b.BookingDateTime = nil
	b.UpdatedAt = at
}

func expiredHold(b *model.Booking, cutoff time.Time) bool {
	return b.PaymentStatus == model.PaymentPending && b.IsBooked &&
		b.BookingDateTime != nil && b.BookingDateTime.Before(cutoff)
}

// view must be called with mu held.
func (r *MemoryBookingRepo) view(b *model.Booking) model.BookingView {
	v := model.BookingView{Booking: *cloneBooking(b)}
	if r.catalog != nil {
		r.catalog.describe(&v)
	}
	return v
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	if b.BookingDateTime != nil {
		t := *b.BookingDateTime
		c.BookingDateTime = &t
	}
	if b.PaymentMethod != nil {
		m := *b.PaymentMethod
		c.PaymentMethod = &m
	}
	if b.TransactionID != nil {
		s := *b.TransactionID
		c.TransactionID = &s
	}
	if b.PaidAt != nil {
		t := *b.PaidAt
		c.PaidAt = &t
	}
	return &c
}
