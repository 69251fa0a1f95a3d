package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// BookingRepo is the MySQL reservation store.  Every state-dependent write is
// a conditional UPDATE whose WHERE clause restates the expected current
// state; the bool results report whether the caller's write won.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for callers that need to share a
// transaction across repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `b.id, b.user_id, b.showtime_id, b.seat_id, b.seat_price, b.payment_status,
	b.is_booked, b.booking_date_time, b.payment_method, b.transaction_id, b.paid_at,
	b.created_at, b.updated_at`

// CreateHold inserts b as a new PENDING hold.  The insert runs in a
// transaction that first locks any active hold on the same (showtime, seat);
// the unique active_hold_key index backs the check when two transactions
// race past the lock on an empty range.  On success b.ID is populated.
func (r *BookingRepo) CreateHold(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	held, err := r.activeHoldTx(ctx, tx, b.ShowtimeID, b.SeatID)
	if err != nil {
		return classify(err)
	}
	if held {
		return ErrSeatAlreadyHeld
	}

	const q = `INSERT INTO bookings
		(user_id, showtime_id, seat_id, seat_price, payment_status, is_booked, booking_date_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'PENDING', 1, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		b.UserID, b.ShowtimeID, b.SeatID, b.SeatPrice,
		b.BookingDateTime, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrSeatAlreadyHeld
		}
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		if isDuplicateKey(err) {
			return ErrSeatAlreadyHeld
		}
		return classify(err)
	}
	committed = true
	b.ID = uint64(id)
	b.PaymentStatus = model.PaymentPending
	b.IsBooked = true
	return nil
}

// activeHoldTx locks and reports an existing hold for (showtimeID, seatID).
func (r *BookingRepo) activeHoldTx(ctx context.Context, tx *sql.Tx, showtimeID, seatID uint64) (bool, error) {
	const q = `SELECT id FROM bookings
		WHERE showtime_id = ? AND seat_id = ? AND is_booked = 1 AND payment_status IN ('PENDING','PAID')
		LIMIT 1 FOR UPDATE`
	var id uint64
	err := tx.QueryRowContext(ctx, q, showtimeID, seatID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID returns the booking with the given id or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

const viewSelect = `SELECT ` + bookingColumns + `,
	m.name, c.name, c.address, r.name, s.name, st.name,
	sh.show_date, sh.show_time_start, sh.show_time_end
	FROM bookings b
	LEFT JOIN showtimes sh ON sh.id = b.showtime_id
	LEFT JOIN movies m ON m.id = sh.movie_id
	LEFT JOIN cinemas c ON c.id = sh.cinema_id
	LEFT JOIN rooms r ON r.id = sh.room_id
	LEFT JOIN seats s ON s.id = b.seat_id
	LEFT JOIN seat_types st ON st.id = s.seat_type_id`

// GetView returns the booking joined with its catalog names.
func (r *BookingRepo) GetView(ctx context.Context, id uint64) (*model.BookingView, error) {
	v, err := scanView(r.db.QueryRowContext(ctx, viewSelect+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return v, nil
}

// List returns the bookings matching f, most recent first, and the total
// number of matches ignoring pagination.
func (r *BookingRepo) List(ctx context.Context, f model.BookingFilter, p model.Pagination) ([]model.BookingView, int, error) {
	var where []string
	var args []interface{}
	if f.UserID != 0 {
		where = append(where, "b.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ShowtimeID != 0 {
		where = append(where, "b.showtime_id = ?")
		args = append(args, f.ShowtimeID)
	}
	if f.PaymentStatus != "" {
		where = append(where, "b.payment_status = ?")
		args = append(args, string(f.PaymentStatus))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings b`+cond, args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	q := viewSelect + cond + ` ORDER BY b.created_at DESC, b.id DESC`
	if p.Enabled() {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, p.PageSize, p.Offset())
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()
	out := make([]model.BookingView, 0)
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err)
	}
	return out, total, nil
}

// Cancel releases a PENDING hold.  It reports false when the booking was
// not in a cancelable state at the time of the write.
func (r *BookingRepo) Cancel(ctx context.Context, id uint64, at time.Time) (bool, error) {
	const q = `UPDATE bookings
		SET is_booked = 0, payment_status = 'CANCELED', booking_date_time = NULL, updated_at = ?
		WHERE id = ? AND is_booked = 1 AND payment_status = 'PENDING'`
	return r.execAffected(ctx, q, at, id)
}

// FindExpiredHolds returns up to limit ids of PENDING holds that began
// before cutoff, oldest first.
func (r *BookingRepo) FindExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const q = `SELECT id FROM bookings
		WHERE payment_status = 'PENDING' AND is_booked = 1 AND booking_date_time < ?
		ORDER BY booking_date_time, id
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, cutoff, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

// ExpireHolds cancels the listed holds that are still PENDING and older than
// cutoff and returns the ids it actually changed.  Rows that were paid,
// canceled or renewed after FindExpiredHolds are left untouched.
func (r *BookingRepo) ExpireHolds(ctx context.Context, ids []uint64, cutoff, at time.Time) ([]uint64, error) {
	if len(ids) == 0 {
		return []uint64{}, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, cutoff)
	pred := ` WHERE id IN (` + placeholders + `) AND payment_status = 'PENDING' AND is_booked = 1 AND booking_date_time < ?`

	rows, err := tx.QueryContext(ctx, `SELECT id FROM bookings`+pred+` FOR UPDATE`, args...)
	if err != nil {
		return nil, classify(err)
	}
	locked := make([]uint64, 0, len(ids))
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		locked = append(locked, id)
	}
	if err := rows.Close(); err != nil {
		return nil, classify(err)
	}
	if len(locked) == 0 {
		return locked, nil
	}

	upd := `UPDATE bookings SET is_booked = 0, payment_status = 'CANCELED', booking_date_time = NULL, updated_at = ?` + pred
	if _, err := tx.ExecContext(ctx, upd, append([]interface{}{at}, args...)...); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	committed = true
	return locked, nil
}

// AttachPaymentMethod records the method chosen at initiation.  The status
// stays PENDING.  It reports false when the booking is no longer PENDING.
func (r *BookingRepo) AttachPaymentMethod(ctx context.Context, id uint64, method model.PaymentMethod, at time.Time) (bool, error) {
	const q = `UPDATE bookings SET payment_method = ?, updated_at = ?
		WHERE id = ? AND payment_status = 'PENDING'`
	return r.execAffected(ctx, q, string(method), at, id)
}

// MarkPaid settles a PENDING booking as PAID.
func (r *BookingRepo) MarkPaid(ctx context.Context, id uint64, txID string, method model.PaymentMethod, at time.Time) (bool, error) {
	const q = `UPDATE bookings
		SET payment_status = 'PAID', is_booked = 1, transaction_id = ?, payment_method = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND payment_status = 'PENDING'`
	return r.execAffected(ctx, q, txID, string(method), at, at, id)
}

// MarkPaymentFailed settles a PENDING booking as CANCELED after a failed
// gateway callback, releasing the seat and recording the transaction id.
func (r *BookingRepo) MarkPaymentFailed(ctx context.Context, id uint64, txID string, at time.Time) (bool, error) {
	const q = `UPDATE bookings
		SET payment_status = 'CANCELED', is_booked = 0, booking_date_time = NULL, transaction_id = ?, updated_at = ?
		WHERE id = ? AND payment_status = 'PENDING'`
	return r.execAffected(ctx, q, txID, at, id)
}

func (r *BookingRepo) execAffected(ctx context.Context, q string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type bookingNulls struct {
	bookingAt sql.NullTime
	method    sql.NullString
	txID      sql.NullString
	paidAt    sql.NullTime
}

func (n *bookingNulls) apply(b *model.Booking) {
	if n.bookingAt.Valid {
		t := n.bookingAt.Time
		b.BookingDateTime = &t
	}
	if n.method.Valid {
		m := model.PaymentMethod(n.method.String)
		b.PaymentMethod = &m
	}
	if n.txID.Valid {
		s := n.txID.String
		b.TransactionID = &s
	}
	if n.paidAt.Valid {
		t := n.paidAt.Time
		b.PaidAt = &t
	}
}

func bookingDest(b *model.Booking, n *bookingNulls) []interface{} {
	return []interface{}{
		&b.ID, &b.UserID, &b.ShowtimeID, &b.SeatID, &b.SeatPrice, &b.PaymentStatus,
		&b.IsBooked, &n.bookingAt, &n.method, &n.txID, &n.paidAt,
		&b.CreatedAt, &b.UpdatedAt,
	}
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var n bookingNulls
	if err := row.Scan(bookingDest(&b, &n)...); err != nil {
		return nil, err
	}
	n.apply(&b)
	return &b, nil
}

func scanView(row rowScanner) (*model.BookingView, error) {
	var v model.BookingView
	var n bookingNulls
	var movie, cinema, address, room, seat, seatType, start, end sql.NullString
	var showDate sql.NullTime
	dest := append(bookingDest(&v.Booking, &n),
		&movie, &cinema, &address, &room, &seat, &seatType,
		&showDate, &start, &end,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	n.apply(&v.Booking)
	v.MovieName = nullString(movie)
	v.CinemaName = nullString(cinema)
	v.CinemaAddress = nullString(address)
	v.RoomName = nullString(room)
	v.SeatName = nullString(seat)
	v.SeatType = nullString(seatType)
	v.ShowTimeStart = nullString(start)
	v.ShowTimeEnd = nullString(end)
	if showDate.Valid {
		t := showDate.Time
		v.ShowDate = &t
	}
	return &v, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
