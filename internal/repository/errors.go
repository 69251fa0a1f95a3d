// Package repository implements the reservation store and the read-only
// catalog lookups on top of MySQL, plus an in-memory store with the same
// guarantees for tests and local runs.
//
// The sentinel values below are shared by every store.  Higher layers use
// the classifiers (IsNotFound, IsConflict, IsTransient) rather than
// comparing against individual sentinels, so a store may wrap a sentinel
// with extra context without breaking callers.
package repository

import "errors"

// Not-found family.  Handlers translate these into HTTP 404.
var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrShowtimeNotFound = errors.New("showtime not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrMovieNotFound    = errors.New("movie not found")
	ErrCinemaNotFound   = errors.New("cinema not found")
	ErrRoomNotFound     = errors.New("room not found")
)

// Conflict family.  Handlers translate these into HTTP 409.
var (
	// ErrSeatAlreadyHeld is returned when another booking already holds
	// the (showtime, seat) pair.
	ErrSeatAlreadyHeld = errors.New("seat already held for this showtime")
	// ErrAlreadyCanceled is returned when the booking no longer holds its seat.
	ErrAlreadyCanceled = errors.New("booking already canceled")
	// ErrAlreadyPaid is returned when a paid booking is asked to change.
	ErrAlreadyPaid = errors.New("booking already paid")
	// ErrAlreadySettled is returned when a payment callback lost the race
	// against another settlement of the same booking.
	ErrAlreadySettled = errors.New("booking already settled")
	// ErrDuplicateShowtime is returned when a showtime would occupy a slot
	// that another showtime already uses.
	ErrDuplicateShowtime = errors.New("showtime already scheduled for this slot")
	// ErrConflict is the generic conflict for state that does not fit any
	// of the sentinels above.
	ErrConflict = errors.New("conflict")
)

// ErrInvalidInput marks malformed caller input (HTTP 400).
var ErrInvalidInput = errors.New("invalid input")

// ErrTransient marks a storage failure that may succeed on retry, such as a
// deadlock, a lock wait timeout or a dropped connection.
var ErrTransient = errors.New("transient storage failure")

// ErrUnavailable is returned once retries of a transient failure are
// exhausted (HTTP 503).
var ErrUnavailable = errors.New("storage unavailable")

var notFound = []error{
	ErrBookingNotFound, ErrShowtimeNotFound, ErrSeatNotFound,
	ErrMovieNotFound, ErrCinemaNotFound, ErrRoomNotFound,
}

var conflicts = []error{
	ErrSeatAlreadyHeld, ErrAlreadyCanceled, ErrAlreadyPaid,
	ErrAlreadySettled, ErrDuplicateShowtime, ErrConflict,
}

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool { return isAny(err, notFound) }

// IsConflict reports whether err belongs to the conflict family.
func IsConflict(err error) bool { return isAny(err, conflicts) }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

func isAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
