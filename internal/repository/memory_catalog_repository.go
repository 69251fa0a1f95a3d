package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// MemoryCatalogRepo is an in-memory CatalogRepo.  Reference data is seeded
// through the Put methods.
type MemoryCatalogRepo struct {
	mu        sync.RWMutex
	movies    map[uint64]model.Movie
	cinemas   map[uint64]model.Cinema
	rooms     map[uint64]model.Room
	seats     map[uint64]model.Seat
	showtimes map[uint64]model.Showtime
	nextShow  uint64
}

// NewMemoryCatalogRepo returns an empty catalog.
func NewMemoryCatalogRepo() *MemoryCatalogRepo {
	return &MemoryCatalogRepo{
		movies:    make(map[uint64]model.Movie),
		cinemas:   make(map[uint64]model.Cinema),
		rooms:     make(map[uint64]model.Room),
		seats:     make(map[uint64]model.Seat),
		showtimes: make(map[uint64]model.Showtime),
	}
}

func (r *MemoryCatalogRepo) PutMovie(m model.Movie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movies[m.ID] = m
}

func (r *MemoryCatalogRepo) PutCinema(c model.Cinema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cinemas[c.ID] = c
}

func (r *MemoryCatalogRepo) PutRoom(rm model.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[rm.ID] = rm
}

func (r *MemoryCatalogRepo) PutSeat(s model.Seat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats[s.ID] = s
}

// PutShowtime stores s as is, keeping its id.
func (r *MemoryCatalogRepo) PutShowtime(s model.Showtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.showtimes[s.ID] = s
	if s.ID > r.nextShow {
		r.nextShow = s.ID
	}
}

// SetSeatTypeMultiplier changes the multiplier of a seat's type in place.
func (r *MemoryCatalogRepo) SetSeatTypeMultiplier(seatID uint64, multiplier float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.seats[seatID]
	if !ok {
		return
	}
	st := model.SeatType{Multiplier: multiplier}
	if s.SeatType != nil {
		st = *s.SeatType
		st.Multiplier = multiplier
	}
	s.SeatType = &st
	r.seats[seatID] = s
}

func (r *MemoryCatalogRepo) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.movies[id]
	if !ok {
		return nil, ErrMovieNotFound
	}
	return &m, nil
}

func (r *MemoryCatalogRepo) GetCinema(ctx context.Context, id uint64) (*model.Cinema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cinemas[id]
	if !ok {
		return nil, ErrCinemaNotFound
	}
	return &c, nil
}

func (r *MemoryCatalogRepo) GetRoom(ctx context.Context, id uint64) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &rm, nil
}

func (r *MemoryCatalogRepo) GetSeat(ctx context.Context, id uint64) (*model.Seat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.seats[id]
	if !ok {
		return nil, ErrSeatNotFound
	}
	if s.SeatType != nil {
		st := *s.SeatType
		s.SeatType = &st
	}
	return &s, nil
}

func (r *MemoryCatalogRepo) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.showtimes[id]
	if !ok {
		return nil, ErrShowtimeNotFound
	}
	return &s, nil
}

func (r *MemoryCatalogRepo) FindDuplicateShowtime(ctx context.Context, s *model.Showtime, excludeID uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, o := range r.showtimes {
		if id == excludeID {
			continue
		}
		if o.MovieID == s.MovieID && o.CinemaID == s.CinemaID && o.RoomID == s.RoomID &&
			sameDay(o.ShowDate, s.ShowDate) && o.ShowTimeStart == s.ShowTimeStart {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCatalogRepo) CreateShowtime(ctx context.Context, s *model.Showtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextShow++
	s.ID = r.nextShow
	r.showtimes[s.ID] = *s
	return nil
}

func (r *MemoryCatalogRepo) UpdateShowtime(ctx context.Context, s *model.Showtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.showtimes[s.ID]; !ok {
		return ErrShowtimeNotFound
	}
	r.showtimes[s.ID] = *s
	return nil
}

// describe fills the catalog names of v from whatever reference data is
// present.
func (r *MemoryCatalogRepo) describe(v *model.BookingView) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if seat, ok := r.seats[v.SeatID]; ok {
		name := seat.Name
		v.SeatName = &name
		if seat.SeatType != nil {
			t := seat.SeatType.Name
			v.SeatType = &t
		}
	}
	sh, ok := r.showtimes[v.ShowtimeID]
	if !ok {
		return
	}
	date, start, end := sh.ShowDate, sh.ShowTimeStart, sh.ShowTimeEnd
	v.ShowDate, v.ShowTimeStart, v.ShowTimeEnd = &date, &start, &end
	if m, ok := r.movies[sh.MovieID]; ok {
		name := m.Name
		v.MovieName = &name
	}
	if c, ok := r.cinemas[sh.CinemaID]; ok {
		name, addr := c.Name, c.Address
		v.CinemaName, v.CinemaAddress = &name, &addr
	}
	if rm, ok := r.rooms[sh.RoomID]; ok {
		name := rm.Name
		v.RoomName = &name
	}
}

func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}
