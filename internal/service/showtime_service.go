package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/pricing"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// ShowtimeInput carries the fields of a showtime create or update.  On
// update, zero values keep the stored value.  ShowDate is YYYY-MM-DD and the
// times are HH:MM.
type ShowtimeInput struct {
	MovieID       uint64 `json:"movie_id"`
	FormatID      uint64 `json:"format_id"`
	CinemaID      uint64 `json:"cinema_id"`
	RoomID        uint64 `json:"room_id"`
	ShowDate      string `json:"show_date"`
	ShowTimeStart string `json:"show_time_start"`
	ShowTimeEnd   string `json:"show_time_end"`
}

// ShowtimeService schedules showtimes and derives their base price.
type ShowtimeService struct {
	base
	catalog CatalogStore
}

// NewShowtimeService wires a ShowtimeService.
func NewShowtimeService(catalog CatalogStore, opts ...Option) *ShowtimeService {
	return &ShowtimeService{base: newBase("showtime-service", opts), catalog: catalog}
}

// Create schedules a new showtime.  The movie, cinema and room must exist
// and the slot (movie, cinema, room, date, start) must be free.
func (s *ShowtimeService) Create(ctx context.Context, in ShowtimeInput) (*model.Showtime, error) {
	if in.MovieID == 0 || in.CinemaID == 0 || in.RoomID == 0 || in.ShowDate == "" {
		return nil, fmt.Errorf("%w: movie, cinema, room and show date are required", repository.ErrInvalidInput)
	}
	sh := &model.Showtime{
		MovieID:       in.MovieID,
		FormatID:      in.FormatID,
		CinemaID:      in.CinemaID,
		RoomID:        in.RoomID,
		ShowTimeStart: orDefault(in.ShowTimeStart, "00:00"),
		ShowTimeEnd:   orDefault(in.ShowTimeEnd, "00:00"),
	}
	if err := s.fill(ctx, sh, in.ShowDate, 0); err != nil {
		return nil, err
	}
	now := s.clock()
	sh.CreatedAt, sh.UpdatedAt = now, now
	if err := s.catalog.CreateShowtime(ctx, sh); err != nil {
		return nil, err
	}
	s.log.Info("showtime created", zap.Uint64("showtime_id", sh.ID), zap.Int64("base_price", sh.BasePrice))
	return sh, nil
}

// Update merges in with the stored showtime and recomputes its base price
// and duration.  Bookings already made keep their frozen seat price.
func (s *ShowtimeService) Update(ctx context.Context, id uint64, in ShowtimeInput) (*model.Showtime, error) {
	sh, err := s.catalog.GetShowtime(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.MovieID != 0 {
		sh.MovieID = in.MovieID
	}
	if in.FormatID != 0 {
		sh.FormatID = in.FormatID
	}
	if in.CinemaID != 0 {
		sh.CinemaID = in.CinemaID
	}
	if in.RoomID != 0 {
		sh.RoomID = in.RoomID
	}
	if in.ShowTimeStart != "" {
		sh.ShowTimeStart = in.ShowTimeStart
	}
	if in.ShowTimeEnd != "" {
		sh.ShowTimeEnd = in.ShowTimeEnd
	}
	date := sh.ShowDate.Format(time.DateOnly)
	if in.ShowDate != "" {
		date = in.ShowDate
	}
	if err := s.fill(ctx, sh, date, id); err != nil {
		return nil, err
	}
	sh.UpdatedAt = s.clock()
	if err := s.catalog.UpdateShowtime(ctx, sh); err != nil {
		return nil, err
	}
	s.log.Info("showtime updated", zap.Uint64("showtime_id", sh.ID), zap.Int64("base_price", sh.BasePrice))
	return sh, nil
}

// fill validates sh, rejects slot collisions other than excludeID and sets
// the derived fields.
func (s *ShowtimeService) fill(ctx context.Context, sh *model.Showtime, date string, excludeID uint64) error {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return fmt.Errorf("%w: show date must be YYYY-MM-DD", repository.ErrInvalidInput)
	}
	sh.ShowDate = d
	minutes, err := DurationMinutes(sh.ShowTimeStart, sh.ShowTimeEnd)
	if err != nil {
		return err
	}
	sh.DurationMinutes = minutes

	movie, err := s.catalog.GetMovie(ctx, sh.MovieID)
	if err != nil {
		return err
	}
	cinema, err := s.catalog.GetCinema(ctx, sh.CinemaID)
	if err != nil {
		return err
	}
	room, err := s.catalog.GetRoom(ctx, sh.RoomID)
	if err != nil {
		return err
	}
	if room.CinemaID != cinema.ID {
		return fmt.Errorf("%w: room %d does not belong to cinema %d", repository.ErrInvalidInput, room.ID, cinema.ID)
	}

	dup, err := s.catalog.FindDuplicateShowtime(ctx, sh, excludeID)
	if err != nil {
		return err
	}
	if dup {
		return repository.ErrDuplicateShowtime
	}
	sh.BasePrice = pricing.ComputeBasePrice(movie, cinema, room)
	return nil
}

// DurationMinutes returns the minutes from start to end (both HH:MM).  A
// screening that ends before it starts runs past midnight.
func DurationMinutes(start, end string) (int, error) {
	s, err := clockMinutes(start)
	if err != nil {
		return 0, err
	}
	e, err := clockMinutes(end)
	if err != nil {
		return 0, err
	}
	d := e - s
	if d < 0 {
		d += 24 * 60
	}
	return d, nil
}

func clockMinutes(hhmm string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", repository.ErrInvalidInput, hhmm)
	}
	hours, err1 := strconv.Atoi(h)
	mins, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hours < 0 || hours > 23 || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", repository.ErrInvalidInput, hhmm)
	}
	return hours*60 + mins, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
