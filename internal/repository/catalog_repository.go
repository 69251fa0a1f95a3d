package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// CatalogRepo reads the catalog reference data that feeds pricing and writes
// showtimes.  Movies, cinemas, rooms and seats are managed elsewhere and are
// only ever read here.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo with the provided DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// GetMovie fetches a movie by id or returns ErrMovieNotFound.
func (r *CatalogRepo) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	const q = `SELECT id, name, base_price FROM movies WHERE id = ?`
	var m model.Movie
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.Name, &m.BasePrice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, classify(err)
	}
	return &m, nil
}

// GetCinema fetches a cinema with its brand and area or returns
// ErrCinemaNotFound.  Brand and Area stay nil when unassigned.
func (r *CatalogRepo) GetCinema(ctx context.Context, id uint64) (*model.Cinema, error) {
	const q = `SELECT c.id, c.name, c.address,
	                  b.id, b.name, b.multiplier,
	                  a.id, a.name, a.price_addition
	           FROM cinemas c
	           LEFT JOIN cinema_brands b ON b.id = c.brand_id
	           LEFT JOIN cinema_areas a ON a.id = c.area_id
	           WHERE c.id = ?`
	var c model.Cinema
	var brandID, areaID sql.NullInt64
	var brandName, areaName sql.NullString
	var brandMult sql.NullFloat64
	var areaAdd sql.NullInt64
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.Name, &c.Address,
		&brandID, &brandName, &brandMult,
		&areaID, &areaName, &areaAdd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCinemaNotFound
		}
		return nil, classify(err)
	}
	if brandID.Valid {
		c.Brand = &model.CinemaBrand{ID: uint64(brandID.Int64), Name: brandName.String, Multiplier: brandMult.Float64}
	}
	if areaID.Valid {
		c.Area = &model.CinemaArea{ID: uint64(areaID.Int64), Name: areaName.String, PriceAddition: areaAdd.Int64}
	}
	return &c, nil
}

// GetRoom fetches a room with its screen and sound setup or returns
// ErrRoomNotFound.
func (r *CatalogRepo) GetRoom(ctx context.Context, id uint64) (*model.Room, error) {
	const q = `SELECT r.id, r.cinema_id, r.name,
	                  st.id, st.name, st.multiplier,
	                  ss.id, ss.name, ss.multiplier
	           FROM rooms r
	           LEFT JOIN screen_techs st ON st.id = r.screen_tech_id
	           LEFT JOIN sound_systems ss ON ss.id = r.sound_system_id
	           WHERE r.id = ?`
	var rm model.Room
	var stID, ssID sql.NullInt64
	var stName, ssName sql.NullString
	var stMult, ssMult sql.NullFloat64
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rm.ID, &rm.CinemaID, &rm.Name,
		&stID, &stName, &stMult,
		&ssID, &ssName, &ssMult,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, classify(err)
	}
	if stID.Valid {
		rm.ScreenTech = &model.ScreenTech{ID: uint64(stID.Int64), Name: stName.String, Multiplier: stMult.Float64}
	}
	if ssID.Valid {
		rm.SoundSystem = &model.SoundSystem{ID: uint64(ssID.Int64), Name: ssName.String, Multiplier: ssMult.Float64}
	}
	return &rm, nil
}

// GetSeat fetches a seat with its type or returns ErrSeatNotFound.
func (r *CatalogRepo) GetSeat(ctx context.Context, id uint64) (*model.Seat, error) {
	const q = `SELECT s.id, s.room_id, s.name, t.id, t.name, t.multiplier
	           FROM seats s
	           LEFT JOIN seat_types t ON t.id = s.seat_type_id
	           WHERE s.id = ?`
	var s model.Seat
	var typeID sql.NullInt64
	var typeName sql.NullString
	var typeMult sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.RoomID, &s.Name, &typeID, &typeName, &typeMult); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, classify(err)
	}
	if typeID.Valid {
		s.SeatType = &model.SeatType{ID: uint64(typeID.Int64), Name: typeName.String, Multiplier: typeMult.Float64}
	}
	return &s, nil
}

const showtimeColumns = `id, movie_id, format_id, cinema_id, room_id, base_price, show_date,
	show_time_start, show_time_end, duration_minutes, created_at, updated_at`

func scanShowtime(row rowScanner) (*model.Showtime, error) {
	var s model.Showtime
	err := row.Scan(&s.ID, &s.MovieID, &s.FormatID, &s.CinemaID, &s.RoomID, &s.BasePrice, &s.ShowDate,
		&s.ShowTimeStart, &s.ShowTimeEnd, &s.DurationMinutes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetShowtime fetches a showtime or returns ErrShowtimeNotFound.
func (r *CatalogRepo) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	s, err := scanShowtime(r.db.QueryRowContext(ctx, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowtimeNotFound
		}
		return nil, classify(err)
	}
	return s, nil
}

// FindDuplicateShowtime reports whether another showtime occupies the slot
// of s (same movie, cinema, room, date and start).  excludeID is skipped so
// an update does not collide with itself; pass 0 on create.
func (r *CatalogRepo) FindDuplicateShowtime(ctx context.Context, s *model.Showtime, excludeID uint64) (bool, error) {
	const q = `SELECT 1 FROM showtimes
	           WHERE movie_id = ? AND cinema_id = ? AND room_id = ? AND show_date = ? AND show_time_start = ? AND id <> ?
	           LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q,
		s.MovieID, s.CinemaID, s.RoomID, s.ShowDate.Format(time.DateOnly), s.ShowTimeStart, excludeID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

// CreateShowtime inserts s and populates its id.
func (r *CatalogRepo) CreateShowtime(ctx context.Context, s *model.Showtime) error {
	const q = `INSERT INTO showtimes
	           (movie_id, format_id, cinema_id, room_id, base_price, show_date, show_time_start, show_time_end, duration_minutes, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.MovieID, s.FormatID, s.CinemaID, s.RoomID, s.BasePrice, s.ShowDate.Format(time.DateOnly),
		s.ShowTimeStart, s.ShowTimeEnd, s.DurationMinutes, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// UpdateShowtime overwrites every mutable column of s.  It returns
// ErrShowtimeNotFound when the row does not exist.
func (r *CatalogRepo) UpdateShowtime(ctx context.Context, s *model.Showtime) error {
	const q = `UPDATE showtimes
	           SET movie_id = ?, format_id = ?, cinema_id = ?, room_id = ?, base_price = ?, show_date = ?,
	               show_time_start = ?, show_time_end = ?, duration_minutes = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		s.MovieID, s.FormatID, s.CinemaID, s.RoomID, s.BasePrice, s.ShowDate.Format(time.DateOnly),
		s.ShowTimeStart, s.ShowTimeEnd, s.DurationMinutes, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// counts matched rows (clientFoundRows), so 0 means no such id
		return ErrShowtimeNotFound
	}
	return nil
}
