package model

import "time"

// The types in this file are read-only reference data owned by the catalog
// service.  Only the attributes that feed pricing and booking projections
// are modelled.

// Movie carries the base ticket price for every screening of the movie.
type Movie struct {
	ID        uint64 // movies.id
	Name      string // movies.name
	BasePrice int64  // movies.base_price
}

// CinemaBrand scales prices for every cinema of the brand.
type CinemaBrand struct {
	ID         uint64  // cinema_brands.id
	Name       string  // cinema_brands.name
	Multiplier float64 // cinema_brands.multiplier
}

// CinemaArea adds a flat amount to prices in its area.
type CinemaArea struct {
	ID            uint64 // cinema_areas.id
	Name          string // cinema_areas.name
	PriceAddition int64  // cinema_areas.price_addition
}

// Cinema is a venue.  Brand and Area are nil when the cinema has no
// brand or area assigned.
type Cinema struct {
	ID      uint64       // cinemas.id
	Name    string       // cinemas.name
	Address string       // cinemas.address
	Brand   *CinemaBrand // cinemas.brand_id (nullable)
	Area    *CinemaArea  // cinemas.area_id (nullable)
}

// ScreenTech is the projection technology of a room (2D, IMAX, ...).
type ScreenTech struct {
	ID         uint64  // screen_techs.id
	Name       string  // screen_techs.name
	Multiplier float64 // screen_techs.multiplier
}

// SoundSystem is the audio setup of a room.
type SoundSystem struct {
	ID         uint64  // sound_systems.id
	Name       string  // sound_systems.name
	Multiplier float64 // sound_systems.multiplier
}

// Room is a projection room inside a cinema.
type Room struct {
	ID          uint64       // rooms.id
	CinemaID    uint64       // rooms.cinema_id
	Name        string       // rooms.name
	ScreenTech  *ScreenTech  // rooms.screen_tech_id (nullable)
	SoundSystem *SoundSystem // rooms.sound_system_id (nullable)
}

// SeatType adjusts the showtime base price for seats of the type.
type SeatType struct {
	ID         uint64  // seat_types.id
	Name       string  // seat_types.name
	Multiplier float64 // seat_types.multiplier
}

// Seat is a physical seat in a room.
type Seat struct {
	ID       uint64    // seats.id
	RoomID   uint64    // seats.room_id
	Name     string    // seats.name, e.g. A1
	SeatType *SeatType // seats.seat_type_id (nullable)
}

// Showtime is a scheduled screening.  BasePrice is derived once from the
// movie, cinema and room when the showtime is created or updated.
type Showtime struct {
	ID              uint64    `json:"showtime_id"`      // showtimes.id
	MovieID         uint64    `json:"movie_id"`         // showtimes.movie_id
	FormatID        uint64    `json:"format_id"`        // showtimes.format_id
	CinemaID        uint64    `json:"cinema_id"`        // showtimes.cinema_id
	RoomID          uint64    `json:"room_id"`          // showtimes.room_id
	BasePrice       int64     `json:"base_price"`       // showtimes.base_price
	ShowDate        time.Time `json:"show_date"`        // showtimes.show_date
	ShowTimeStart   string    `json:"show_time_start"`  // showtimes.show_time_start (HH:MM)
	ShowTimeEnd     string    `json:"show_time_end"`    // showtimes.show_time_end (HH:MM)
	DurationMinutes int       `json:"duration_minutes"` // showtimes.duration_minutes
	CreatedAt       time.Time `json:"created_at"`       // showtimes.created_at
	UpdatedAt       time.Time `json:"updated_at"`       // showtimes.updated_at
}
