package main

import (
	"fmt"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/pricing"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// seedDemoCatalog loads a small catalog into the memory store: one cinema
// with a standard and an IMAX room, ten seats per room (row A is VIP) and
// two showtimes for tomorrow.
func seedDemoCatalog(cat *repository.MemoryCatalogRepo) {
	dune := model.Movie{ID: 1, Name: "Dune: Part Two", BasePrice: 90000}
	cat.PutMovie(dune)
	cat.PutMovie(model.Movie{ID: 2, Name: "Arrival", BasePrice: 75000})

	cinema := model.Cinema{
		ID:      1,
		Name:    "Galaxy Nguyen Du",
		Address: "116 Nguyen Du, District 1",
		Brand:   &model.CinemaBrand{ID: 1, Name: "Galaxy", Multiplier: 1.0},
		Area:    &model.CinemaArea{ID: 1, Name: "Downtown", PriceAddition: 5000},
	}
	cat.PutCinema(cinema)

	rooms := []model.Room{
		{ID: 1, CinemaID: 1, Name: "Room 1"},
		{
			ID: 2, CinemaID: 1, Name: "IMAX",
			ScreenTech:  &model.ScreenTech{ID: 2, Name: "IMAX", Multiplier: 1.5},
			SoundSystem: &model.SoundSystem{ID: 2, Name: "Dolby Atmos", Multiplier: 1.1},
		},
	}
	standard := &model.SeatType{ID: 1, Name: "STANDARD", Multiplier: 1.0}
	vip := &model.SeatType{ID: 2, Name: "VIP", Multiplier: 1.2}

	var seatID uint64
	for _, rm := range rooms {
		cat.PutRoom(rm)
		for _, row := range []string{"A", "B"} {
			for n := 1; n <= 5; n++ {
				seatID++
				st := standard
				if row == "A" {
					st = vip
				}
				cat.PutSeat(model.Seat{ID: seatID, RoomID: rm.ID, Name: fmt.Sprintf("%s%d", row, n), SeatType: st})
			}
		}
	}

	tomorrow := time.Now().UTC().Truncate(24*time.Hour).Add(24 * time.Hour)
	for i, rm := range rooms {
		room := rm
		cat.PutShowtime(model.Showtime{
			ID:              uint64(i + 1),
			MovieID:         dune.ID,
			CinemaID:        cinema.ID,
			RoomID:          room.ID,
			BasePrice:       pricing.ComputeBasePrice(&dune, &cinema, &room),
			ShowDate:        tomorrow,
			ShowTimeStart:   "19:30",
			ShowTimeEnd:     "22:16",
			DurationMinutes: 166,
		})
	}
}
