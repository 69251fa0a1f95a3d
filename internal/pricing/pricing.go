// Package pricing derives ticket prices from catalog reference data.
//
// Prices are integer currency units.  Every computation is carried out in
// float64 and rounded exactly once, half up, so that fractional results are
// never truncated into systematic underpricing.
package pricing

import (
	"math"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// ComputeBasePrice returns the showtime base price:
//
//	round(movieBase × brandMultiplier × screenMultiplier × soundMultiplier + areaAddition)
//
// A missing reference contributes its neutral value (multiplier 1,
// addition 0, movie base 0).
func ComputeBasePrice(movie *model.Movie, cinema *model.Cinema, room *model.Room) int64 {
	base := 0.0
	if movie != nil {
		base = float64(movie.BasePrice)
	}

	brand, addition := 1.0, 0.0
	if cinema != nil {
		if cinema.Brand != nil {
			brand = multiplier(cinema.Brand.Multiplier)
		}
		if cinema.Area != nil {
			addition = float64(cinema.Area.PriceAddition)
		}
	}

	screen, sound := 1.0, 1.0
	if room != nil {
		if room.ScreenTech != nil {
			screen = multiplier(room.ScreenTech.Multiplier)
		}
		if room.SoundSystem != nil {
			sound = multiplier(room.SoundSystem.Multiplier)
		}
	}

	return Round(base*brand*screen*sound + addition)
}

// ComputeSeatPrice applies a seat type multiplier to a showtime base price.
func ComputeSeatPrice(basePrice int64, seatTypeMultiplier float64) int64 {
	return Round(float64(basePrice) * multiplier(seatTypeMultiplier))
}

// SeatPrice is ComputeSeatPrice for a seat whose type may be unset.
func SeatPrice(showtime *model.Showtime, seat *model.Seat) int64 {
	m := 1.0
	if seat != nil && seat.SeatType != nil {
		m = seat.SeatType.Multiplier
	}
	return ComputeSeatPrice(showtime.BasePrice, m)
}

// Round rounds half up.  For the non-negative prices this package deals in
// it is identical to math.Round (half away from zero); negative inputs are
// rounded towards positive infinity on ties to keep a single rule.
func Round(v float64) int64 {
	if v >= 0 {
		return int64(math.Round(v))
	}
	return int64(math.Floor(v + 0.5))
}

// multiplier maps an unset (zero) multiplier to the neutral value.
func multiplier(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m
}
