package fare

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// Tariff constants, whole PKR.
const (
	Currency  = "PKR"
	BaseFare  = 100
	PerKm     = 30
	PerMinute = 5
)

// Calculate produces the fare breakdown for a trip. Pure and deterministic;
// surge below 1 is treated as 1. Rounding is half-away-from-zero to whole
// currency units.
func Calculate(distanceKm, durationMin, surge float64) models.FareBreakdown {
	if surge < 1 {
		surge = 1
	}
	distFare := roundHalfAway(distanceKm * PerKm)
	timeFare := roundHalfAway(durationMin * PerMinute)
	return models.FareBreakdown{
		Base:     BaseFare,
		Distance: distFare,
		Time:     timeFare,
		Subtotal: BaseFare + distFare + timeFare,
		Surge:    surge,
		Total:    roundHalfAway((BaseFare + distanceKm*PerKm + durationMin*PerMinute) * surge),
	}
}

func roundHalfAway(x float64) int64 {
	if x >= 0 {
		return int64(math.Floor(x + 0.5))
	}
	return int64(math.Ceil(x - 0.5))
}
