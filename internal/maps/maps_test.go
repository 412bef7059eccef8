package maps

import (
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

func TestFallbackRouteUsesCitySpeed(t *testing.T) {
	from := models.Coord{Lat: 31.5204, Lon: 74.3587}
	to := models.Coord{Lat: 31.4504, Lon: 73.1350}

	r := FallbackRoute(from, to)
	if r.Polyline != nil {
		t.Error("fallback route must not carry a polyline")
	}

	wantKm := geo.HaversineKm(from, to)
	if math.Abs(float64(r.DistanceM)-wantKm*1000) > 1 {
		t.Errorf("DistanceM = %d, want ~%.0f", r.DistanceM, wantKm*1000)
	}
	wantS := wantKm / 30.0 * 3600
	if math.Abs(float64(r.DurationS)-wantS) > 1 {
		t.Errorf("DurationS = %d, want ~%.0f", r.DurationS, wantS)
	}
}

func TestFallbackRouteZeroDistance(t *testing.T) {
	c := models.Coord{Lat: 31.5204, Lon: 74.3587}
	r := FallbackRoute(c, c)
	if r.DistanceM != 0 || r.DurationS != 0 {
		t.Errorf("got %d m / %d s for identical points", r.DistanceM, r.DurationS)
	}
}
