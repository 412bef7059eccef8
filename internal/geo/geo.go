package geo

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// MaxCandidates caps how many drivers a single query may return.
const MaxCandidates = 50

// Candidate pairs a driver with its distance from the query point.
type Candidate struct {
	Driver     models.Driver
	DistanceKm float64
}

// Index is the on-duty driver index consumed by the matcher and orchestrator.
// Query returns only approved drivers in the available state, sorted by
// distance ascending and capped at MaxCandidates. An empty class matches all
// vehicle classes.
type Index interface {
	Upsert(d models.Driver)
	UpdateLocation(driverID string, c models.Coord, ts models.TrackPoint) bool
	SetState(driverID string, state models.AvailabilityState)
	Get(driverID string) (models.Driver, bool)
	Query(p models.Coord, radiusKm float64, class models.VehicleClass) []Candidate
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b models.Coord) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// boundingBox returns a lat/lon half-extent for a radius prefilter. The lon
// extent widens with latitude; near the poles we give up and scan everything.
func boundingBox(p models.Coord, radiusKm float64) (dLat, dLon float64) {
	dLat = radiusKm / 111.0
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		return dLat, 360
	}
	dLon = radiusKm / (111.0 * cosLat)
	return dLat, dLon
}
