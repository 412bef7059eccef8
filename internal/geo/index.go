package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

// MemoryIndex is the process-local driver index used when Redis is not
// configured. Reads are shared; writes are exclusive per call, which is
// enough to serialize state changes for any single driver.
type MemoryIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[string]models.Driver)}
}

func (g *MemoryIndex) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[d.ID] = d
	g.refreshGaugeLocked()
}

// UpdateLocation applies a location sample. Samples older than the last seen
// timestamp are dropped; the return value reports whether it was applied.
func (g *MemoryIndex) UpdateLocation(driverID string, c models.Coord, ts models.TrackPoint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.drivers[driverID]
	if !ok {
		return false
	}
	if ts.TS.Before(d.LocUpdated) {
		return false
	}
	d.Loc = c
	d.LocUpdated = ts.TS
	g.drivers[driverID] = d
	return true
}

// SetState is idempotent; setting an already-set state is a no-op.
func (g *MemoryIndex) SetState(driverID string, state models.AvailabilityState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.drivers[driverID]
	if !ok || d.State == state {
		return
	}
	d.State = state
	g.drivers[driverID] = d
	g.refreshGaugeLocked()
}

func (g *MemoryIndex) Get(driverID string) (models.Driver, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.drivers[driverID]
	return d, ok
}

func (g *MemoryIndex) Query(p models.Coord, radiusKm float64, class models.VehicleClass) []Candidate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dLat, dLon := boundingBox(p, radiusKm)
	out := make([]Candidate, 0, 16)
	for _, d := range g.drivers {
		if d.State != models.DriverAvailable || !d.Approved {
			continue
		}
		if class != "" && d.Vehicle.Class != class {
			continue
		}
		// cheap box prefilter before the exact distance
		if math.Abs(d.Loc.Lat-p.Lat) > dLat || math.Abs(d.Loc.Lon-p.Lon) > dLon {
			continue
		}
		dist := HaversineKm(p, d.Loc)
		if dist > radiusKm {
			continue
		}
		out = append(out, Candidate{Driver: d, DistanceKm: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Driver.ID < out[j].Driver.ID
	})
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

func (g *MemoryIndex) refreshGaugeLocked() {
	n := 0
	for _, d := range g.drivers {
		if d.State == models.DriverAvailable {
			n++
		}
	}
	observability.DriversAvailable.Set(float64(n))
}
