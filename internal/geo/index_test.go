package geo

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func testDriver(id string, lat, lon float64) models.Driver {
	return models.Driver{
		ID:       id,
		Approved: true,
		Vehicle:  models.Vehicle{Class: models.VehicleCar},
		State:    models.DriverAvailable,
		Loc:      models.Coord{Lat: lat, Lon: lon},
	}
}

func TestHaversineZero(t *testing.T) {
	if d := HaversineKm(models.Coord{}, models.Coord{}); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Lahore to Faisalabad, roughly 116 km
	d := HaversineKm(models.Coord{Lat: 31.5204, Lon: 74.3587}, models.Coord{Lat: 31.4504, Lon: 73.1350})
	if d < 110 || d > 120 {
		t.Fatalf("expected ~116 km, got %f", d)
	}
}

func TestUpdateLocationMonotonic(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Upsert(testDriver("D", 31.52, 74.35))

	t1 := time.Now()
	if !idx.UpdateLocation("D", models.Coord{Lat: 31.53, Lon: 74.36}, models.TrackPoint{TS: t1}) {
		t.Fatal("fresh update rejected")
	}
	if idx.UpdateLocation("D", models.Coord{Lat: 31.54, Lon: 74.37}, models.TrackPoint{TS: t1.Add(-time.Second)}) {
		t.Fatal("stale update applied")
	}
	d, _ := idx.Get("D")
	if d.Loc.Lat != 31.53 {
		t.Fatalf("expected location from fresh update, got %f", d.Loc.Lat)
	}
	if idx.UpdateLocation("ghost", models.Coord{}, models.TrackPoint{TS: t1}) {
		t.Fatal("update for unknown driver applied")
	}
}

func TestQueryFiltersStateAndApproval(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Upsert(testDriver("AVAILABLE", 31.521, 74.351))

	busy := testDriver("BUSY", 31.521, 74.351)
	busy.State = models.DriverBusy
	idx.Upsert(busy)

	offline := testDriver("OFFLINE", 31.521, 74.351)
	offline.State = models.DriverOffline
	idx.Upsert(offline)

	unapproved := testDriver("UNAPPROVED", 31.521, 74.351)
	unapproved.Approved = false
	idx.Upsert(unapproved)

	out := idx.Query(models.Coord{Lat: 31.52, Lon: 74.35}, 5, "")
	if len(out) != 1 || out[0].Driver.ID != "AVAILABLE" {
		t.Fatalf("expected only AVAILABLE, got %+v", out)
	}
}

func TestQueryRadiusAndOrder(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Upsert(testDriver("NEAR", 31.521, 74.351))
	idx.Upsert(testDriver("MID", 31.53, 74.36))
	idx.Upsert(testDriver("OUTSIDE", 31.62, 74.35))

	out := idx.Query(models.Coord{Lat: 31.52, Lon: 74.35}, 5, models.VehicleCar)
	if len(out) != 2 {
		t.Fatalf("expected 2 in radius, got %d", len(out))
	}
	if out[0].Driver.ID != "NEAR" || out[1].Driver.ID != "MID" {
		t.Fatalf("expected NEAR then MID, got %s then %s", out[0].Driver.ID, out[1].Driver.ID)
	}
	for _, c := range out {
		if c.DistanceKm > 5 {
			t.Fatalf("%s outside radius at %f km", c.Driver.ID, c.DistanceKm)
		}
	}
}

func TestQueryClassFilter(t *testing.T) {
	idx := NewMemoryIndex()
	car := testDriver("CAR", 31.521, 74.351)
	idx.Upsert(car)
	bike := testDriver("BIKE", 31.521, 74.351)
	bike.Vehicle.Class = models.VehicleBike
	idx.Upsert(bike)

	out := idx.Query(models.Coord{Lat: 31.52, Lon: 74.35}, 5, models.VehicleBike)
	if len(out) != 1 || out[0].Driver.ID != "BIKE" {
		t.Fatalf("expected only BIKE, got %+v", out)
	}
}

func TestQueryCap(t *testing.T) {
	idx := NewMemoryIndex()
	for i := 0; i < MaxCandidates+10; i++ {
		idx.Upsert(testDriver(fmt.Sprintf("D%03d", i), 31.52+float64(i)*0.0001, 74.35))
	}
	out := idx.Query(models.Coord{Lat: 31.52, Lon: 74.35}, 5, "")
	if len(out) != MaxCandidates {
		t.Fatalf("expected cap at %d, got %d", MaxCandidates, len(out))
	}
}

func TestSetStateIdempotent(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Upsert(testDriver("D", 31.52, 74.35))
	idx.SetState("D", models.DriverBusy)
	idx.SetState("D", models.DriverBusy)
	d, _ := idx.Get("D")
	if d.State != models.DriverBusy {
		t.Fatalf("expected busy, got %s", d.State)
	}
	idx.SetState("ghost", models.DriverBusy) // no panic
}
