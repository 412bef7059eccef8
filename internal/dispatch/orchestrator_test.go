package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/maps"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/profiles"
	"github.com/example/ride-dispatch/internal/ride"
)

var (
	lahorePickup  = models.Location{Lat: 31.5204, Lon: 74.3587, Address: "Liberty Market"}
	lahoreDropoff = models.Location{Lat: 31.4504, Lon: 73.1350, Address: "Clock Tower"}
)

type failRouter struct{}

func (failRouter) Route(context.Context, models.Coord, models.Coord) (models.Route, error) {
	return models.Route{}, errors.New("timeout")
}

type fixedRouter struct{ route models.Route }

func (f fixedRouter) Route(context.Context, models.Coord, models.Coord) (models.Route, error) {
	return f.route, nil
}

type failGateway struct{}

func (failGateway) Charge(context.Context, int64, string, map[string]string) (payments.Charge, error) {
	return payments.Charge{}, errors.New("wallet unreachable")
}
func (failGateway) Refund(context.Context, string, int64) error { return nil }
func (failGateway) Verify(context.Context, string) (models.PaymentStatus, error) {
	return models.PaymentFailed, nil
}

type testEnv struct {
	orch    *Orchestrator
	machine *ride.Machine
	offers  *ride.OfferTable
	index   geo.Index
	broker  *bus.Broker
	pax     *profiles.MemoryPassengers
	drv     *profiles.MemoryDrivers

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

func newEnv(t *testing.T, router maps.Router) *testEnv {
	t.Helper()
	e := &testEnv{
		machine: ride.NewMachine(ride.NewMemoryStore()),
		offers:  ride.NewOfferTable(15 * time.Second),
		index:   geo.NewMemoryIndex(),
		broker:  bus.NewBroker(),
		pax:     profiles.NewMemoryPassengers(),
		drv:     profiles.NewMemoryDrivers(),
		now:     time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), // Monday noon
	}
	stats := profiles.NewMemoryStats()
	registry := payments.NewRegistry()
	registry.Register(models.PayCash, payments.CashGateway{})
	registry.Register(models.PayEasypaisa, failGateway{})

	e.orch = NewOrchestrator(Deps{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Machine:    e.machine,
		Offers:     e.offers,
		Matcher:    matcher.NewEngine(e.index, stats, 5),
		Index:      e.index,
		Bus:        e.broker,
		Router:     router,
		Payments:   registry,
		Passengers: e.pax,
		Drivers:    e.drv,
		Stats:      stats,
		Now:        e.clock,
	})
	return e
}

func (e *testEnv) addPassenger(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.pax.Put(&models.Passenger{
		ID: id, Name: "Passenger " + id, Phone: "+92300000" + id,
		CreatedAt: e.clock().Add(-30 * 24 * time.Hour),
	}))
}

func (e *testEnv) addDriver(t *testing.T, id string, lat, lon float64) {
	t.Helper()
	d := models.Driver{
		ID: id, UserID: id, Name: "Driver " + id, Phone: "+92311111" + id,
		Approved: true, Rating: 4.5,
		Vehicle: models.Vehicle{Class: models.VehicleCar, Model: "Corolla", Plate: id},
		State:   models.DriverAvailable,
		Loc:     models.Coord{Lat: lat, Lon: lon},
	}
	require.NoError(t, e.drv.Put(&d))
	e.index.Upsert(d)
}

func nextEvent(t *testing.T, ch <-chan bus.Event, wantType string) bus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		require.Equal(t, wantType, ev.Type)
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", wantType)
		return bus.Event{}
	}
}

func TestRideLifecycleHappyPath(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 116000, DurationS: 7200}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	paxCh, paxDetach := e.broker.Subscribe("p1")
	defer paxDetach()
	drvCh, drvDetach := e.broker.Subscribe("d1")
	defer drvDetach()

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup:        lahorePickup,
		Destination:   lahoreDropoff,
		VehicleClass:  models.VehicleCar,
		PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, res.Ride.Status)
	require.Len(t, res.Offered, 1)
	assert.Equal(t, "d1", res.Offered[0].DriverID)
	assert.False(t, res.Degraded)
	nextEvent(t, drvCh, bus.EventNewRequest)

	e.advance(5 * time.Second)
	accepted, err := e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	d, _ := e.index.Get("d1")
	assert.Equal(t, models.DriverBusy, d.State)
	nextEvent(t, paxCh, bus.EventAccepted)

	e.advance(time.Minute)
	started, err := e.orch.StartRide(ctx, "d1", res.Ride.ID, lahorePickup.Coord(), strings.NewReader("jpeg-bytes"), "selfie.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	assert.NotEmpty(t, started.Safety.DriverPhotoURL)
	nextEvent(t, paxCh, bus.EventStarted)

	for i := 1; i <= 3; i++ {
		e.advance(10 * time.Second)
		err := e.orch.UpdateLocation(ctx, "d1", res.Ride.ID, models.TrackPoint{
			Lat: 31.52 - float64(i)*0.01, Lon: 74.35 - float64(i)*0.02, TS: e.clock(),
		})
		require.NoError(t, err)
		nextEvent(t, paxCh, bus.EventDriverLocation)
	}

	e.advance(20 * time.Minute)
	distM, durS := int64(1300), int64(1500)
	completed, err := e.orch.CompleteRide(ctx, "d1", res.Ride.ID, lahoreDropoff.Coord(), &distM, &durS)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.Fare.Final)
	assert.Equal(t, int64(264), *completed.Fare.Final)
	require.NotNil(t, completed.Fare.DriverEarnings)
	assert.Equal(t, int64(211), *completed.Fare.DriverEarnings)
	assert.Equal(t, models.PaymentCompleted, completed.Payment.Status)
	nextEvent(t, paxCh, bus.EventCompleted)

	d, _ = e.index.Get("d1")
	assert.Equal(t, models.DriverAvailable, d.State)

	stored, err := e.machine.Get(res.Ride.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, len(stored.Tracking.Path))
}

func TestRequestRejectsSecondActiveRide(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	ctx := context.Background()
	req := RideRequest{Pickup: lahorePickup, Destination: lahoreDropoff, VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash}
	res, err := e.orch.RequestRide(ctx, "p1", req)
	require.NoError(t, err)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)

	_, err = e.orch.RequestRide(ctx, "p1", req)
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, de.Kind)
	assert.Equal(t, CodeActiveRideExists, de.Code)
	assert.Equal(t, models.StatusAccepted, de.Current)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)
	e.addDriver(t, "d2", 31.522, 74.361)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	require.Len(t, res.Offered, 2)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, id := range []string{"d1", "d2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = e.orch.AcceptRide(ctx, id, res.Ride.ID)
		}(i, id)
	}
	wg.Wait()

	var winner, loser int
	for i, err := range results {
		if err == nil {
			winner = i
			continue
		}
		loser = i
		de, ok := AsError(err)
		require.True(t, ok, "loser error: %v", err)
		assert.Equal(t, KindConflict, de.Kind)
		assert.Equal(t, ride.ReasonAlreadyAccepted, de.Code)
	}
	require.NotEqual(t, winner, loser)

	winID := []string{"d1", "d2"}[winner]
	loseID := []string{"d1", "d2"}[loser]
	w, _ := e.index.Get(winID)
	l, _ := e.index.Get(loseID)
	assert.Equal(t, models.DriverBusy, w.State)
	assert.Equal(t, models.DriverAvailable, l.State)
}

func TestAcceptExpiredOffer(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)

	e.advance(16 * time.Second)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, de.Kind)
	assert.Equal(t, CodeOfferExpired, de.Code)
}

func TestAcceptTooFarFromPickup(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "near", 31.521, 74.360)
	// on duty but well outside the accept radius
	e.addDriver(t, "far", 31.7, 74.6)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)

	_, err = e.orch.AcceptRide(ctx, "far", res.Ride.ID)
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, de.Kind)
	assert.Equal(t, CodeDriverTooFar, de.Code)
}

func TestCancelAcceptedRideChargesFee(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	// Monday 08:12, inside the weekday peak window
	e.mu.Lock()
	e.now = time.Date(2026, 8, 24, 8, 12, 0, 0, time.UTC)
	e.mu.Unlock()
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	drvCh, drvDetach := e.broker.Subscribe("d1")
	defer drvDetach()

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	nextEvent(t, drvCh, bus.EventNewRequest)

	e.advance(10 * time.Second)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)

	e.advance(2*time.Minute + 50*time.Second) // 3 minutes after creation
	cancelled, err := e.orch.CancelRide(ctx, "p1", models.ActorPassenger, res.Ride.ID, "waited too long")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(150), cancelled.Fare.CancellationFee)
	assert.Equal(t, models.ActorPassenger, cancelled.CancelledBy)

	d, _ := e.index.Get("d1")
	assert.Equal(t, models.DriverAvailable, d.State)
	nextEvent(t, drvCh, bus.EventCancelled)
}

func TestDriverCancelNotifiesPassengerOnce(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	paxCh, paxDetach := e.broker.Subscribe("p1")
	defer paxDetach()
	drvCh, drvDetach := e.broker.Subscribe("d1")
	defer drvDetach()

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	nextEvent(t, drvCh, bus.EventNewRequest)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)
	nextEvent(t, paxCh, bus.EventAccepted)

	_, err = e.orch.CancelRide(ctx, "d1", models.ActorDriver, res.Ride.ID, "vehicle trouble")
	require.NoError(t, err)

	nextEvent(t, paxCh, bus.EventCancelled)
	select {
	case ev := <-paxCh:
		t.Fatalf("passenger received extra event %s", ev.Type)
	default:
	}
	// the cancelling driver already knows
	select {
	case ev := <-drvCh:
		t.Fatalf("driver received unexpected event %s", ev.Type)
	default:
	}
	d, _ := e.index.Get("d1")
	assert.Equal(t, models.DriverAvailable, d.State)
}

func TestStartRequiresPhoto(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)

	_, err = e.orch.StartRide(ctx, "d1", res.Ride.ID, lahorePickup.Coord(), nil, "")
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, de.Kind)
	assert.Equal(t, ride.ReasonPhotoRequired, de.Code)

	stored, err := e.machine.Get(res.Ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
}

func TestCancelUnassignedBroadcastsToOfferedDrivers(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)
	e.addDriver(t, "d2", 31.522, 74.361)

	d1Ch, detach1 := e.broker.Subscribe("d1")
	defer detach1()
	d2Ch, detach2 := e.broker.Subscribe("d2")
	defer detach2()

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	nextEvent(t, d1Ch, bus.EventNewRequest)
	nextEvent(t, d2Ch, bus.EventNewRequest)

	_, err = e.orch.CancelRide(ctx, "p1", models.ActorPassenger, res.Ride.ID, "changed plans")
	require.NoError(t, err)
	nextEvent(t, d1Ch, bus.EventCancelledUnassigned)
	nextEvent(t, d2Ch, bus.EventCancelledUnassigned)

	// offers are dead: late accept cannot resolve
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.Error(t, err)
}

func TestScheduledRideActivation(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	paxCh, paxDetach := e.broker.Subscribe("p1")
	defer paxDetach()

	ctx := context.Background()
	at := e.clock().Add(2 * time.Hour) // 14:00
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusScheduled, res.Ride.Status)
	assert.Empty(t, res.Offered)

	// outside the window: activation refused
	_, err = e.orch.ActivateScheduled(res.Ride.ID)
	require.Error(t, err)

	e.advance(time.Hour + 48*time.Minute) // 13:48, 12 min before pickup
	activated, err := e.orch.ActivateScheduled(res.Ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, activated.Ride.Status)
	require.Len(t, activated.Offered, 1)

	ev := nextEvent(t, paxCh, bus.EventScheduledActivated)
	payload := ev.Payload.(map[string]interface{})
	assert.Equal(t, 1, payload["notified_drivers"])
}

func TestDegradedRouterFallsBackToHaversine(t *testing.T) {
	e := newEnv(t, failRouter{})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.Ride.Route.Polyline)

	wantKm := geo.HaversineKm(lahorePickup.Coord(), lahoreDropoff.Coord())
	assert.InDelta(t, wantKm*1000, float64(res.Ride.Route.DistanceM), 1000)
	assert.InDelta(t, wantKm/30*3600, float64(res.Ride.Route.DurationS), 120)
	assert.Greater(t, res.Ride.Fare.Estimated.Total, int64(0))
}

func TestCompletePaymentFailureKeepsRideCompleted(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayEasypaisa,
	})
	require.NoError(t, err)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)
	_, err = e.orch.StartRide(ctx, "d1", res.Ride.ID, lahorePickup.Coord(), strings.NewReader("x"), "p.jpg")
	require.NoError(t, err)

	completed, err := e.orch.CompleteRide(ctx, "d1", res.Ride.ID, lahoreDropoff.Coord(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.Equal(t, models.PaymentFailed, completed.Payment.Status)

	stored, err := e.machine.Get(res.Ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, models.PaymentFailed, stored.Payment.Status)
}

func TestRateRideOncePerSide(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")
	e.addDriver(t, "d1", 31.521, 74.360)

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	_, err = e.orch.AcceptRide(ctx, "d1", res.Ride.ID)
	require.NoError(t, err)
	_, err = e.orch.StartRide(ctx, "d1", res.Ride.ID, lahorePickup.Coord(), strings.NewReader("x"), "p.jpg")
	require.NoError(t, err)
	_, err = e.orch.CompleteRide(ctx, "d1", res.Ride.ID, lahoreDropoff.Coord(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, e.orch.RateRide(ctx, "p1", models.ActorPassenger, res.Ride.ID, 5, "great"))
	err = e.orch.RateRide(ctx, "p1", models.ActorPassenger, res.Ride.ID, 1, "again")
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, de.Kind)

	// rated party's running mean moved
	d, err := e.drv.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.RatingCount)

	// outsiders cannot rate
	err = e.orch.RateRide(ctx, "stranger", models.ActorPassenger, res.Ride.ID, 5, "")
	de, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, de.Kind)
}

func TestRequestValidation(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")

	ctx := context.Background()
	cases := []struct {
		name string
		req  RideRequest
	}{
		{"bad vehicle class", RideRequest{Pickup: lahorePickup, Destination: lahoreDropoff, VehicleClass: "boat", PaymentMethod: models.PayCash}},
		{"bad payment method", RideRequest{Pickup: lahorePickup, Destination: lahoreDropoff, VehicleClass: models.VehicleCar, PaymentMethod: "gold"}},
		{"bad coordinates", RideRequest{Pickup: models.Location{Lat: 212, Lon: 74}, Destination: lahoreDropoff, VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash}},
		{"missing location", RideRequest{Destination: lahoreDropoff, VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := e.orch.RequestRide(ctx, "p1", c.req)
			de, ok := AsError(err)
			require.True(t, ok, "expected dispatch error, got %v", err)
			assert.Equal(t, KindValidation, de.Kind)
		})
	}
}

func TestMatchReasonSurfacesWhenNoDrivers(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	e.addPassenger(t, "p1")

	ctx := context.Background()
	res, err := e.orch.RequestRide(ctx, "p1", RideRequest{
		Pickup: lahorePickup, Destination: lahoreDropoff,
		VehicleClass: models.VehicleCar, PaymentMethod: models.PayCash,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Ride.Status)
	assert.Equal(t, matcher.ReasonNoDrivers, res.MatchReason)
	assert.Empty(t, res.Offered)
}

func TestSetAvailability(t *testing.T) {
	e := newEnv(t, fixedRouter{models.Route{DistanceM: 5000, DurationS: 600}})
	d := models.Driver{
		ID: "d1", Name: "Driver d1", Approved: true, Rating: 4.8,
		Vehicle: models.Vehicle{Class: models.VehicleCar},
		State:   models.DriverOffline,
	}
	require.NoError(t, e.drv.Put(&d))

	loc := models.Coord{Lat: 31.521, Lon: 74.360}
	require.NoError(t, e.orch.SetAvailability("d1", models.DriverAvailable, &loc))
	got, ok := e.index.Get("d1")
	require.True(t, ok)
	assert.Equal(t, models.DriverAvailable, got.State)
	assert.Equal(t, loc, got.Loc)

	require.NoError(t, e.orch.SetAvailability("d1", models.DriverOffline, nil))
	got, _ = e.index.Get("d1")
	assert.Equal(t, models.DriverOffline, got.State)

	err := e.orch.SetAvailability("d1", models.DriverBusy, nil)
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, de.Kind)
}
