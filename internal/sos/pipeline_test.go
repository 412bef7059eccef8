package sos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/profiles"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/sms"
)

type fixture struct {
	pipeline *Pipeline
	machine  *ride.Machine
	broker   *bus.Broker
	store    *MemoryStore
	sms      *sms.Noop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		machine: ride.NewMachine(ride.NewMemoryStore()),
		broker:  bus.NewBroker(),
		store:   NewMemoryStore(),
		sms:     sms.NewNoop(),
	}
	pax := profiles.NewMemoryPassengers()
	require.NoError(t, pax.Put(&models.Passenger{
		ID: "p1", Name: "Ayesha", Phone: "+923001234567",
		EmergencyContacts: []models.EmergencyContact{
			{Name: "Bilal", Phone: "+923009990001"},
			{Name: "Sana", Phone: "+923009990002"},
		},
	}))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.pipeline = NewPipeline(log, f.machine, pax, f.sms, f.broker, f.store)
	f.pipeline.SetClock(func() time.Time {
		return time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC)
	})
	return f
}

// seedInProgress creates a ride for p1 driven by d1 with one live tracking
// point at (31.5, 74.3).
func (f *fixture) seedInProgress(t *testing.T) *models.Ride {
	t.Helper()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r := &models.Ride{
		ID:          "ride-1",
		PassengerID: "p1",
		Status:      models.StatusPending,
		Pickup:      models.Location{Lat: 31.5204, Lon: 74.3587},
		Destination: models.Location{Lat: 31.4504, Lon: 73.1350},
		CreatedAt:   now,
	}
	require.NoError(t, f.machine.Create(r))
	_, err := f.machine.Accept(r.ID, "d1", now.Add(5*time.Second))
	require.NoError(t, err)
	start := models.TrackPoint{Lat: 31.5204, Lon: 74.3587, TS: now.Add(time.Minute)}
	_, err = f.machine.Start(r.ID, "d1", "https://img.example/d1.jpg", start, now.Add(time.Minute))
	require.NoError(t, err)
	_, err = f.machine.AppendLocation(r.ID, "d1", models.TrackPoint{Lat: 31.5, Lon: 74.3, TS: now.Add(10 * time.Minute)})
	require.NoError(t, err)
	return r
}

func TestTriggerNotifiesContactsAndAdmins(t *testing.T) {
	f := newFixture(t)
	r := f.seedInProgress(t)

	adminCh, detach := f.broker.Subscribe("admin-1")
	defer detach()

	f.sms.Fail["+923009990002"] = errors.New("carrier rejected")

	res, err := f.pipeline.Trigger(context.Background(), "p1", models.ActorPassenger, TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Failed)

	alert := res.Alert
	require.NotNil(t, alert)
	assert.Equal(t, r.ID, alert.RideID)
	assert.Equal(t, "p1", alert.UserID)
	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.Equal(t, TypeManual, alert.AlertType)
	// live tracking beats pickup
	assert.InDelta(t, 31.5, alert.Location.Lat, 1e-9)
	assert.InDelta(t, 74.3, alert.Location.Lon, 1e-9)

	require.Len(t, alert.Contacts, 2)
	assert.True(t, alert.Contacts[0].Delivered)
	assert.False(t, alert.Contacts[1].Delivered)
	assert.Contains(t, alert.Contacts[1].Error, "carrier rejected")

	sent := f.sms.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Ayesha")
	assert.Contains(t, sent[0].Body, "31.500000,74.300000")

	saved, err := f.store.ListByRide(r.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)

	stored, err := f.machine.Get(r.ID)
	require.NoError(t, err)
	require.Len(t, stored.Safety.SOSEvents, 1)
	assert.Equal(t, alert.ID, stored.Safety.SOSEvents[0].AlertID)

	select {
	case ev := <-adminCh:
		require.Equal(t, bus.EventSOSAlert, ev.Type)
		payload := ev.Payload.(map[string]interface{})
		assert.Equal(t, alert.ID, payload["alertId"])
		assert.Equal(t, r.ID, payload["rideId"])
	case <-time.After(time.Second):
		t.Fatal("no sos broadcast received")
	}
}

func TestTriggerExplicitLocationWins(t *testing.T) {
	f := newFixture(t)
	f.seedInProgress(t)

	loc := models.Coord{Lat: 31.49, Lon: 74.29}
	res, err := f.pipeline.Trigger(context.Background(), "p1", models.ActorPassenger, TriggerRequest{
		Severity: SeverityCritical, AlertType: TypeAutomatic, Location: &loc,
	})
	require.NoError(t, err)
	assert.Equal(t, loc, res.Alert.Location)
	assert.Equal(t, SeverityCritical, res.Alert.Severity)
	assert.Equal(t, TypeAutomatic, res.Alert.AlertType)
}

func TestTriggerDriverResolvesOwnActiveRide(t *testing.T) {
	f := newFixture(t)
	r := f.seedInProgress(t)

	res, err := f.pipeline.Trigger(context.Background(), "d1", models.ActorDriver, TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, r.ID, res.Alert.RideID)
	assert.Equal(t, "d1", res.Alert.UserID)
}

func TestTriggerPickupFallbackBeforeStart(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r := &models.Ride{
		ID:          "ride-2",
		PassengerID: "p1",
		Status:      models.StatusPending,
		Pickup:      models.Location{Lat: 31.5204, Lon: 74.3587},
		Destination: models.Location{Lat: 31.4504, Lon: 73.1350},
		CreatedAt:   now,
	}
	require.NoError(t, f.machine.Create(r))
	// accepted but not started: no tracking yet, alert falls back to pickup
	_, err := f.machine.Accept(r.ID, "d1", now.Add(5*time.Second))
	require.NoError(t, err)

	res, err := f.pipeline.Trigger(context.Background(), "p1", models.ActorPassenger, TriggerRequest{})
	require.NoError(t, err)
	assert.InDelta(t, 31.5204, res.Alert.Location.Lat, 1e-9)
}

func TestTriggerNoActiveRide(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Trigger(context.Background(), "p1", models.ActorPassenger, TriggerRequest{})
	assert.ErrorIs(t, err, ErrNoActiveRide)
}

func TestTriggerExplicitRideRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	r := f.seedInProgress(t)

	for _, tc := range []struct {
		user string
		role models.Actor
	}{
		{"stranger", models.ActorPassenger},
		{"other-driver", models.ActorDriver},
	} {
		_, err := f.pipeline.Trigger(context.Background(), tc.user, tc.role, TriggerRequest{RideID: r.ID})
		assert.ErrorIs(t, err, ErrNotParticipant, "%s/%s", tc.user, tc.role)
	}
	if got, err := f.store.ListByRide(r.ID); err == nil {
		assert.Empty(t, got)
	}
	assert.Empty(t, f.sms.Sent())

	// admins and real participants pass
	_, err := f.pipeline.Trigger(context.Background(), "ops-1", models.ActorAdmin, TriggerRequest{RideID: r.ID})
	require.NoError(t, err)
	_, err = f.pipeline.Trigger(context.Background(), "d1", models.ActorDriver, TriggerRequest{RideID: r.ID})
	require.NoError(t, err)
}

func TestTriggerUnknownRideID(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Trigger(context.Background(), "p1", models.ActorPassenger, TriggerRequest{RideID: "nope"})
	assert.ErrorIs(t, err, ride.ErrNotFound)
}
