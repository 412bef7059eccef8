package sos

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/profiles"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/sms"
)

type Pipeline struct {
	log        *slog.Logger
	machine    *ride.Machine
	passengers profiles.PassengerStore
	sms        sms.Gateway
	bus        bus.Bus
	store      Store
	now        func() time.Time
}

func NewPipeline(log *slog.Logger, machine *ride.Machine, passengers profiles.PassengerStore, gateway sms.Gateway, b bus.Bus, store Store) *Pipeline {
	return &Pipeline{
		log:        log,
		machine:    machine,
		passengers: passengers,
		sms:        gateway,
		bus:        b,
		store:      store,
		now:        time.Now,
	}
}

// SetClock overrides the pipeline clock. Tests only.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

type TriggerRequest struct {
	RideID    string
	Severity  string
	AlertType string
	Location  *models.Coord
}

type TriggerResult struct {
	Alert     *Alert `json:"alert"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// Trigger raises an alert for the user's active ride. SMS delivery is best
// effort; individual failures are reported, never fatal.
func (p *Pipeline) Trigger(ctx context.Context, userID string, role models.Actor, req TriggerRequest) (*TriggerResult, error) {
	r, err := p.resolveRide(userID, role, req.RideID)
	if err != nil {
		return nil, err
	}

	loc, ok := alertLocation(req.Location, r)
	if !ok {
		return nil, ErrNoLocation
	}

	severity := req.Severity
	if severity == "" {
		severity = SeverityHigh
	}
	alertType := req.AlertType
	if alertType != TypeAutomatic {
		alertType = TypeManual
	}

	now := p.now()
	alert := &Alert{
		ID:        uuid.NewString(),
		RideID:    r.ID,
		UserID:    userID,
		Severity:  severity,
		AlertType: alertType,
		Location:  loc,
		CreatedAt: now,
	}

	result := &TriggerResult{Alert: alert}
	if pax, err := p.passengers.Get(r.PassengerID); err == nil {
		body := fmt.Sprintf("EMERGENCY: %s needs help during a ride. Live location: https://maps.google.com/?q=%.6f,%.6f",
			pax.Name, loc.Lat, loc.Lon)
		for _, c := range pax.EmergencyContacts {
			status := ContactStatus{Name: c.Name, Phone: c.Phone, Delivered: true}
			if err := p.sms.Send(ctx, c.Phone, body); err != nil {
				status.Delivered = false
				status.Error = err.Error()
				result.Failed++
				p.log.Warn("sos sms failed", "alert_id", alert.ID, "contact", c.Phone, "error", err)
			} else {
				result.Delivered++
			}
			alert.Contacts = append(alert.Contacts, status)
		}
	}

	if err := p.store.Save(alert); err != nil {
		return nil, err
	}
	if _, err := p.machine.AppendSOSEvent(r.ID, models.SOSEvent{
		AlertID:   alert.ID,
		Severity:  severity,
		AlertType: alertType,
		Location:  loc,
		CreatedAt: now,
	}); err != nil {
		p.log.Error("sos event append failed", "ride_id", r.ID, "error", err)
	}
	observability.SOSAlerts.Inc()

	p.bus.Broadcast(bus.EventSOSAlert, map[string]interface{}{
		"alertId":  alert.ID,
		"rideId":   r.ID,
		"userId":   userID,
		"location": loc,
		"severity": severity,
	})
	p.log.Info("sos alert raised", "alert_id", alert.ID, "ride_id", r.ID,
		"delivered", result.Delivered, "failed", result.Failed)
	return result, nil
}

func (p *Pipeline) resolveRide(userID string, role models.Actor, rideID string) (*models.Ride, error) {
	if rideID != "" {
		r, err := p.machine.Get(rideID)
		if err != nil {
			return nil, err
		}
		if err := authorize(r, userID, role); err != nil {
			return nil, err
		}
		return r, nil
	}
	var (
		r   *models.Ride
		err error
	)
	if role == models.ActorDriver {
		r, err = p.machine.Store().ActiveByDriver(userID)
	} else {
		r, err = p.machine.Store().ActiveByPassenger(userID)
	}
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNoActiveRide
	}
	return r, nil
}

// authorize restricts explicit ride references to the ride's own passenger
// or assigned driver; admins may raise an alert on any ride.
func authorize(r *models.Ride, userID string, role models.Actor) error {
	switch role {
	case models.ActorAdmin:
		return nil
	case models.ActorDriver:
		if r.DriverID != nil && *r.DriverID == userID {
			return nil
		}
	default:
		if r.PassengerID == userID {
			return nil
		}
	}
	return ErrNotParticipant
}

// alertLocation picks the best known position: explicit body location,
// then live tracking, then pickup.
func alertLocation(explicit *models.Coord, r *models.Ride) (models.Coord, bool) {
	if explicit != nil && (explicit.Lat != 0 || explicit.Lon != 0) {
		return *explicit, true
	}
	if cur := r.Tracking.CurrentLoc; cur != nil {
		return models.Coord{Lat: cur.Lat, Lon: cur.Lon}, true
	}
	if pu := r.Pickup.Coord(); pu.Lat != 0 || pu.Lon != 0 {
		return pu, true
	}
	return models.Coord{}, false
}
