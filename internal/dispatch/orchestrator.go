// Package dispatch coordinates the ride lifecycle: request, offer fan-out,
// accept, tracking, completion, cancellation and scheduled activation.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/images"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/maps"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/profiles"
	"github.com/example/ride-dispatch/internal/ride"
)

const defaultAcceptRadiusKm = 5.0

// Deps collects everything the orchestrator drives. Geocoder, Router and
// Producer may be nil; the corresponding features degrade.
type Deps struct {
	Logger     *slog.Logger
	Machine    *ride.Machine
	Offers     *ride.OfferTable
	Matcher    *matcher.Engine
	Index      geo.Index
	Bus        bus.Bus
	Geocoder   maps.Geocoder
	Router     maps.Router
	Payments   *payments.Registry
	Passengers profiles.PassengerStore
	Drivers    profiles.DriverStore
	Stats      profiles.StatsStore
	Producer   *ingest.Producer
	Images     images.Store
	Now        func() time.Time
}

type Orchestrator struct {
	log            *slog.Logger
	machine        *ride.Machine
	offers         *ride.OfferTable
	matcher        *matcher.Engine
	index          geo.Index
	bus            bus.Bus
	geocoder       maps.Geocoder
	router         maps.Router
	payments       *payments.Registry
	passengers     profiles.PassengerStore
	drivers        profiles.DriverStore
	stats          profiles.StatsStore
	producer       *ingest.Producer
	images         images.Store
	now            func() time.Time
	acceptRadiusKm float64
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Images == nil {
		d.Images = images.Placeholder{}
	}
	return &Orchestrator{
		log:            d.Logger,
		machine:        d.Machine,
		offers:         d.Offers,
		matcher:        d.Matcher,
		index:          d.Index,
		bus:            d.Bus,
		geocoder:       d.Geocoder,
		router:         d.Router,
		payments:       d.Payments,
		passengers:     d.Passengers,
		drivers:        d.Drivers,
		stats:          d.Stats,
		producer:       d.Producer,
		images:         d.Images,
		now:            d.Now,
		acceptRadiusKm: defaultAcceptRadiusKm,
	}
}

// RideRequest is the orchestrator-level ride creation input.
type RideRequest struct {
	Pickup        models.Location
	Destination   models.Location
	VehicleClass  models.VehicleClass
	RideType      models.RideType
	PaymentMethod models.PaymentMethod
	Priority      models.MatchPriority
	ScheduledAt   *time.Time
}

// OfferedDriver is returned to the passenger as request diagnostics.
type OfferedDriver struct {
	DriverID   string  `json:"driver_id"`
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distance_km"`
	ETASeconds int64   `json:"eta_seconds"`
	Score      float64 `json:"score"`
}

type RequestResult struct {
	Ride        *models.Ride    `json:"ride"`
	NearbyCount int             `json:"nearby_driver_count"`
	Offered     []OfferedDriver `json:"offered_drivers"`
	MatchReason string          `json:"match_reason,omitempty"`
	Degraded    bool            `json:"degraded,omitempty"`
}

// EstimateFare prices a trip without creating a ride.
func (o *Orchestrator) EstimateFare(ctx context.Context, pickup, dropoff models.Coord) (models.FareBreakdown, models.Route, error) {
	if err := validCoord(pickup); err != nil {
		return models.FareBreakdown{}, models.Route{}, err
	}
	if err := validCoord(dropoff); err != nil {
		return models.FareBreakdown{}, models.Route{}, err
	}
	route, _ := o.route(ctx, pickup, dropoff)
	bd := fare.Calculate(float64(route.DistanceM)/1000, float64(route.DurationS)/60, 1)
	return bd, route, nil
}

// RequestRide creates a ride and fans offers out to the best candidates.
// Scheduled requests are stored without matching; the activator dispatches
// them later.
func (o *Orchestrator) RequestRide(ctx context.Context, passengerID string, req RideRequest) (*RequestResult, error) {
	if err := o.validateRequest(&req); err != nil {
		return nil, err
	}
	pax, err := o.passengers.Get(passengerID)
	if err != nil {
		return nil, notFound("passenger not found")
	}
	if active, err := o.machine.Store().ActiveByPassenger(passengerID); err != nil {
		return nil, external("ride lookup failed", err)
	} else if active != nil {
		return nil, conflict(CodeActiveRideExists, active.Status, "passenger already has an active ride")
	}

	pickup, err := o.resolveLocation(ctx, req.Pickup)
	if err != nil {
		return nil, err
	}
	dest, err := o.resolveLocation(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	now := o.now()
	route, degraded := o.route(ctx, pickup.Coord(), dest.Coord())
	estimate := fare.Calculate(float64(route.DistanceM)/1000, float64(route.DurationS)/60, 1)

	r := &models.Ride{
		ID:           uuid.NewString(),
		PassengerID:  passengerID,
		VehicleClass: req.VehicleClass,
		RideType:     req.RideType,
		Status:       models.StatusPending,
		Pickup:       pickup,
		Destination:  dest,
		Route:        route,
		Fare:         models.Fare{Currency: fare.Currency, Estimated: estimate},
		Payment:      models.Payment{Method: req.PaymentMethod, Status: models.PaymentPending},
		CreatedAt:    now,
	}
	if req.ScheduledAt != nil {
		r.Status = models.StatusScheduled
		r.ScheduledAt = req.ScheduledAt
	}

	if err := o.machine.Create(r); err != nil {
		return nil, external("ride create failed", err)
	}
	observability.RidesRequested.Inc()

	if r.Status == models.StatusScheduled {
		o.log.Info("ride scheduled", "ride_id", r.ID, "scheduled_at", *req.ScheduledAt)
		return &RequestResult{Ride: r, Degraded: degraded}, nil
	}

	result := o.dispatchOffers(r, pax, req.Priority, now)
	result.Degraded = degraded
	return result, nil
}

// dispatchOffers runs the matcher and publishes one offer per candidate.
// Shared by the request path and scheduled activation.
func (o *Orchestrator) dispatchOffers(r *models.Ride, pax *models.Passenger, priority models.MatchPriority, now time.Time) *RequestResult {
	candidates, reason := o.matcher.Match(r.Pickup.Coord(), r.VehicleClass, priority)
	if len(candidates) == 0 {
		o.log.Warn("no drivers matched", "ride_id", r.ID, "reason", reason)
		return &RequestResult{Ride: r, MatchReason: reason}
	}

	ids := make([]string, 0, len(candidates))
	byID := make(map[string]matcher.Candidate, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Driver.ID)
		byID[c.Driver.ID] = c
	}
	offered := o.offers.Put(r.ID, ids, now)

	result := &RequestResult{Ride: r, NearbyCount: len(candidates)}
	for _, id := range offered {
		c := byID[id]
		eta := etaSeconds(c.DistanceKm)
		o.stats.RecordOffer(id)
		o.bus.Publish(id, bus.EventNewRequest, map[string]interface{}{
			"ride_id":        r.ID,
			"pickup":         r.Pickup,
			"dropoff":        r.Destination,
			"fare":           r.Fare.Estimated,
			"driverDistance": c.DistanceKm,
			"driverETA":      eta,
			"passenger":      map[string]interface{}{"id": pax.ID, "name": pax.Name, "rating": pax.Rating},
			"priority":       priority,
			"paymentMethod":  r.Payment.Method,
		})
		observability.OffersPublished.Inc()
		result.Offered = append(result.Offered, OfferedDriver{
			DriverID:   id,
			Name:       c.Driver.Name,
			DistanceKm: c.DistanceKm,
			ETASeconds: eta,
			Score:      c.Score,
		})
	}
	o.log.Info("offers published", "ride_id", r.ID, "offered", len(result.Offered), "nearby", len(candidates))
	return result
}

// AcceptRide resolves a driver's offer. First accept wins; everyone else
// gets a conflict carrying the current status.
func (o *Orchestrator) AcceptRide(ctx context.Context, driverID, rideID string) (*models.Ride, error) {
	d, ok := o.index.Get(driverID)
	if !ok || d.State != models.DriverAvailable {
		observability.AcceptsTotal.WithLabelValues("unavailable").Inc()
		return nil, conflict(CodeDriverNotAvailable, "", "driver is not available")
	}
	r, err := o.machine.Get(rideID)
	if err != nil {
		return nil, o.classify(err)
	}
	dist := geo.HaversineKm(d.Loc, r.Pickup.Coord())
	if dist > o.acceptRadiusKm {
		observability.AcceptsTotal.WithLabelValues("too_far").Inc()
		return nil, invalid(CodeDriverTooFar, fmt.Sprintf("driver is %.1f km from pickup", dist))
	}

	now := o.now()
	latency, found, live := o.offers.Resolve(rideID, driverID, now)
	if found && !live {
		observability.AcceptsTotal.WithLabelValues("expired").Inc()
		return nil, conflict(CodeOfferExpired, r.Status, "offer has expired")
	}
	if !found && o.offers.HasOffers(rideID) {
		observability.AcceptsTotal.WithLabelValues("expired").Inc()
		return nil, conflict(CodeOfferExpired, r.Status, "ride was not offered to this driver")
	}

	r, err = o.machine.Accept(rideID, driverID, now)
	if err != nil {
		observability.AcceptsTotal.WithLabelValues("lost").Inc()
		return nil, o.classify(err)
	}
	observability.AcceptsTotal.WithLabelValues("won").Inc()
	if found {
		o.stats.RecordAccept(driverID, latency)
	}
	o.offers.ExpireRide(rideID)
	o.index.SetState(driverID, models.DriverBusy)

	o.bus.Publish(r.PassengerID, bus.EventAccepted, map[string]interface{}{
		"ride_id":        r.ID,
		"driver":         map[string]interface{}{"id": d.ID, "name": d.Name, "rating": d.Rating, "vehicle": d.Vehicle},
		"driverDistance": dist,
		"driverETA":      etaSeconds(dist),
		"pickupLocation": r.Pickup,
	})
	o.log.Info("ride accepted", "ride_id", r.ID, "driver_id", driverID)
	return r, nil
}

// StartRide verifies the driver with a photo and begins tracking. An upload
// failure degrades to the placeholder URL rather than blocking the trip.
func (o *Orchestrator) StartRide(ctx context.Context, driverID, rideID string, start models.Coord, photo io.Reader, photoName string) (*models.Ride, error) {
	if photo == nil {
		return nil, invalid(ride.ReasonPhotoRequired, "driver photo is required")
	}
	photoURL := images.PlaceholderURL
	if url, err := o.images.Upload(ctx, photoName, photo); err != nil {
		o.log.Warn("photo upload failed, using placeholder", "ride_id", rideID, "error", err)
	} else {
		photoURL = url
	}

	now := o.now()
	pt := models.TrackPoint{Lat: start.Lat, Lon: start.Lon, TS: now}
	r, err := o.machine.Start(rideID, driverID, photoURL, pt, now)
	if err != nil {
		return nil, o.classify(err)
	}
	o.stats.RecordStart(driverID)

	o.bus.Publish(r.PassengerID, bus.EventStarted, map[string]interface{}{
		"ride_id":    r.ID,
		"started_at": now,
		"start":      start,
	})
	o.log.Info("ride started", "ride_id", r.ID, "driver_id", driverID)
	return r, nil
}

// UpdateLocation appends a tracking point and relays it to the passenger.
func (o *Orchestrator) UpdateLocation(ctx context.Context, driverID, rideID string, pt models.TrackPoint) error {
	if err := validCoord(models.Coord{Lat: pt.Lat, Lon: pt.Lon}); err != nil {
		return err
	}
	if pt.TS.IsZero() {
		pt.TS = o.now()
	}
	r, err := o.machine.AppendLocation(rideID, driverID, pt)
	if err != nil {
		return o.classify(err)
	}
	o.index.UpdateLocation(driverID, models.Coord{Lat: pt.Lat, Lon: pt.Lon}, pt)
	if err := o.producer.PublishLocation(driverID, rideID, pt); err != nil {
		o.log.Warn("telemetry publish failed", "driver_id", driverID, "error", err)
	}
	o.bus.Publish(r.PassengerID, bus.EventDriverLocation, map[string]interface{}{
		"ride_id":   r.ID,
		"location":  models.Coord{Lat: pt.Lat, Lon: pt.Lon},
		"timestamp": pt.TS,
	})
	return nil
}

// CompleteRide finalizes the fare, charges the passenger and releases the
// driver. A charge failure marks the payment failed; the ride stays
// completed.
func (o *Orchestrator) CompleteRide(ctx context.Context, driverID, rideID string, end models.Coord, actualDistanceM, actualDurationS *int64) (*models.Ride, error) {
	r, err := o.machine.Get(rideID)
	if err != nil {
		return nil, o.classify(err)
	}

	final := r.Fare.Estimated.Total
	if actualDistanceM != nil && actualDurationS != nil {
		final = fare.Calculate(float64(*actualDistanceM)/1000, float64(*actualDurationS)/60, 1).Total
	}
	earnings := (final*8 + 5) / 10

	now := o.now()
	r, err = o.machine.Complete(rideID, driverID, ride.CompleteParams{
		End:           models.TrackPoint{Lat: end.Lat, Lon: end.Lon, TS: now},
		FinalFare:     final,
		Earnings:      earnings,
		PaymentStatus: models.PaymentPending,
	}, now)
	if err != nil {
		return nil, o.classify(err)
	}
	observability.RidesCompleted.Inc()

	paymentStatus := o.charge(ctx, r, final)

	if r.RideType == models.RideSubscription {
		if err := o.passengers.DecrementSubscriptionRides(r.PassengerID); err != nil {
			o.log.Warn("subscription decrement failed", "passenger_id", r.PassengerID, "error", err)
		}
	}
	if err := o.drivers.IncrementCompletedRides(driverID); err != nil {
		o.log.Warn("driver counter update failed", "driver_id", driverID, "error", err)
	}
	o.stats.RecordCompletion(driverID)
	o.index.SetState(driverID, models.DriverAvailable)

	o.bus.Publish(r.PassengerID, bus.EventCompleted, map[string]interface{}{
		"ride_id":       r.ID,
		"finalFare":     final,
		"paymentStatus": paymentStatus,
	})
	o.log.Info("ride completed", "ride_id", r.ID, "final_fare", final, "payment_status", paymentStatus)

	r.Payment.Status = paymentStatus
	return r, nil
}

func (o *Orchestrator) charge(ctx context.Context, r *models.Ride, amount int64) models.PaymentStatus {
	gw, err := o.payments.ForMethod(r.Payment.Method)
	if err != nil {
		o.log.Error("no gateway for method", "method", r.Payment.Method)
		observability.PaymentFailures.Inc()
		o.setPaymentStatus(r.ID, models.PaymentFailed, "")
		return models.PaymentFailed
	}
	ch, err := gw.Charge(ctx, amount, r.Fare.Currency, map[string]string{"ride_id": r.ID, "passenger_id": r.PassengerID})
	if err != nil {
		o.log.Error("charge failed", "ride_id", r.ID, "method", r.Payment.Method, "error", err)
		observability.PaymentFailures.Inc()
		o.setPaymentStatus(r.ID, models.PaymentFailed, "")
		return models.PaymentFailed
	}
	o.setPaymentStatus(r.ID, ch.Status, ch.TransactionID)
	return ch.Status
}

func (o *Orchestrator) setPaymentStatus(rideID string, status models.PaymentStatus, txID string) {
	if _, err := o.machine.SetPaymentStatus(rideID, status, txID); err != nil {
		o.log.Error("payment status write failed", "ride_id", rideID, "error", err)
	}
}

// CancelRide applies the cancellation policy and notifies the counter-party,
// or every driver still holding an offer when no driver was assigned.
func (o *Orchestrator) CancelRide(ctx context.Context, actorID string, actor models.Actor, rideID, reason string) (*models.Ride, error) {
	r, err := o.machine.Get(rideID)
	if err != nil {
		return nil, o.classify(err)
	}
	if err := o.authorizeParticipant(r, actorID, actor); err != nil {
		return nil, err
	}

	now := o.now()
	cc := fare.CancelContext{Canceller: actor, Now: now}
	switch actor {
	case models.ActorPassenger:
		if pax, err := o.passengers.Get(actorID); err == nil {
			cc.SubscriptionActive = pax.Subscription.Active
			cc.AccountCreatedAt = pax.CreatedAt
		}
	case models.ActorDriver:
		if d, err := o.drivers.Get(actorID); err == nil {
			cc.DriverRating = d.Rating
		}
	}
	decision := fare.DecideCancellation(r, cc)
	if !decision.Allowed {
		return nil, conflict(decision.Reason, r.Status, "cancellation not allowed")
	}

	assigned := r.DriverID
	r, err = o.machine.Cancel(rideID, actor, reason, decision.Fee, now)
	if err != nil {
		return nil, o.classify(err)
	}
	observability.RidesCancelled.WithLabelValues(string(actor)).Inc()

	outstanding := o.offers.ExpireRide(rideID)
	payload := map[string]interface{}{
		"ride_id":         r.ID,
		"cancelledBy":     actor,
		"reason":          reason,
		"cancellationFee": decision.Fee,
	}
	if assigned != nil {
		o.index.SetState(*assigned, models.DriverAvailable)
		if actor != models.ActorDriver {
			o.bus.Publish(*assigned, bus.EventCancelled, payload)
		}
	} else {
		for _, id := range outstanding {
			o.bus.Publish(id, bus.EventCancelledUnassigned, map[string]interface{}{"ride_id": r.ID})
		}
	}
	if actor != models.ActorPassenger {
		o.bus.Publish(r.PassengerID, bus.EventCancelled, payload)
	}
	o.log.Info("ride cancelled", "ride_id", r.ID, "by", actor, "category", decision.Category, "fee", decision.Fee)
	return r, nil
}

// RateRide records a 1..5 score from one side of a completed ride and folds
// it into the rated party's running average.
func (o *Orchestrator) RateRide(ctx context.Context, actorID string, actor models.Actor, rideID string, score int, review string) error {
	if score < 1 || score > 5 {
		return invalid("INVALID_SCORE", "score must be between 1 and 5")
	}
	r, err := o.machine.Get(rideID)
	if err != nil {
		return o.classify(err)
	}
	if err := o.authorizeParticipant(r, actorID, actor); err != nil {
		return err
	}
	r, err = o.machine.Rate(rideID, actor, score, review)
	if err != nil {
		return o.classify(err)
	}
	switch actor {
	case models.ActorPassenger:
		if r.DriverID != nil {
			if err := o.drivers.ApplyRating(*r.DriverID, score); err != nil {
				o.log.Warn("driver rating update failed", "driver_id", *r.DriverID, "error", err)
			}
		}
	case models.ActorDriver:
		if err := o.passengers.ApplyRating(r.PassengerID, score); err != nil {
			o.log.Warn("passenger rating update failed", "passenger_id", r.PassengerID, "error", err)
		}
	}
	return nil
}

// ActivateScheduled promotes one scheduled ride to pending and dispatches
// offers, exactly like a fresh request.
func (o *Orchestrator) ActivateScheduled(rideID string) (*RequestResult, error) {
	now := o.now()
	r, err := o.machine.Activate(rideID, now)
	if err != nil {
		return nil, o.classify(err)
	}
	observability.ScheduledActivations.Inc()

	pax, err := o.passengers.Get(r.PassengerID)
	if err != nil {
		return nil, notFound("passenger not found")
	}
	result := o.dispatchOffers(r, pax, models.PrioritySpeed, now)
	o.bus.Publish(r.PassengerID, bus.EventScheduledActivated, map[string]interface{}{
		"ride_id":          r.ID,
		"notified_drivers": len(result.Offered),
	})
	return result, nil
}

// SetAvailability moves a driver on or off duty, refreshing the live index
// from the profile store.
func (o *Orchestrator) SetAvailability(driverID string, state models.AvailabilityState, loc *models.Coord) error {
	switch state {
	case models.DriverAvailable, models.DriverOffline:
	default:
		return invalid("INVALID_AVAILABILITY", "availability must be available or offline")
	}
	if _, ok := o.index.Get(driverID); !ok {
		d, err := o.drivers.Get(driverID)
		if err != nil {
			return notFound("driver not found")
		}
		o.index.Upsert(*d)
	}
	if loc != nil {
		if err := validCoord(*loc); err != nil {
			return err
		}
		o.index.UpdateLocation(driverID, *loc, models.TrackPoint{Lat: loc.Lat, Lon: loc.Lon, TS: o.now()})
	}
	o.index.SetState(driverID, state)
	return nil
}

// GetRide returns a ride to one of its participants or an admin.
func (o *Orchestrator) GetRide(requesterID string, role models.Actor, rideID string) (*models.Ride, error) {
	r, err := o.machine.Get(rideID)
	if err != nil {
		return nil, o.classify(err)
	}
	if role != models.ActorAdmin {
		if err := o.authorizeParticipant(r, requesterID, role); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (o *Orchestrator) History(userID string, limit int) ([]*models.Ride, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rs, err := o.machine.Store().ListByUser(userID, limit)
	if err != nil {
		return nil, external("history lookup failed", err)
	}
	return rs, nil
}

func (o *Orchestrator) Active(userID string, role models.Actor) (*models.Ride, error) {
	var (
		r   *models.Ride
		err error
	)
	if role == models.ActorDriver {
		r, err = o.machine.Store().ActiveByDriver(userID)
	} else {
		r, err = o.machine.Store().ActiveByPassenger(userID)
	}
	if err != nil {
		return nil, external("active ride lookup failed", err)
	}
	if r == nil {
		return nil, notFound("no active ride")
	}
	return r, nil
}

func (o *Orchestrator) Scheduled(passengerID string) ([]*models.Ride, error) {
	rs, err := o.machine.Store().ScheduledByPassenger(passengerID)
	if err != nil {
		return nil, external("scheduled lookup failed", err)
	}
	return rs, nil
}

func (o *Orchestrator) authorizeParticipant(r *models.Ride, actorID string, actor models.Actor) error {
	switch actor {
	case models.ActorAdmin:
		return nil
	case models.ActorPassenger:
		if r.PassengerID == actorID {
			return nil
		}
	case models.ActorDriver:
		if r.DriverID != nil && *r.DriverID == actorID {
			return nil
		}
	}
	return forbidden(CodeNotParticipant, "not a participant of this ride")
}

// classify maps state machine and store errors onto transport error kinds.
func (o *Orchestrator) classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	if err == ride.ErrNotFound {
		return notFound("ride not found")
	}
	if se, ok := ride.AsStateError(err); ok {
		return conflict(se.Reason, se.Current, "transition not allowed")
	}
	return external("storage failure", err)
}

func (o *Orchestrator) validateRequest(req *RideRequest) error {
	if !req.VehicleClass.Valid() {
		return invalid("INVALID_VEHICLE_CLASS", "vehicle class must be car, bike or auto")
	}
	if !req.PaymentMethod.Valid() {
		return invalid("INVALID_PAYMENT_METHOD", "unknown payment method")
	}
	switch req.RideType {
	case "":
		req.RideType = models.RideOneTime
	case models.RideOneTime, models.RideSubscription, models.RideScheduled:
	default:
		return invalid("INVALID_RIDE_TYPE", "unknown ride type")
	}
	switch req.Priority {
	case "":
		req.Priority = models.PrioritySpeed
	case models.PrioritySpeed, models.PriorityRating, models.PriorityDistance:
	default:
		return invalid("INVALID_PRIORITY", "unknown match priority")
	}
	if req.ScheduledAt != nil {
		req.RideType = models.RideScheduled
		if req.ScheduledAt.Before(o.now()) {
			return invalid("SCHEDULED_IN_PAST", "scheduled time is in the past")
		}
	} else if req.RideType == models.RideScheduled {
		return invalid("SCHEDULED_AT_REQUIRED", "scheduled rides need a scheduled time")
	}
	return nil
}

// resolveLocation fills missing coordinates from the address via the
// geocoder and missing addresses via reverse geocoding (best effort).
func (o *Orchestrator) resolveLocation(ctx context.Context, loc models.Location) (models.Location, error) {
	if loc.Lat == 0 && loc.Lon == 0 {
		if loc.Address == "" {
			return loc, invalid("MISSING_LOCATION", "coordinates or address required")
		}
		if o.geocoder == nil {
			return loc, invalid("MISSING_LOCATION", "coordinates required, geocoding unavailable")
		}
		resolved, err := o.geocoder.Geocode(ctx, loc.Address)
		if err != nil {
			return loc, external("geocoding failed", err)
		}
		return resolved, nil
	}
	if err := validCoord(loc.Coord()); err != nil {
		return loc, err
	}
	if loc.Address == "" && o.geocoder != nil {
		if addr, err := o.geocoder.ReverseGeocode(ctx, loc.Coord()); err == nil {
			loc.Address = addr
		}
	}
	return loc, nil
}

// route prefers the external router and falls back to straight-line
// distance at an average city speed. The second return reports degraded
// mode.
func (o *Orchestrator) route(ctx context.Context, from, to models.Coord) (models.Route, bool) {
	if o.router != nil {
		r, err := o.router.Route(ctx, from, to)
		if err == nil {
			return r, false
		}
		o.log.Warn("router failed, falling back to haversine", "error", err)
	}
	return maps.FallbackRoute(from, to), true
}

func etaSeconds(distanceKm float64) int64 {
	return int64(distanceKm / 30.0 * 3600)
}

func validCoord(c models.Coord) error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return invalid("INVALID_COORDINATES", "latitude or longitude out of range")
	}
	return nil
}
