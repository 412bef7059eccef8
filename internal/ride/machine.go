package ride

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// allowedTransitions encodes the status graph. Anything absent is forbidden.
var allowedTransitions = map[models.RideStatus][]models.RideStatus{
	models.StatusScheduled:  {models.StatusPending, models.StatusCancelled},
	models.StatusPending:    {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted},
}

func canTransition(from, to models.RideStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const lockShards = 64

// ActivationWindow is how close to scheduled_at a scheduled ride may be
// promoted to a live request.
const ActivationWindow = 15 * time.Minute

// Machine is the single write authority for rides. Every transition runs
// under a per-ride lock (sharded by ride id), so concurrent calls on one
// ride serialize and the first accept wins.
type Machine struct {
	store Store
	locks [lockShards]sync.Mutex
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store}
}

func (m *Machine) Store() Store { return m.store }

func (m *Machine) lockFor(rideID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rideID))
	return &m.locks[h.Sum32()%lockShards]
}

// Create persists a fresh ride in pending or scheduled state.
func (m *Machine) Create(r *models.Ride) error {
	if r.Status != models.StatusPending && r.Status != models.StatusScheduled {
		return stateErr(ReasonInvalidTransition, r.Status)
	}
	return m.store.Create(r)
}

func (m *Machine) Get(id string) (*models.Ride, error) {
	return m.store.Get(id)
}

// Activate promotes a scheduled ride to pending once inside the activation
// window.
func (m *Machine) Activate(id string, now time.Time) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(r.Status, models.StatusPending) {
		return nil, stateErr(ReasonInvalidTransition, r.Status)
	}
	if r.ScheduledAt == nil || r.ScheduledAt.Sub(now) > ActivationWindow {
		return nil, stateErr(ReasonTooEarly, r.Status)
	}
	r.Status = models.StatusPending
	t := now
	r.ActivatedAt = &t
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Accept assigns a driver to a pending ride. First caller wins; a
// concurrent loser gets ALREADY_ACCEPTED and must not change driver state.
func (m *Machine) Accept(id, driverID string, now time.Time) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusAccepted || r.Status == models.StatusInProgress {
		return nil, stateErr(ReasonAlreadyAccepted, r.Status)
	}
	if !canTransition(r.Status, models.StatusAccepted) {
		return nil, stateErr(ReasonInvalidTransition, r.Status)
	}
	if r.DriverID != nil {
		return nil, stateErr(ReasonAlreadyAccepted, r.Status)
	}
	r.Status = models.StatusAccepted
	d := driverID
	r.DriverID = &d
	t := now
	r.AcceptedAt = &t
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Start moves an accepted ride into progress. The driver photo must have
// been captured and the caller must be the assigned driver.
func (m *Machine) Start(id, driverID, photoURL string, start models.TrackPoint, now time.Time) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(r.Status, models.StatusInProgress) {
		return nil, stateErr(ReasonInvalidTransition, r.Status)
	}
	if r.DriverID == nil || *r.DriverID != driverID {
		return nil, stateErr(ReasonNotAssigned, r.Status)
	}
	if photoURL == "" {
		return nil, stateErr(ReasonPhotoRequired, r.Status)
	}
	r.Status = models.StatusInProgress
	t := now
	r.StartedAt = &t
	r.Safety.DriverPhotoURL = photoURL
	r.Safety.VerifiedAt = &t
	sp := start
	r.Tracking.StartLoc = &sp
	r.Tracking.CurrentLoc = &sp
	r.Tracking.Path = []models.TrackPoint{start}
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AppendLocation records one tracking sample. Only valid while in progress
// and only with a non-decreasing timestamp.
func (m *Machine) AppendLocation(id, driverID string, p models.TrackPoint) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusInProgress {
		return nil, stateErr(ReasonNotInProgress, r.Status)
	}
	if r.DriverID == nil || *r.DriverID != driverID {
		return nil, stateErr(ReasonNotAssigned, r.Status)
	}
	if n := len(r.Tracking.Path); n > 0 && p.TS.Before(r.Tracking.Path[n-1].TS) {
		return nil, stateErr(ReasonStaleTimestamp, r.Status)
	}
	r.Tracking.Path = append(r.Tracking.Path, p)
	cp := p
	r.Tracking.CurrentLoc = &cp
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// CompleteParams carries the final fare figures the orchestrator computed.
type CompleteParams struct {
	End           models.TrackPoint
	FinalFare     int64
	Earnings      int64
	PaymentStatus models.PaymentStatus
}

func (m *Machine) Complete(id, driverID string, p CompleteParams, now time.Time) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(r.Status, models.StatusCompleted) {
		return nil, stateErr(ReasonInvalidTransition, r.Status)
	}
	if r.DriverID == nil || *r.DriverID != driverID {
		return nil, stateErr(ReasonNotAssigned, r.Status)
	}
	r.Status = models.StatusCompleted
	t := now
	r.CompletedAt = &t
	end := p.End
	r.Tracking.EndLoc = &end
	r.Tracking.CurrentLoc = &end
	final := p.FinalFare
	r.Fare.Final = &final
	earn := p.Earnings
	r.Fare.DriverEarnings = &earn
	if p.PaymentStatus != "" {
		r.Payment.Status = p.PaymentStatus
	}
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetPaymentStatus records the gateway outcome after completion. A payment
// failure never reverts a completed ride.
func (m *Machine) SetPaymentStatus(id string, status models.PaymentStatus, txID string) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	r.Payment.Status = status
	if txID != "" {
		r.Payment.TransactionID = txID
	}
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Machine) Cancel(id string, by models.Actor, reason string, fee int64, now time.Time) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(r.Status, models.StatusCancelled) {
		return nil, stateErr(ReasonInvalidTransition, r.Status)
	}
	r.Status = models.StatusCancelled
	t := now
	r.CancelledAt = &t
	r.CancelledBy = by
	r.CancelReason = reason
	r.Fare.CancellationFee = fee
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Rate writes one side's rating on a completed ride. Each side writes once.
func (m *Machine) Rate(id string, by models.Actor, score int, review string) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusCompleted {
		return nil, stateErr(ReasonNotCompleted, r.Status)
	}
	switch by {
	case models.ActorPassenger:
		if r.Ratings.PassengerOfDriver != nil {
			return nil, stateErr(ReasonAlreadyRated, r.Status)
		}
		s := score
		r.Ratings.PassengerOfDriver = &s
		r.Ratings.PassengerReview = review
	case models.ActorDriver:
		if r.Ratings.DriverOfPassenger != nil {
			return nil, stateErr(ReasonAlreadyRated, r.Status)
		}
		s := score
		r.Ratings.DriverOfPassenger = &s
		r.Ratings.DriverReview = review
	default:
		return nil, stateErr(ReasonInvalidTransition, r.Status)
	}
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AppendSOSEvent records an alert on the ride's safety record. Permitted in
// any non-terminal state and tolerated on terminal rides for late alerts.
func (m *Machine) AppendSOSEvent(id string, ev models.SOSEvent) (*models.Ride, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	r.Safety.SOSEvents = append(r.Safety.SOSEvents, ev)
	if err := m.store.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}
