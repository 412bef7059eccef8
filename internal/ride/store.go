package ride

import (
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Store defines persistence for rides. Implementations must return copies;
// callers mutate only through the state machine.
type Store interface {
	Create(r *models.Ride) error
	Get(id string) (*models.Ride, error)
	Update(r *models.Ride) error
	ActiveByPassenger(passengerID string) (*models.Ride, error)
	ActiveByDriver(driverID string) (*models.Ride, error)
	ListByUser(userID string, limit int) ([]*models.Ride, error)
	ScheduledDue(before time.Time) ([]*models.Ride, error)
	ScheduledByPassenger(passengerID string) ([]*models.Ride, error)
}

// MemoryStore backs the state machine when Postgres is not configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) Create(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) Get(id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) Update(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ErrNotFound
	}
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) ActiveByPassenger(passengerID string) (*models.Ride, error) {
	return m.findActive(func(r *models.Ride) bool { return r.PassengerID == passengerID })
}

func (m *MemoryStore) ActiveByDriver(driverID string) (*models.Ride, error) {
	return m.findActive(func(r *models.Ride) bool { return r.DriverID != nil && *r.DriverID == driverID })
}

// findActive returns the most recent ride in accepted/in_progress, or nil.
func (m *MemoryStore) findActive(match func(*models.Ride) bool) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.Ride
	for _, r := range m.rides {
		if !r.Status.Active() || !match(r) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneRide(best), nil
}

func (m *MemoryStore) ListByUser(userID string, limit int) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, 16)
	for _, r := range m.rides {
		if r.PassengerID == userID || (r.DriverID != nil && *r.DriverID == userID) {
			out = append(out, cloneRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ScheduledDue(before time.Time) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, 8)
	for _, r := range m.rides {
		if r.Status == models.StatusScheduled && r.ScheduledAt != nil && !r.ScheduledAt.After(before) {
			out = append(out, cloneRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

func (m *MemoryStore) ScheduledByPassenger(passengerID string) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, 8)
	for _, r := range m.rides {
		if r.Status == models.StatusScheduled && r.PassengerID == passengerID {
			out = append(out, cloneRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneRide(r *models.Ride) *models.Ride {
	cp := *r
	if r.Tracking.Path != nil {
		cp.Tracking.Path = append([]models.TrackPoint(nil), r.Tracking.Path...)
	}
	if r.Safety.SOSEvents != nil {
		cp.Safety.SOSEvents = append([]models.SOSEvent(nil), r.Safety.SOSEvents...)
	}
	return &cp
}
