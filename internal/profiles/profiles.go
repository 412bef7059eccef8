// Package profiles holds the passenger and driver records the dispatch core
// reads and the aggregates it writes back (ratings, ride counts, 30-day
// dispatch stats). Account CRUD itself lives outside the core.
package profiles

import (
	"errors"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrPassengerNotFound = errors.New("passenger not found")
	ErrDriverNotFound    = errors.New("driver not found")
)

type PassengerStore interface {
	Get(id string) (*models.Passenger, error)
	Put(p *models.Passenger) error
	ApplyRating(id string, score int) error
	DecrementSubscriptionRides(id string) error
}

type DriverStore interface {
	Get(id string) (*models.Driver, error)
	Put(d *models.Driver) error
	ApplyRating(id string, score int) error
	IncrementCompletedRides(id string) error
}

// StatsStore records dispatch history for matcher scoring.
type StatsStore interface {
	Stats(driverID string) models.DriverStats
	RecordOffer(driverID string)
	RecordAccept(driverID string, latency time.Duration)
	RecordStart(driverID string)
	RecordCompletion(driverID string)
}

type MemoryPassengers struct {
	mu   sync.RWMutex
	byID map[string]*models.Passenger
}

func NewMemoryPassengers() *MemoryPassengers {
	return &MemoryPassengers{byID: make(map[string]*models.Passenger)}
}

func (s *MemoryPassengers) Get(id string) (*models.Passenger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPassengerNotFound
	}
	cp := *p
	cp.EmergencyContacts = append([]models.EmergencyContact(nil), p.EmergencyContacts...)
	return &cp, nil
}

func (s *MemoryPassengers) Put(p *models.Passenger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.EmergencyContacts = append([]models.EmergencyContact(nil), p.EmergencyContacts...)
	s.byID[p.ID] = &cp
	return nil
}

func (s *MemoryPassengers) ApplyRating(id string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrPassengerNotFound
	}
	p.Rating = runningMean(p.Rating, p.RatingCount, score)
	p.RatingCount++
	return nil
}

func (s *MemoryPassengers) DecrementSubscriptionRides(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrPassengerNotFound
	}
	if p.Subscription.RidesRemaining > 0 {
		p.Subscription.RidesRemaining--
	}
	return nil
}

type MemoryDrivers struct {
	mu   sync.RWMutex
	byID map[string]*models.Driver
}

func NewMemoryDrivers() *MemoryDrivers {
	return &MemoryDrivers{byID: make(map[string]*models.Driver)}
}

func (s *MemoryDrivers) Get(id string) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryDrivers) Put(d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.byID[d.ID] = &cp
	return nil
}

func (s *MemoryDrivers) ApplyRating(id string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.Rating = runningMean(d.Rating, d.RatingCount, score)
	d.RatingCount++
	return nil
}

func (s *MemoryDrivers) IncrementCompletedRides(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.TotalRides++
	return nil
}

func runningMean(mean float64, count, score int) float64 {
	return (mean*float64(count) + float64(score)) / float64(count+1)
}

// MemoryStats keeps per-driver dispatch counters. The 30-day horizon is
// approximated by bucketed decay: counters age out wholesale when the bucket
// window rolls over, which is accurate enough for scoring defaults.
type MemoryStats struct {
	mu     sync.Mutex
	window time.Duration
	byID   map[string]*statsEntry
}

type statsEntry struct {
	stats models.DriverStats
	since time.Time
	// rolling sums for latency
	latencyTotal time.Duration
	latencyCount int
}

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{window: 30 * 24 * time.Hour, byID: make(map[string]*statsEntry)}
}

func (s *MemoryStats) entry(driverID string) *statsEntry {
	e, ok := s.byID[driverID]
	if !ok || time.Since(e.since) > s.window {
		e = &statsEntry{since: time.Now()}
		s.byID[driverID] = e
	}
	return e
}

func (s *MemoryStats) Stats(driverID string) models.DriverStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[driverID]
	if !ok || time.Since(e.since) > s.window {
		return models.DriverStats{}
	}
	return e.stats
}

func (s *MemoryStats) RecordOffer(driverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(driverID)
	e.stats.OffersReceived++
	e.stats.HasHistory = true
}

func (s *MemoryStats) RecordAccept(driverID string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(driverID)
	e.stats.OffersAccepted++
	e.stats.AcceptedRides++
	e.stats.HasHistory = true
	if latency > 0 {
		e.latencyTotal += latency
		e.latencyCount++
		e.stats.AvgAcceptLatency = e.latencyTotal / time.Duration(e.latencyCount)
		e.stats.HasLatency = true
	}
}

func (s *MemoryStats) RecordStart(driverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(driverID)
	e.stats.HasHistory = true
}

func (s *MemoryStats) RecordCompletion(driverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(driverID)
	e.stats.CompletedRides++
	e.stats.HasHistory = true
}
