package ride

import (
	"sync"
	"time"
)

// Offer is an outstanding dispatch proposal to one driver for one ride.
// Expiry is lazy: nothing times offers out in the background, they simply
// cannot resolve once past ExpiresAt.
type Offer struct {
	RideID    string
	DriverID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OfferTable tracks outstanding offers in memory. A driver holds offers for
// at most one ride at a time.
type OfferTable struct {
	mu       sync.Mutex
	ttl      time.Duration
	byRide   map[string]map[string]*Offer
	byDriver map[string]string // driver -> ride currently offered
}

func NewOfferTable(ttl time.Duration) *OfferTable {
	return &OfferTable{
		ttl:      ttl,
		byRide:   make(map[string]map[string]*Offer),
		byDriver: make(map[string]string),
	}
}

// Put records offers for the given drivers and returns the subset actually
// offered; drivers already holding a live offer for another ride are skipped.
func (t *OfferTable) Put(rideID string, driverIDs []string, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	offered := make([]string, 0, len(driverIDs))
	for _, id := range driverIDs {
		if held, ok := t.byDriver[id]; ok && held != rideID {
			if t.liveLocked(held, id, now) {
				continue
			}
		}
		if t.byRide[rideID] == nil {
			t.byRide[rideID] = make(map[string]*Offer)
		}
		t.byRide[rideID][id] = &Offer{
			RideID:    rideID,
			DriverID:  id,
			CreatedAt: now,
			ExpiresAt: now.Add(t.ttl),
		}
		t.byDriver[id] = rideID
		offered = append(offered, id)
	}
	return offered
}

// Resolve consumes the driver's offer for a ride. It reports the accept
// latency, whether an offer was ever recorded, and whether it was still live.
func (t *OfferTable) Resolve(rideID, driverID string, now time.Time) (latency time.Duration, found, live bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	offers := t.byRide[rideID]
	o, ok := offers[driverID]
	if !ok {
		return 0, false, false
	}
	delete(offers, driverID)
	if t.byDriver[driverID] == rideID {
		delete(t.byDriver, driverID)
	}
	if now.After(o.ExpiresAt) {
		return 0, true, false
	}
	return now.Sub(o.CreatedAt), true, true
}

// ExpireRide drops every outstanding offer for a ride, e.g. on cancellation
// or after a winning accept.
func (t *OfferTable) ExpireRide(rideID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	offers := t.byRide[rideID]
	dropped := make([]string, 0, len(offers))
	for id := range offers {
		dropped = append(dropped, id)
		if t.byDriver[id] == rideID {
			delete(t.byDriver, id)
		}
	}
	delete(t.byRide, rideID)
	return dropped
}

// OutstandingDrivers lists drivers whose offers for the ride are still live.
func (t *OfferTable) OutstandingDrivers(rideID string, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.byRide[rideID]))
	for id, o := range t.byRide[rideID] {
		if !now.After(o.ExpiresAt) {
			out = append(out, id)
		}
	}
	return out
}

// HasOffers reports whether any offers were recorded for the ride, live or
// expired.
func (t *OfferTable) HasOffers(rideID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byRide[rideID]) > 0
}

func (t *OfferTable) liveLocked(rideID, driverID string, now time.Time) bool {
	o, ok := t.byRide[rideID][driverID]
	return ok && !now.After(o.ExpiresAt)
}
