package maps

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

const routeCacheTTL = 2 * time.Minute

// routeCache is a tiny in-memory cache keyed by coordinate pair. Route
// lookups for the same pickup/dropoff arrive in bursts while a request is
// being retried or re-matched.
type routeCache struct {
	mu    sync.RWMutex
	store map[string]routeEntry
}

type routeEntry struct {
	r  models.Route
	ts time.Time
}

func newRouteCache() *routeCache {
	return &routeCache{store: make(map[string]routeEntry)}
}

func key(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}

func (c *routeCache) get(a, b models.Coord) (models.Route, bool) {
	k := key(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.Route{}, false
	}
	if time.Since(e.ts) > routeCacheTTL {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.Route{}, false
	}
	return e.r, true
}

func (c *routeCache) set(a, b models.Coord, r models.Route) {
	c.mu.Lock()
	c.store[key(a, b)] = routeEntry{r: r, ts: time.Now()}
	c.mu.Unlock()
}
