package geo

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisIndex implements Index on Redis GEO commands plus a metadata hash per
// driver, so multiple dispatch processes can share one view of the fleet.
type RedisIndex struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, ctx: context.Background()}
}

func (r *RedisIndex) Upsert(d models.Driver) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(d.ID), map[string]interface{}{
		"name":     d.Name,
		"rating":   strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"approved": strconv.FormatBool(d.Approved),
		"state":    string(d.State),
		"class":    string(d.Vehicle.Class),
		"updated":  d.LocUpdated.UTC().Format(time.RFC3339Nano),
	}).Err()
}

func (r *RedisIndex) UpdateLocation(driverID string, c models.Coord, ts models.TrackPoint) bool {
	if prev, err := r.client.HGet(r.ctx, metaKey(driverID), "updated").Result(); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, prev); perr == nil && ts.TS.Before(t) {
			return false
		}
	}
	_, err := r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: c.Lon, Latitude: c.Lat, Name: driverID}).Result()
	if err != nil {
		return false
	}
	_ = r.client.HSet(r.ctx, metaKey(driverID), "updated", ts.TS.UTC().Format(time.RFC3339Nano)).Err()
	return true
}

func (r *RedisIndex) SetState(driverID string, state models.AvailabilityState) {
	_ = r.client.HSet(r.ctx, metaKey(driverID), "state", string(state)).Err()
}

func (r *RedisIndex) Get(driverID string) (models.Driver, bool) {
	m, err := r.client.HGetAll(r.ctx, metaKey(driverID)).Result()
	if err != nil || len(m) == 0 {
		return models.Driver{}, false
	}
	d := driverFromMeta(driverID, m)
	if pos, err := r.client.GeoPos(r.ctx, r.key, driverID).Result(); err == nil && len(pos) == 1 && pos[0] != nil {
		d.Loc = models.Coord{Lat: pos[0].Latitude, Lon: pos[0].Longitude}
	}
	return d, true
}

func (r *RedisIndex) Query(p models.Coord, radiusKm float64, class models.VehicleClass) []Candidate {
	res, err := r.client.GeoSearchLocation(r.ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lon,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]Candidate, 0, len(res))
	for _, g := range res {
		m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result()
		if err != nil || len(m) == 0 {
			continue
		}
		d := driverFromMeta(g.Name, m)
		if d.State != models.DriverAvailable || !d.Approved {
			continue
		}
		if class != "" && d.Vehicle.Class != class {
			continue
		}
		d.Loc = models.Coord{Lat: g.Latitude, Lon: g.Longitude}
		out = append(out, Candidate{Driver: d, DistanceKm: g.Dist})
		if len(out) == MaxCandidates {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Driver.ID < out[j].Driver.ID
	})
	return out
}

func driverFromMeta(id string, m map[string]string) models.Driver {
	d := models.Driver{ID: id}
	d.Name = m["name"]
	if v, err := strconv.ParseFloat(m["rating"], 64); err == nil {
		d.Rating = v
	}
	d.Approved = m["approved"] == "true"
	d.State = models.AvailabilityState(m["state"])
	d.Vehicle.Class = models.VehicleClass(m["class"])
	if t, err := time.Parse(time.RFC3339Nano, m["updated"]); err == nil {
		d.LocUpdated = t
	}
	return d
}

func metaKey(id string) string { return "driver:meta:" + id }
