// Package maps wraps the geocoding and routing providers the dispatch core
// depends on. When no provider is configured the orchestrator falls back to
// straight-line estimates.
package maps

import (
	"context"
	"errors"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

var ErrNoRoute = errors.New("no route found")

type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Location, error)
	ReverseGeocode(ctx context.Context, c models.Coord) (string, error)
}

type Router interface {
	Route(ctx context.Context, from, to models.Coord) (models.Route, error)
}

// fallbackSpeedKmh approximates city driving when routing is unavailable.
const fallbackSpeedKmh = 30.0

// FallbackRoute estimates a route from straight-line distance at city speed.
// Polyline stays nil so clients can tell the degraded path apart.
func FallbackRoute(from, to models.Coord) models.Route {
	distKm := geo.HaversineKm(from, to)
	return models.Route{
		DistanceM: int64(distKm * 1000),
		DurationS: int64(distKm / fallbackSpeedKmh * 3600),
	}
}

// GoogleClient implements Geocoder and Router on the Google Maps APIs.
type GoogleClient struct {
	client *gmaps.Client
	cache  *routeCache
}

func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	c, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleClient{client: c, cache: newRouteCache()}, nil
}

func (g *GoogleClient) Geocode(ctx context.Context, address string) (models.Location, error) {
	res, err := g.geocodeOnce(ctx, address)
	if err != nil {
		// geocoding is an idempotent read, one in-call retry
		res, err = g.geocodeOnce(ctx, address)
	}
	return res, err
}

func (g *GoogleClient) geocodeOnce(ctx context.Context, address string) (models.Location, error) {
	results, err := g.client.Geocode(ctx, &gmaps.GeocodingRequest{Address: address})
	if err != nil {
		return models.Location{}, err
	}
	if len(results) == 0 {
		return models.Location{}, fmt.Errorf("no geocode result for %q", address)
	}
	r := results[0]
	return models.Location{
		Lat:     r.Geometry.Location.Lat,
		Lon:     r.Geometry.Location.Lng,
		Address: r.FormattedAddress,
	}, nil
}

func (g *GoogleClient) ReverseGeocode(ctx context.Context, c models.Coord) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &gmaps.GeocodingRequest{
		LatLng: &gmaps.LatLng{Lat: c.Lat, Lng: c.Lon},
	})
	if err != nil {
		results, err = g.client.ReverseGeocode(ctx, &gmaps.GeocodingRequest{
			LatLng: &gmaps.LatLng{Lat: c.Lat, Lng: c.Lon},
		})
	}
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no address at %.6f,%.6f", c.Lat, c.Lon)
	}
	return results[0].FormattedAddress, nil
}

func (g *GoogleClient) Route(ctx context.Context, from, to models.Coord) (models.Route, error) {
	if r, ok := g.cache.get(from, to); ok {
		return r, nil
	}
	r, err := g.routeOnce(ctx, from, to)
	if err != nil {
		r, err = g.routeOnce(ctx, from, to)
	}
	if err != nil {
		return models.Route{}, err
	}
	g.cache.set(from, to, r)
	return r, nil
}

func (g *GoogleClient) routeOnce(ctx context.Context, from, to models.Coord) (models.Route, error) {
	routes, _, err := g.client.Directions(ctx, &gmaps.DirectionsRequest{
		Origin:      fmt.Sprintf("%.6f,%.6f", from.Lat, from.Lon),
		Destination: fmt.Sprintf("%.6f,%.6f", to.Lat, to.Lon),
	})
	if err != nil {
		return models.Route{}, err
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return models.Route{}, ErrNoRoute
	}
	route := routes[0]
	var distM, durS int64
	for _, leg := range route.Legs {
		distM += int64(leg.Distance.Meters)
		durS += int64(leg.Duration.Seconds())
	}
	poly := route.OverviewPolyline.Points
	return models.Route{DistanceM: distM, DurationS: durS, Polyline: &poly}, nil
}
