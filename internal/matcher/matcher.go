package matcher

import (
	"sort"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

// Failure reasons returned when no short-list can be produced.
const (
	ReasonNoDrivers      = "NO_DRIVERS"
	ReasonNoVehicleMatch = "NO_VEHICLE_MATCH"
)

// score weights
const (
	wDistance   = 0.30
	wRating     = 0.25
	wAcceptance = 0.20
	wCompletion = 0.15
	wResponse   = 0.10
)

// defaults for drivers with no 30-day history
const (
	defaultAcceptance = 50.0
	defaultCompletion = 50.0
	defaultResponse   = 70.0
)

// StatsSource supplies per-driver dispatch history for scoring.
type StatsSource interface {
	Stats(driverID string) models.DriverStats
}

type Candidate struct {
	Driver     models.Driver
	DistanceKm float64
	Score      float64
}

type Engine struct {
	Index    geo.Index
	Stats    StatsSource
	RadiusKm float64
	TopN     int
}

func NewEngine(index geo.Index, stats StatsSource, radiusKm float64) *Engine {
	return &Engine{Index: index, Stats: stats, RadiusKm: radiusKm, TopN: 3}
}

// Match returns a ranked short-list of drivers for a pickup point, or an
// empty list with a failure reason.
func (e *Engine) Match(pickup models.Coord, class models.VehicleClass, priority models.MatchPriority) ([]Candidate, string) {
	topN := e.TopN
	if topN <= 0 {
		topN = 3
	}
	inRadius := e.Index.Query(pickup, e.RadiusKm, "")
	if len(inRadius) == 0 {
		observability.MatchesTotal.WithLabelValues("no_drivers").Inc()
		return nil, ReasonNoDrivers
	}

	cands := make([]Candidate, 0, len(inRadius))
	for _, c := range inRadius {
		if class != "" && c.Driver.Vehicle.Class != class {
			continue
		}
		cands = append(cands, Candidate{
			Driver:     c.Driver,
			DistanceKm: c.DistanceKm,
			Score:      e.score(c, priority),
		})
	}
	if len(cands) == 0 {
		observability.MatchesTotal.WithLabelValues("no_vehicle_match").Inc()
		return nil, ReasonNoVehicleMatch
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if cands[i].DistanceKm != cands[j].DistanceKm {
			return cands[i].DistanceKm < cands[j].DistanceKm
		}
		return cands[i].Driver.ID < cands[j].Driver.ID
	})
	if len(cands) > topN {
		cands = cands[:topN]
	}
	observability.MatchesTotal.WithLabelValues("matched").Inc()
	return cands, ""
}

func (e *Engine) score(c geo.Candidate, priority models.MatchPriority) float64 {
	distScore := 100 - c.DistanceKm*20
	if distScore < 0 {
		distScore = 0
	}
	ratingScore := c.Driver.Rating / 5 * 100

	acceptance := defaultAcceptance
	completion := defaultCompletion
	response := defaultResponse
	if e.Stats != nil {
		st := e.Stats.Stats(c.Driver.ID)
		if st.HasHistory && st.OffersReceived > 0 {
			acceptance = float64(st.OffersAccepted) / float64(st.OffersReceived) * 100
		}
		if st.HasHistory && st.AcceptedRides > 0 {
			completion = float64(st.CompletedRides) / float64(st.AcceptedRides) * 100
		}
		if st.HasLatency {
			response = 100 - float64(st.AvgAcceptLatency.Milliseconds())/1000
			if response < 0 {
				response = 0
			}
		}
	}

	base := wDistance*distScore + wRating*ratingScore + wAcceptance*acceptance +
		wCompletion*completion + wResponse*response

	switch priority {
	case models.PriorityRating:
		return 0.8*base + 0.2*ratingScore
	case models.PriorityDistance:
		return 0.8*base + 0.2*distScore
	default:
		return base
	}
}
