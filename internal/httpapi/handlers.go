package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/sos"
)

const maxPhotoBytes = 10 << 20

type pointInput struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (p pointInput) location() models.Location {
	return models.Location{Lat: p.Lat, Lon: p.Lng, Address: p.Address}
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	pickup, ok1 := coordFromQuery(r, "pickupLat", "pickupLng")
	dropoff, ok2 := coordFromQuery(r, "dropoffLat", "dropoffLng")
	if !ok1 || !ok2 {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "pickupLat, pickupLng, dropoffLat and dropoffLng are required"})
		return
	}
	bd, route, err := s.orch.EstimateFare(r.Context(), pickup, dropoff)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "fare estimated", map[string]interface{}{"fare": bd, "route": route})
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		Pickup        pointInput `json:"pickup"`
		Dropoff       pointInput `json:"dropoff"`
		VehicleClass  string     `json:"vehicleClass"`
		RideType      string     `json:"rideType"`
		PaymentMethod string     `json:"paymentMethod"`
		Priority      string     `json:"priority"`
		ScheduledAt   *time.Time `json:"scheduledAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	result, err := s.orch.RequestRide(r.Context(), id.UserID, dispatch.RideRequest{
		Pickup:        body.Pickup.location(),
		Destination:   body.Dropoff.location(),
		VehicleClass:  models.VehicleClass(body.VehicleClass),
		RideType:      models.RideType(body.RideType),
		PaymentMethod: models.PaymentMethod(body.PaymentMethod),
		Priority:      models.MatchPriority(body.Priority),
		ScheduledAt:   body.ScheduledAt,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, "ride requested", result)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	ride, err := s.orch.AcceptRide(r.Context(), id.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "ride accepted", ride)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "multipart form required"})
		return
	}
	lat, err1 := strconv.ParseFloat(r.FormValue("lat"), 64)
	lng, err2 := strconv.ParseFloat(r.FormValue("lng"), 64)
	if err1 != nil || err2 != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "lat and lng form fields are required"})
		return
	}

	var (
		photo     io.Reader
		photoName string
	)
	if file, header, err := r.FormFile("driverPhoto"); err == nil {
		defer file.Close()
		photo = file
		photoName = header.Filename
	}

	ride, rerr := s.orch.StartRide(r.Context(), id.UserID, mux.Vars(r)["id"], models.Coord{Lat: lat, Lon: lng}, photo, photoName)
	if rerr != nil {
		s.writeError(w, rerr)
		return
	}
	s.writeData(w, http.StatusOK, "ride started", ride)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		Lat       float64    `json:"lat"`
		Lng       float64    `json:"lng"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	pt := models.TrackPoint{Lat: body.Lat, Lon: body.Lng}
	if body.Timestamp != nil {
		pt.TS = *body.Timestamp
	}
	if err := s.orch.UpdateLocation(r.Context(), id.UserID, mux.Vars(r)["id"], pt); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "location recorded", nil)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		Lat             float64 `json:"lat"`
		Lng             float64 `json:"lng"`
		ActualDistanceM *int64  `json:"actualDistanceM"`
		ActualDurationS *int64  `json:"actualDurationS"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	ride, err := s.orch.CompleteRide(r.Context(), id.UserID, mux.Vars(r)["id"],
		models.Coord{Lat: body.Lat, Lon: body.Lng}, body.ActualDistanceM, body.ActualDurationS)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "ride completed", ride)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	ride, err := s.orch.CancelRide(r.Context(), id.UserID, id.Role, mux.Vars(r)["id"], body.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "ride cancelled", map[string]interface{}{
		"ride":            ride,
		"cancellationFee": ride.Fare.CancellationFee,
	})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		Score  int    `json:"score"`
		Review string `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	if err := s.orch.RateRide(r.Context(), id.UserID, id.Role, mux.Vars(r)["id"], body.Score, body.Review); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "rating recorded", nil)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	ride, err := s.orch.GetRide(id.UserID, id.Role, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "ride details", ride)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rides, err := s.orch.History(id.UserID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "ride history", rides)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	ride, err := s.orch.Active(id.UserID, id.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "active ride", ride)
}

func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	rides, err := s.orch.Scheduled(id.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "scheduled rides", rides)
}

func (s *Server) handleSOS(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		RideID    string      `json:"rideId"`
		Severity  string      `json:"severity"`
		AlertType string      `json:"alertType"`
		Location  *pointInput `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	req := sos.TriggerRequest{RideID: body.RideID, Severity: body.Severity, AlertType: body.AlertType}
	if body.Location != nil {
		req.Location = &models.Coord{Lat: body.Location.Lat, Lon: body.Location.Lng}
	}
	result, err := s.sos.Trigger(r.Context(), id.UserID, id.Role, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, "sos alert raised", result)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var body struct {
		Status string   `json:"status"`
		Lat    *float64 `json:"lat"`
		Lng    *float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: "malformed request body"})
		return
	}
	var loc *models.Coord
	if body.Lat != nil && body.Lng != nil {
		loc = &models.Coord{Lat: *body.Lat, Lon: *body.Lng}
	}
	if err := s.orch.SetAvailability(id.UserID, models.AvailabilityState(body.Status), loc); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, "availability updated", nil)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS authenticates via the token query parameter and attaches the
// connection to the realtime bus.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		s.writeEnvelope(w, http.StatusUnauthorized, envelope{Success: false, Message: "missing token"})
		return
	}
	id, err := parseToken(s.jwtSecret, raw)
	if err != nil {
		s.writeEnvelope(w, http.StatusUnauthorized, envelope{Success: false, Message: "invalid token"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.wsreg.Attach(id.UserID, conn)
}

func coordFromQuery(r *http.Request, latKey, lngKey string) (models.Coord, bool) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	lng, err2 := strconv.ParseFloat(r.URL.Query().Get(lngKey), 64)
	if err1 != nil || err2 != nil {
		return models.Coord{}, false
	}
	return models.Coord{Lat: lat, Lon: lng}, true
}
