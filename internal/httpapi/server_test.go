package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/profiles"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/sms"
	"github.com/example/ride-dispatch/internal/sos"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type staticRouter struct{}

func (staticRouter) Route(context.Context, models.Coord, models.Coord) (models.Route, error) {
	return models.Route{DistanceM: 5000, DurationS: 600}, nil
}

type apiFixture struct {
	server *Server
	broker *bus.Broker
	index  geo.Index
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	machine := ride.NewMachine(ride.NewMemoryStore())
	index := geo.NewMemoryIndex()
	broker := bus.NewBroker()
	pax := profiles.NewMemoryPassengers()
	drv := profiles.NewMemoryDrivers()
	stats := profiles.NewMemoryStats()

	require.NoError(t, pax.Put(&models.Passenger{
		ID: "p1", Name: "Ayesha", Phone: "+923001234567",
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
		EmergencyContacts: []models.EmergencyContact{
			{Name: "Bilal", Phone: "+923009990001"},
		},
	}))
	require.NoError(t, pax.Put(&models.Passenger{
		ID: "p2", Name: "Noor", Phone: "+923007654321",
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}))
	d := models.Driver{
		ID: "d1", Name: "Kamran", Approved: true, Rating: 4.7,
		Vehicle: models.Vehicle{Class: models.VehicleCar, Model: "Corolla", Plate: "LEA-123"},
		State:   models.DriverAvailable,
		Loc:     models.Coord{Lat: 31.521, Lon: 74.360},
	}
	require.NoError(t, drv.Put(&d))
	index.Upsert(d)

	registry := payments.NewRegistry()
	registry.Register(models.PayCash, payments.CashGateway{})

	orch := dispatch.NewOrchestrator(dispatch.Deps{
		Logger:     log,
		Machine:    machine,
		Offers:     ride.NewOfferTable(15 * time.Second),
		Matcher:    matcher.NewEngine(index, stats, 5),
		Index:      index,
		Bus:        broker,
		Router:     staticRouter{},
		Payments:   registry,
		Passengers: pax,
		Drivers:    drv,
		Stats:      stats,
	})
	pipeline := sos.NewPipeline(log, machine, pax, sms.NewNoop(), broker, sos.NewMemoryStore())
	wsreg := bus.NewWSRegistry(broker, log)

	return &apiFixture{
		server: NewServer(log, orch, pipeline, wsreg, testSecret, []string{"*"}),
		broker: broker,
		index:  index,
	}
}

func token(t *testing.T, userID string, role models.Actor) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, "GET", "/api/v1/rides/active", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, false, env["success"])
}

func TestRejectsForgedToken(t *testing.T) {
	f := newAPIFixture(t)
	forged, err := IssueToken([]byte("wrong-secret-wrong-secret-wrong!"), "p1", models.ActorPassenger, time.Hour)
	require.NoError(t, err)
	w := f.do(t, "GET", "/api/v1/rides/active", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleEnforcement(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, "POST", "/api/v1/rides/request", token(t, "d1", models.ActorDriver), map[string]interface{}{})
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, false, env["success"])
}

func TestEstimate(t *testing.T) {
	f := newAPIFixture(t)
	bearer := token(t, "p1", models.ActorPassenger)

	w := f.do(t, "GET", "/api/v1/rides/estimate?pickupLat=31.5204&pickupLng=74.3587&dropoffLat=31.4504&dropoffLng=73.1350", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	data := env["data"].(map[string]interface{})
	fareBody := data["fare"].(map[string]interface{})
	assert.Greater(t, fareBody["total"].(float64), 0.0)

	w = f.do(t, "GET", "/api/v1/rides/estimate?pickupLat=31.5", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func requestRide(t *testing.T, f *apiFixture) string {
	t.Helper()
	w := f.do(t, "POST", "/api/v1/rides/request", token(t, "p1", models.ActorPassenger), map[string]interface{}{
		"pickup":        map[string]interface{}{"lat": 31.5204, "lng": 74.3587, "address": "Liberty Market"},
		"dropoff":       map[string]interface{}{"lat": 31.4504, "lng": 73.1350, "address": "Clock Tower"},
		"vehicleClass":  "car",
		"paymentMethod": "cash",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	data := env["data"].(map[string]interface{})
	rideBody := data["ride"].(map[string]interface{})
	assert.Equal(t, "pending", rideBody["status"])
	return rideBody["id"].(string)
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	rideID := requestRide(t, f)
	driver := token(t, "d1", models.ActorDriver)

	w := f.do(t, "PUT", "/api/v1/rides/"+rideID+"/accept", driver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("lat", "31.5204"))
	require.NoError(t, mw.WriteField("lng", "74.3587"))
	part, err := mw.CreateFormFile("driverPhoto", "selfie.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("PUT", "/api/v1/rides/"+rideID+"/start", &buf)
	req.Header.Set("Authorization", "Bearer "+driver)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	w = f.do(t, "PUT", "/api/v1/rides/"+rideID+"/location", driver, map[string]interface{}{
		"lat": 31.50, "lng": 74.30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, "PUT", "/api/v1/rides/"+rideID+"/complete", driver, map[string]interface{}{
		"lat": 31.4504, "lng": 73.1350,
		"actualDistanceM": 1300, "actualDurationS": 1500,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	rideBody := env["data"].(map[string]interface{})
	assert.Equal(t, "completed", rideBody["status"])
	fareBody := rideBody["fare"].(map[string]interface{})
	assert.Equal(t, 264.0, fareBody["final"])

	// the trip is over; cancelling now conflicts and reports the status
	w = f.do(t, "POST", "/api/v1/rides/"+rideID+"/cancel", token(t, "p1", models.ActorPassenger), map[string]interface{}{"reason": "oops"})
	require.Equal(t, http.StatusConflict, w.Code)
	env = decodeEnvelope(t, w)
	errBody := env["errors"].(map[string]interface{})
	assert.Equal(t, "completed", errBody["current_status"])
}

func TestCancelReturnsFee(t *testing.T) {
	f := newAPIFixture(t)
	rideID := requestRide(t, f)

	w := f.do(t, "POST", "/api/v1/rides/"+rideID+"/cancel", token(t, "p1", models.ActorPassenger), map[string]interface{}{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	data := env["data"].(map[string]interface{})
	_, hasFee := data["cancellationFee"]
	assert.True(t, hasFee)
}

func TestGetRideForbiddenForStranger(t *testing.T) {
	f := newAPIFixture(t)
	rideID := requestRide(t, f)

	w := f.do(t, "GET", "/api/v1/rides/"+rideID, token(t, "p2", models.ActorPassenger), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	errBody := env["errors"].(map[string]interface{})
	assert.Equal(t, dispatch.CodeNotParticipant, errBody["code"])
}

func TestUnknownRideIs404(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, "GET", "/api/v1/rides/does-not-exist", token(t, "p1", models.ActorPassenger), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSOSEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rideID := requestRide(t, f)
	w := f.do(t, "PUT", "/api/v1/rides/"+rideID+"/accept", token(t, "d1", models.ActorDriver), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, "POST", "/api/v1/rides/sos/alert", token(t, "p1", models.ActorPassenger), map[string]interface{}{
		"severity": "critical",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	data := env["data"].(map[string]interface{})
	alert := data["alert"].(map[string]interface{})
	assert.Equal(t, "critical", alert["severity"])
	assert.Equal(t, 1.0, data["delivered"])

	// outsiders naming someone else's ride are rejected
	w = f.do(t, "POST", "/api/v1/rides/sos/alert", token(t, "p2", models.ActorPassenger), map[string]interface{}{
		"rideId": rideID,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	bearer := token(t, "d1", models.ActorDriver)

	w := f.do(t, "PUT", "/api/v1/rides/driver/availability", bearer, map[string]interface{}{
		"status": "offline",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d, ok := f.index.Get("d1")
	require.True(t, ok)
	assert.Equal(t, models.DriverOffline, d.State)

	w = f.do(t, "PUT", "/api/v1/rides/driver/availability", bearer, map[string]interface{}{
		"status": "busy",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthzBypassesAuth(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponseWriterSupportsHijack(t *testing.T) {
	// the upgrade on /ws needs the instrumented writer to stay hijackable
	var w http.ResponseWriter = &responseWriter{}
	_, ok := w.(http.Hijacker)
	assert.True(t, ok)
}

func TestWebsocketDeliversEvents(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.server)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token(t, "p1", models.ActorPassenger)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// subscription races the dial; give the attach a moment
	require.Eventually(t, func() bool {
		return f.broker.SubscriberCount("p1") > 0
	}, time.Second, 10*time.Millisecond)

	f.broker.Publish("p1", bus.EventAccepted, map[string]interface{}{"ride_id": "r1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, bus.EventAccepted, ev.Type)
	assert.Equal(t, "r1", ev.Payload["ride_id"])
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.server)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
