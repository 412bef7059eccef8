// Package httpapi exposes the dispatch core over HTTP and websockets.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/sos"
)

type Server struct {
	logger         *slog.Logger
	orch           *dispatch.Orchestrator
	sos            *sos.Pipeline
	wsreg          *bus.WSRegistry
	jwtSecret      []byte
	allowedOrigins []string
	mux            *mux.Router
}

func NewServer(logger *slog.Logger, orch *dispatch.Orchestrator, pipeline *sos.Pipeline, wsreg *bus.WSRegistry, jwtSecret []byte, allowedOrigins []string) *Server {
	s := &Server{
		logger:         logger,
		orch:           orch,
		sos:            pipeline,
		wsreg:          wsreg,
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
		mux:            mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws", s.handleWS)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/rides/estimate", s.handleEstimate).Methods("GET")
	api.HandleFunc("/rides/request", s.requireRole(s.handleRequestRide, models.ActorPassenger)).Methods("POST")
	api.HandleFunc("/rides/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/rides/active", s.handleActive).Methods("GET")
	api.HandleFunc("/rides/scheduled", s.requireRole(s.handleScheduled, models.ActorPassenger)).Methods("GET")
	api.HandleFunc("/rides/sos/alert", s.handleSOS).Methods("POST")
	api.HandleFunc("/rides/driver/availability", s.requireRole(s.handleAvailability, models.ActorDriver)).Methods("PUT")

	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{id}/accept", s.requireRole(s.handleAccept, models.ActorDriver)).Methods("PUT")
	api.HandleFunc("/rides/{id}/start", s.requireRole(s.handleStart, models.ActorDriver)).Methods("PUT")
	api.HandleFunc("/rides/{id}/location", s.requireRole(s.handleLocation, models.ActorDriver)).Methods("PUT")
	api.HandleFunc("/rides/{id}/complete", s.requireRole(s.handleComplete, models.ActorDriver)).Methods("PUT")
	api.HandleFunc("/rides/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/rides/{id}/rate", s.handleRate).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
