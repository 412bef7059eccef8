package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/sos"
)

// envelope is the uniform response body for every JSON route.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	s.writeEnvelope(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeError maps domain errors onto status codes. State conflicts include
// the ride's current status so the client can resync.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if de, ok := dispatch.AsError(err); ok {
		status := http.StatusInternalServerError
		switch de.Kind {
		case dispatch.KindValidation:
			status = http.StatusBadRequest
		case dispatch.KindUnauthorized:
			status = http.StatusUnauthorized
		case dispatch.KindForbidden:
			status = http.StatusForbidden
		case dispatch.KindNotFound:
			status = http.StatusNotFound
		case dispatch.KindConflict:
			status = http.StatusConflict
		case dispatch.KindExternal, dispatch.KindInternal:
			status = http.StatusInternalServerError
		}
		env := envelope{Success: false, Message: de.Message}
		if de.Code != "" {
			errBody := map[string]interface{}{"code": de.Code}
			if de.Current != "" {
				errBody["current_status"] = de.Current
			}
			env.Errors = errBody
		}
		s.writeEnvelope(w, status, env)
		return
	}
	switch {
	case errors.Is(err, ride.ErrNotFound):
		s.writeEnvelope(w, http.StatusNotFound, envelope{Success: false, Message: "ride not found"})
	case errors.Is(err, sos.ErrNoActiveRide):
		s.writeEnvelope(w, http.StatusNotFound, envelope{Success: false, Message: "no active ride for user"})
	case errors.Is(err, sos.ErrNotParticipant):
		s.writeEnvelope(w, http.StatusForbidden, envelope{
			Success: false,
			Message: "not a participant of this ride",
			Errors:  map[string]interface{}{"code": dispatch.CodeNotParticipant},
		})
	case errors.Is(err, sos.ErrNoLocation):
		s.writeEnvelope(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "no location available",
			Errors:  map[string]interface{}{"code": dispatch.CodeNoLocation},
		})
	default:
		if se, ok := ride.AsStateError(err); ok {
			s.writeEnvelope(w, http.StatusConflict, envelope{
				Success: false,
				Message: "transition not allowed",
				Errors:  map[string]interface{}{"code": se.Reason, "current_status": se.Current},
			})
			return
		}
		s.logger.Error("unhandled error", "error", err)
		s.writeEnvelope(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
	}
}
