package ride

import (
	"errors"
	"fmt"

	"github.com/example/ride-dispatch/internal/models"
)

var ErrNotFound = errors.New("ride not found")

// Reason codes carried by StateError; user-visible 409 responses include
// both the code and the ride's current status.
const (
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonAlreadyAccepted   = "ALREADY_ACCEPTED"
	ReasonNotAssigned       = "NOT_ASSIGNED_DRIVER"
	ReasonPhotoRequired     = "PHOTO_REQUIRED"
	ReasonStaleTimestamp    = "STALE_TIMESTAMP"
	ReasonNotInProgress     = "NOT_IN_PROGRESS"
	ReasonNotCompleted      = "NOT_COMPLETED"
	ReasonAlreadyRated      = "ALREADY_RATED"
	ReasonTooEarly          = "ACTIVATION_TOO_EARLY"
	ReasonOfferExpired      = "OFFER_EXPIRED"
	ReasonActiveRideExists  = "ACTIVE_RIDE_EXISTS"
	ReasonCancelDenied      = "CANCEL_DENIED"
)

// StateError is returned for any transition the status graph forbids.
type StateError struct {
	Reason  string
	Current models.RideStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: ride is %s", e.Reason, e.Current)
}

func stateErr(reason string, current models.RideStatus) error {
	return &StateError{Reason: reason, Current: current}
}

// AsStateError unwraps err into a StateError if it is one.
func AsStateError(err error) (*StateError, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
