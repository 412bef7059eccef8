package dispatch

import (
	"errors"
	"fmt"

	"github.com/example/ride-dispatch/internal/models"
)

// Kind classifies an orchestrator error for the transport layer.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindExternal
	KindInternal
)

// Conflict reason codes the orchestrator adds on top of the state machine's.
const (
	CodeDriverNotAvailable = "DRIVER_NOT_AVAILABLE"
	CodeDriverTooFar       = "DRIVER_TOO_FAR"
	CodeOfferExpired       = "OFFER_EXPIRED"
	CodeActiveRideExists   = "ACTIVE_RIDE_EXISTS"
	CodeNotParticipant     = "NOT_A_PARTICIPANT"
	CodeNoLocation         = "NO_LOCATION"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Current carries the ride status for state conflicts.
	Current models.RideStatus
	Cause   error
}

func (e *Error) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s: %s (ride is %s)", e.Code, e.Message, e.Current)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func invalid(code, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func forbidden(code, msg string) error {
	return &Error{Kind: KindForbidden, Code: code, Message: msg}
}

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func conflict(code string, current models.RideStatus, msg string) error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Current: current}
}

func external(msg string, cause error) error {
	return &Error{Kind: KindExternal, Message: msg, Cause: cause}
}

// AsError unwraps err into a dispatch Error if it is one.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
