// Package sos handles emergency alerts raised during a ride.
package sos

import (
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNoActiveRide   = errors.New("no active ride for user")
	ErrNoLocation     = errors.New("no location available for alert")
	ErrNotParticipant = errors.New("not a participant of this ride")
)

const (
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	TypeManual    = "manual"
	TypeAutomatic = "automatic"
)

// ContactStatus reports a single emergency-contact SMS attempt.
type ContactStatus struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Alert is the persisted SOS record.
type Alert struct {
	ID        string          `json:"id"`
	RideID    string          `json:"ride_id"`
	UserID    string          `json:"user_id"`
	Severity  string          `json:"severity"`
	AlertType string          `json:"alert_type"`
	Location  models.Coord    `json:"location"`
	Contacts  []ContactStatus `json:"contacts,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Store interface {
	Save(a *Alert) error
	ListByRide(rideID string) ([]*Alert, error)
}
