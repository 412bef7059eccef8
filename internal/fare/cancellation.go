package fare

import (
	"math"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Fee categories by elapsed time since ride creation.
const (
	CategoryImmediate = "immediate"
	CategoryEarly     = "early"
	CategoryStandard  = "standard"
	CategoryLate      = "late"
)

// Denial reason codes surfaced in StateConflict responses.
const (
	DenyTerminal      = "RIDE_ALREADY_FINISHED"
	DenyInProgress    = "RIDE_IN_PROGRESS"
	DenyWindowExpired = "CANCEL_WINDOW_EXPIRED"
	DenyNotAssigned   = "NO_ASSIGNED_DRIVER"
)

// passenger cancellation window for pending/accepted rides
const passengerCancelWindow = 10 * time.Minute

var (
	passengerFees = map[string]int64{CategoryImmediate: 0, CategoryEarly: 50, CategoryStandard: 100, CategoryLate: 150}
	driverFees    = map[string]int64{CategoryImmediate: 0, CategoryEarly: 25, CategoryStandard: 50, CategoryLate: 100}
)

// CancelContext carries the canceller's profile facts the policy depends on.
type CancelContext struct {
	Canceller          models.Actor
	Now                time.Time
	SubscriptionActive bool
	AccountCreatedAt   time.Time
	DriverRating       float64
}

type CancellationDecision struct {
	Allowed  bool
	Reason   string // denial reason code when not allowed
	Category string
	Fee      int64
}

// DecideCancellation is pure: the same ride, canceller and clock always
// produce the same decision.
func DecideCancellation(ride *models.Ride, cc CancelContext) CancellationDecision {
	if ride.Status.Terminal() {
		return CancellationDecision{Reason: DenyTerminal}
	}
	if ride.Status == models.StatusInProgress {
		return CancellationDecision{Reason: DenyInProgress}
	}

	elapsed := cc.Now.Sub(ride.CreatedAt)

	switch cc.Canceller {
	case models.ActorAdmin:
		// admin intervention carries no fee
		return CancellationDecision{Allowed: true, Category: category(elapsed)}
	case models.ActorPassenger:
		if ride.Status == models.StatusScheduled {
			// scheduled rides were never dispatched, no fee
			return CancellationDecision{Allowed: true, Category: category(elapsed)}
		}
		if elapsed > passengerCancelWindow {
			return CancellationDecision{Reason: DenyWindowExpired}
		}
	case models.ActorDriver:
		if ride.Status != models.StatusAccepted {
			return CancellationDecision{Reason: DenyNotAssigned}
		}
	}

	cat := category(elapsed)
	var base int64
	switch cc.Canceller {
	case models.ActorPassenger:
		base = passengerFees[cat]
	case models.ActorDriver:
		base = driverFees[cat]
	}

	fee := float64(base) * surgeAt(cc.Now)
	if cc.SubscriptionActive {
		fee *= 0.5
	}
	if !cc.AccountCreatedAt.IsZero() && cc.Now.Sub(cc.AccountCreatedAt) <= 7*24*time.Hour {
		fee -= 25
	}
	if cc.Canceller == models.ActorDriver && cc.DriverRating >= 4.5 {
		fee -= 20
	}
	if elapsed <= 30*time.Second {
		fee -= 25
	}
	if fee < 0 {
		fee = 0
	}
	return CancellationDecision{Allowed: true, Category: cat, Fee: roundToTen(fee)}
}

func category(elapsed time.Duration) string {
	switch {
	case elapsed <= time.Minute:
		return CategoryImmediate
	case elapsed <= 2*time.Minute:
		return CategoryEarly
	case elapsed <= 5*time.Minute:
		return CategoryStandard
	default:
		return CategoryLate
	}
}

// surgeAt returns the time-of-week multiplier: weekend (Fri 20:00 through
// Sun 20:00) 2.0, weekday peak (Mon-Fri 07-09 and 17-19) 1.5, otherwise 1.
func surgeAt(t time.Time) float64 {
	day := t.Weekday()
	hour := t.Hour()
	switch {
	case day == time.Friday && hour >= 20,
		day == time.Saturday,
		day == time.Sunday && hour < 20:
		return 2.0
	}
	if day >= time.Monday && day <= time.Friday {
		if (hour >= 7 && hour < 9) || (hour >= 17 && hour < 19) {
			return 1.5
		}
	}
	return 1.0
}

func roundToTen(x float64) int64 {
	return int64(math.Floor(x/10+0.5)) * 10
}
