package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a coordinate with an optional human-readable address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

func (l Location) Coord() Coord { return Coord{Lat: l.Lat, Lon: l.Lon} }

// TrackPoint is one sample of a ride's travelled path.
type TrackPoint struct {
	Lat float64   `json:"lat"`
	Lon float64   `json:"lon"`
	TS  time.Time `json:"ts"`
}

type VehicleClass string

const (
	VehicleCar  VehicleClass = "car"
	VehicleBike VehicleClass = "bike"
	VehicleAuto VehicleClass = "auto"
)

func (v VehicleClass) Valid() bool {
	switch v {
	case VehicleCar, VehicleBike, VehicleAuto:
		return true
	}
	return false
}

type RideType string

const (
	RideOneTime      RideType = "one_time"
	RideSubscription RideType = "subscription"
	RideScheduled    RideType = "scheduled"
)

type RideStatus string

const (
	StatusScheduled  RideStatus = "scheduled"
	StatusPending    RideStatus = "pending"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Terminal reports whether a status admits no further transitions.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether a ride in this status occupies its participants.
func (s RideStatus) Active() bool {
	return s == StatusAccepted || s == StatusInProgress
}

type PaymentMethod string

const (
	PayCash      PaymentMethod = "cash"
	PayEasypaisa PaymentMethod = "easypaisa"
	PayJazzcash  PaymentMethod = "jazzcash"
	PayCard      PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCash, PayEasypaisa, PayJazzcash, PayCard:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Actor string

const (
	ActorPassenger Actor = "passenger"
	ActorDriver    Actor = "driver"
	ActorAdmin     Actor = "admin"
)

type MatchPriority string

const (
	PrioritySpeed    MatchPriority = "speed"
	PriorityRating   MatchPriority = "rating"
	PriorityDistance MatchPriority = "distance"
)

// FareBreakdown is expressed in whole PKR.
type FareBreakdown struct {
	Base     int64   `json:"base"`
	Distance int64   `json:"distance"`
	Time     int64   `json:"time"`
	Subtotal int64   `json:"subtotal"`
	Surge    float64 `json:"surge"`
	Total    int64   `json:"total"`
}

type Fare struct {
	Currency        string        `json:"currency"`
	Estimated       FareBreakdown `json:"estimated"`
	Final           *int64        `json:"final,omitempty"`
	DriverEarnings  *int64        `json:"driver_earnings,omitempty"`
	CancellationFee int64         `json:"cancellation_fee,omitempty"`
}

type Route struct {
	DistanceM int64   `json:"distance_m"`
	DurationS int64   `json:"duration_s"`
	Polyline  *string `json:"polyline"`
}

type Payment struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

type Tracking struct {
	StartLoc   *TrackPoint  `json:"start_loc,omitempty"`
	EndLoc     *TrackPoint  `json:"end_loc,omitempty"`
	CurrentLoc *TrackPoint  `json:"current_loc,omitempty"`
	Path       []TrackPoint `json:"path,omitempty"`
}

type SOSEvent struct {
	AlertID   string    `json:"alert_id"`
	Severity  string    `json:"severity"`
	AlertType string    `json:"alert_type"`
	Location  Coord     `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

type Safety struct {
	DriverPhotoURL string     `json:"driver_photo_url,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	SOSEvents      []SOSEvent `json:"sos_events,omitempty"`
}

// Rating values are 1..5; nil means that side has not rated yet.
type Ratings struct {
	PassengerOfDriver *int   `json:"passenger_of_driver,omitempty"`
	DriverOfPassenger *int   `json:"driver_of_passenger,omitempty"`
	PassengerReview   string `json:"passenger_review,omitempty"`
	DriverReview      string `json:"driver_review,omitempty"`
}

// Ride is the central entity. All mutation goes through the state machine;
// once a terminal status is reached only the rating fields may change.
type Ride struct {
	ID           string       `json:"id"`
	PassengerID  string       `json:"passenger_id"`
	DriverID     *string      `json:"driver_id,omitempty"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	RideType     RideType     `json:"ride_type"`
	Status       RideStatus   `json:"status"`
	Pickup       Location     `json:"pickup"`
	Destination  Location     `json:"destination"`
	Route        Route        `json:"route"`
	Fare         Fare         `json:"fare"`
	Payment      Payment      `json:"payment"`
	Tracking     Tracking     `json:"tracking"`
	Safety       Safety       `json:"safety"`
	Ratings      Ratings      `json:"ratings"`

	CreatedAt    time.Time  `json:"created_at"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  Actor      `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancellation_reason,omitempty"`
}

type AvailabilityState string

const (
	DriverOffline   AvailabilityState = "offline"
	DriverAvailable AvailabilityState = "available"
	DriverBusy      AvailabilityState = "busy"
)

type Vehicle struct {
	Class VehicleClass `json:"class"`
	Model string       `json:"model"`
	Plate string       `json:"plate"`
	Color string       `json:"color"`
}

type Driver struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	Approved    bool              `json:"approved"`
	Rating      float64           `json:"rating"` // 0..5
	RatingCount int               `json:"rating_count"`
	TotalRides  int               `json:"total_rides"`
	Vehicle     Vehicle           `json:"vehicle"`
	State       AvailabilityState `json:"state"`
	Loc         Coord             `json:"loc"`
	LocUpdated  time.Time         `json:"loc_updated"`
}

type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

type Subscription struct {
	Active         bool       `json:"active"`
	PlanID         string     `json:"plan_id,omitempty"`
	RidesRemaining int        `json:"rides_remaining"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type Passenger struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Phone             string             `json:"phone"`
	Rating            float64            `json:"rating"`
	RatingCount       int                `json:"rating_count"`
	CreatedAt         time.Time          `json:"created_at"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts,omitempty"`
	Subscription      Subscription       `json:"subscription"`
}

// DriverStats feeds matcher scoring; counters cover the last 30 days.
type DriverStats struct {
	OffersReceived   int
	OffersAccepted   int
	AcceptedRides    int
	CompletedRides   int
	AvgAcceptLatency time.Duration
	HasHistory       bool
	HasLatency       bool
}
