package profiles

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresPassengers struct {
	db *sql.DB
}

func NewPostgresPassengers(db *sql.DB) *PostgresPassengers {
	return &PostgresPassengers{db: db}
}

func (s *PostgresPassengers) Get(id string) (*models.Passenger, error) {
	row := s.db.QueryRow(`SELECT id, name, phone, rating, rating_count, created_at,
		emergency_contacts, subscription FROM passengers WHERE id=$1`, id)
	var p models.Passenger
	var contacts, sub []byte
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Rating, &p.RatingCount, &p.CreatedAt, &contacts, &sub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPassengerNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &p.EmergencyContacts); err != nil {
			return nil, err
		}
	}
	if len(sub) > 0 {
		if err := json.Unmarshal(sub, &p.Subscription); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *PostgresPassengers) Put(p *models.Passenger) error {
	contacts, err := json.Marshal(p.EmergencyContacts)
	if err != nil {
		return err
	}
	sub, err := json.Marshal(p.Subscription)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO passengers(id, name, phone, rating, rating_count, created_at, emergency_contacts, subscription)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET name=$2, phone=$3, rating=$4, rating_count=$5, emergency_contacts=$7, subscription=$8`,
		p.ID, p.Name, p.Phone, p.Rating, p.RatingCount, p.CreatedAt, contacts, sub)
	return err
}

func (s *PostgresPassengers) ApplyRating(id string, score int) error {
	res, err := s.db.Exec(`UPDATE passengers
		SET rating = (rating*rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1
		WHERE id=$1`, id, score)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPassengerNotFound
	}
	return nil
}

func (s *PostgresPassengers) DecrementSubscriptionRides(id string) error {
	_, err := s.db.Exec(`UPDATE passengers
		SET subscription = jsonb_set(subscription, '{rides_remaining}',
			to_jsonb(GREATEST((subscription->>'rides_remaining')::int - 1, 0)))
		WHERE id=$1`, id)
	return err
}

type PostgresDrivers struct {
	db *sql.DB
}

func NewPostgresDrivers(db *sql.DB) *PostgresDrivers {
	return &PostgresDrivers{db: db}
}

func (s *PostgresDrivers) Get(id string) (*models.Driver, error) {
	row := s.db.QueryRow(`SELECT id, user_id, name, phone, approved, rating, rating_count,
		total_rides, vehicle FROM drivers WHERE id=$1`, id)
	var d models.Driver
	var vehicle []byte
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Phone, &d.Approved, &d.Rating, &d.RatingCount, &d.TotalRides, &vehicle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(vehicle) > 0 {
		if err := json.Unmarshal(vehicle, &d.Vehicle); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (s *PostgresDrivers) Put(d *models.Driver) error {
	vehicle, err := json.Marshal(d.Vehicle)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO drivers(id, user_id, name, phone, approved, rating, rating_count, total_rides, vehicle)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET name=$3, phone=$4, approved=$5, rating=$6, rating_count=$7, total_rides=$8, vehicle=$9`,
		d.ID, d.UserID, d.Name, d.Phone, d.Approved, d.Rating, d.RatingCount, d.TotalRides, vehicle)
	return err
}

func (s *PostgresDrivers) ApplyRating(id string, score int) error {
	res, err := s.db.Exec(`UPDATE drivers
		SET rating = (rating*rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1
		WHERE id=$1`, id, score)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDriverNotFound
	}
	return nil
}

func (s *PostgresDrivers) IncrementCompletedRides(id string) error {
	_, err := s.db.Exec(`UPDATE drivers SET total_rides = total_rides + 1 WHERE id=$1`, id)
	return err
}

// PostgresStats records dispatch events as rows and aggregates over a 30-day
// window at read time.
type PostgresStats struct {
	db *sql.DB
}

func NewPostgresStats(db *sql.DB) *PostgresStats {
	return &PostgresStats{db: db}
}

func (s *PostgresStats) record(driverID, kind string, latencyMs int64) {
	_, _ = s.db.Exec(`INSERT INTO driver_dispatch_events(driver_id, kind, latency_ms, created_at)
		VALUES($1,$2,$3,NOW())`, driverID, kind, latencyMs)
}

func (s *PostgresStats) RecordOffer(driverID string)  { s.record(driverID, "offer", 0) }
func (s *PostgresStats) RecordStart(driverID string)  { s.record(driverID, "start", 0) }
func (s *PostgresStats) RecordCompletion(driverID string) {
	s.record(driverID, "complete", 0)
}

func (s *PostgresStats) RecordAccept(driverID string, latency time.Duration) {
	s.record(driverID, "accept", latency.Milliseconds())
}

func (s *PostgresStats) Stats(driverID string) models.DriverStats {
	row := s.db.QueryRow(`SELECT
		COUNT(*) FILTER (WHERE kind='offer'),
		COUNT(*) FILTER (WHERE kind='accept'),
		COUNT(*) FILTER (WHERE kind='complete'),
		COALESCE(AVG(latency_ms) FILTER (WHERE kind='accept' AND latency_ms > 0), 0)
		FROM driver_dispatch_events
		WHERE driver_id=$1 AND created_at > NOW() - INTERVAL '30 days'`, driverID)
	var offers, accepts, completes int
	var avgMs float64
	if err := row.Scan(&offers, &accepts, &completes, &avgMs); err != nil {
		return models.DriverStats{}
	}
	st := models.DriverStats{
		OffersReceived: offers,
		OffersAccepted: accepts,
		AcceptedRides:  accepts,
		CompletedRides: completes,
	}
	st.HasHistory = offers+accepts+completes > 0
	if avgMs > 0 {
		st.AvgAcceptLatency = time.Duration(avgMs) * time.Millisecond
		st.HasLatency = true
	}
	return st
}
