package ride

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore persists rides with the frequently-queried fields as columns
// and the nested documents (fare, tracking, safety, ratings) as jsonb.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

const rideColumns = `id, passenger_id, driver_id, vehicle_class, ride_type, status,
	pickup, destination, route, fare, payment, tracking, safety, ratings,
	created_at, scheduled_at, activated_at, accepted_at, started_at, completed_at,
	cancelled_at, cancelled_by, cancellation_reason`

func (p *PostgresStore) Create(r *models.Ride) error {
	docs, err := rideDocs(r)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		r.ID, r.PassengerID, r.DriverID, r.VehicleClass, r.RideType, r.Status,
		docs.pickup, docs.destination, docs.route, docs.fare, docs.payment, docs.tracking, docs.safety, docs.ratings,
		r.CreatedAt, r.ScheduledAt, r.ActivatedAt, r.AcceptedAt, r.StartedAt, r.CompletedAt,
		r.CancelledAt, nullActor(r.CancelledBy), nullString(r.CancelReason))
	return err
}

func (p *PostgresStore) Update(r *models.Ride) error {
	docs, err := rideDocs(r)
	if err != nil {
		return err
	}
	res, err := p.db.Exec(`UPDATE rides SET driver_id=$1, status=$2,
		route=$3, fare=$4, payment=$5, tracking=$6, safety=$7, ratings=$8,
		activated_at=$9, accepted_at=$10, started_at=$11, completed_at=$12,
		cancelled_at=$13, cancelled_by=$14, cancellation_reason=$15
		WHERE id=$16`,
		r.DriverID, r.Status,
		docs.route, docs.fare, docs.payment, docs.tracking, docs.safety, docs.ratings,
		r.ActivatedAt, r.AcceptedAt, r.StartedAt, r.CompletedAt,
		r.CancelledAt, nullActor(r.CancelledBy), nullString(r.CancelReason), r.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Get(id string) (*models.Ride, error) {
	row := p.db.QueryRow(`SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) ActiveByPassenger(passengerID string) (*models.Ride, error) {
	row := p.db.QueryRow(`SELECT `+rideColumns+` FROM rides
		WHERE passenger_id=$1 AND status IN ('accepted','in_progress')
		ORDER BY created_at DESC LIMIT 1`, passengerID)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (p *PostgresStore) ActiveByDriver(driverID string) (*models.Ride, error) {
	row := p.db.QueryRow(`SELECT `+rideColumns+` FROM rides
		WHERE driver_id=$1 AND status IN ('accepted','in_progress')
		ORDER BY created_at DESC LIMIT 1`, driverID)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (p *PostgresStore) ListByUser(userID string, limit int) ([]*models.Ride, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.Query(`SELECT `+rideColumns+` FROM rides
		WHERE passenger_id=$1 OR driver_id=$1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

func (p *PostgresStore) ScheduledDue(before time.Time) ([]*models.Ride, error) {
	rows, err := p.db.Query(`SELECT `+rideColumns+` FROM rides
		WHERE status='scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

func (p *PostgresStore) ScheduledByPassenger(passengerID string) ([]*models.Ride, error) {
	rows, err := p.db.Query(`SELECT `+rideColumns+` FROM rides
		WHERE status='scheduled' AND passenger_id=$1
		ORDER BY created_at DESC`, passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

type jsonDocs struct {
	pickup, destination, route, fare, payment, tracking, safety, ratings []byte
}

func rideDocs(r *models.Ride) (jsonDocs, error) {
	var d jsonDocs
	var err error
	for _, pair := range []struct {
		dst *[]byte
		src interface{}
	}{
		{&d.pickup, r.Pickup}, {&d.destination, r.Destination}, {&d.route, r.Route},
		{&d.fare, r.Fare}, {&d.payment, r.Payment}, {&d.tracking, r.Tracking},
		{&d.safety, r.Safety}, {&d.ratings, r.Ratings},
	} {
		*pair.dst, err = json.Marshal(pair.src)
		if err != nil {
			return d, err
		}
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID, cancelledBy, cancelReason sql.NullString
	var scheduledAt, activatedAt, acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime
	var pickup, destination, route, fareDoc, payment, tracking, safety, ratings []byte
	err := row.Scan(&r.ID, &r.PassengerID, &driverID, &r.VehicleClass, &r.RideType, &r.Status,
		&pickup, &destination, &route, &fareDoc, &payment, &tracking, &safety, &ratings,
		&r.CreatedAt, &scheduledAt, &activatedAt, &acceptedAt, &startedAt, &completedAt,
		&cancelledAt, &cancelledBy, &cancelReason)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		r.DriverID = &driverID.String
	}
	r.ScheduledAt = timePtr(scheduledAt)
	r.ActivatedAt = timePtr(activatedAt)
	r.AcceptedAt = timePtr(acceptedAt)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cancelledAt)
	if cancelledBy.Valid {
		r.CancelledBy = models.Actor(cancelledBy.String)
	}
	r.CancelReason = cancelReason.String
	for _, pair := range []struct {
		src []byte
		dst interface{}
	}{
		{pickup, &r.Pickup}, {destination, &r.Destination}, {route, &r.Route},
		{fareDoc, &r.Fare}, {payment, &r.Payment}, {tracking, &r.Tracking},
		{safety, &r.Safety}, {ratings, &r.Ratings},
	} {
		if len(pair.src) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.src, pair.dst); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func scanRides(rows *sql.Rows) ([]*models.Ride, error) {
	out := make([]*models.Ride, 0, 16)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullActor(a models.Actor) sql.NullString {
	return nullString(string(a))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
