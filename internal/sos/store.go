package sos

import (
	"database/sql"
	"encoding/json"
	"sync"
)

// MemoryStore keeps alerts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []*Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryStore) ListByRide(rideID string) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Alert
	for _, a := range s.alerts {
		if a.RideID == rideID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// PostgresStore persists alerts to the sos_alerts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(a *Alert) error {
	contacts, err := json.Marshal(a.Contacts)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sos_alerts (id, ride_id, user_id, severity, alert_type, lat, lon, contacts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.RideID, a.UserID, a.Severity, a.AlertType, a.Location.Lat, a.Location.Lon, contacts, a.CreatedAt)
	return err
}

func (s *PostgresStore) ListByRide(rideID string) ([]*Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, ride_id, user_id, severity, alert_type, lat, lon, contacts, created_at
		FROM sos_alerts WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Alert
	for rows.Next() {
		var (
			a        Alert
			contacts []byte
		)
		if err := rows.Scan(&a.ID, &a.RideID, &a.UserID, &a.Severity, &a.AlertType,
			&a.Location.Lat, &a.Location.Lon, &contacts, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(contacts) > 0 {
			if err := json.Unmarshal(contacts, &a.Contacts); err != nil {
				return nil, err
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
