package capture

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/cantrack/internal/radar"
)

// Store mirrors capture sessions into SQLite so observations can be queried
// and summarized after a run.
type Store struct {
	*sql.DB
}

// NewStore opens (creating if missing) the capture database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			name              TEXT,
			radar_channel     TEXT,
			car_channel       TEXT,
			created_utc       TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS track_observations (
			session_id        TEXT,
			track_id          BIGINT,
			long_dist         DOUBLE,
			lat_dist          DOUBLE,
			rel_speed         DOUBLE,
			new_track         BOOLEAN,
			timestamp         TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_observations_session
			ON track_observations (session_id, timestamp);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("capture: create schema: %w", err)
	}

	return &Store{db}, nil
}

// RecordSession inserts the session row.
func (s *Store) RecordSession(m Meta) error {
	_, err := s.Exec(
		`INSERT INTO sessions (session_id, name, radar_channel, car_channel, created_utc)
		 VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, m.Name, m.RadarChannel, m.CarChannel, m.CreatedUTC,
	)
	if err != nil {
		return fmt.Errorf("capture: record session: %w", err)
	}
	return nil
}

// RecordTrack inserts one track observation for the session.
func (s *Store) RecordTrack(sessionID string, t radar.Track) error {
	_, err := s.Exec(
		`INSERT INTO track_observations (session_id, track_id, long_dist, lat_dist, rel_speed, new_track, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, t.ID, t.LongDist, t.LatDist, t.RelSpeed, t.NewTrack, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("capture: record track: %w", err)
	}
	return nil
}

// Observation is one recorded track row.
type Observation struct {
	TrackID   int       `json:"track_id"`
	LongDist  float64   `json:"long_dist"`
	LatDist   float64   `json:"lat_dist"`
	RelSpeed  float64   `json:"rel_speed"`
	NewTrack  bool      `json:"new_track"`
	Timestamp time.Time `json:"timestamp"`
}

// Observations returns all observations for a session in time order.
func (s *Store) Observations(sessionID string) ([]Observation, error) {
	rows, err := s.Query(
		`SELECT track_id, long_dist, lat_dist, rel_speed, new_track, timestamp
		 FROM track_observations WHERE session_id = ? ORDER BY timestamp`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("capture: query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.TrackID, &o.LongDist, &o.LatDist, &o.RelSpeed, &o.NewTrack, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("capture: scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Sessions lists all recorded sessions, newest first.
func (s *Store) Sessions() ([]Meta, error) {
	rows, err := s.Query(
		`SELECT session_id, name, radar_channel, car_channel, created_utc
		 FROM sessions ORDER BY created_utc DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("capture: query sessions: %w", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.SessionID, &m.Name, &m.RadarChannel, &m.CarChannel, &m.CreatedUTC); err != nil {
			return nil, fmt.Errorf("capture: scan session: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// allows summary math to ignore empty sets
func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
