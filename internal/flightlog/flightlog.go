// Package flightlog persists flight sessions to SQLite: telemetry samples
// for every drone heard on the link, discovery and status events, and
// periodic link statistics. The schema is owned by the migrations under
// db/migrations; open a database and run MigrateUp before recording.
package flightlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/drone"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the flight log database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Session is one recorded flight, from BeginSession to EndSession.
type Session struct {
	ID        string
	DroneID   uint8
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is still open
	Notes     string
}

func (s *Session) String() string {
	return fmt.Sprintf("Session %s: drone %d, started %s", s.ID, s.DroneID, s.StartedAt.Format(time.RFC3339))
}

// Sample is one telemetry row: where a drone was at time T.
type Sample struct {
	T          time.Time
	DroneID    uint8
	X, Y, Z    float64
	VX, VY, VZ float64
	Source     string
}

// EventRow is one recorded flight event.
type EventRow struct {
	T       time.Time
	DroneID uint8
	Kind    string
	Detail  string
}

// StatsRow is one link statistics snapshot.
type StatsRow struct {
	T           time.Time
	Iface       string
	SentPackets int64
	SentBytes   int64
	RecvPackets int64
	RecvBytes   int64
	Corrupted   int64
}

// Telemetry sample sources.
const (
	SourceSelf = "self"
	SourcePeer = "peer"
)

// BeginSession inserts a new open session and returns its identifier.
func (db *DB) BeginSession(droneID uint8, startedAt time.Time, notes string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO sessions (session_id, drone_id, started_at, notes) VALUES (?, ?, ?, ?)",
		id, droneID, startedAt.UnixMilli(), notes,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string, endedAt time.Time) error {
	res, err := db.Exec("UPDATE sessions SET ended_at = ? WHERE session_id = ?", endedAt.UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no session with id %s", id)
	}
	return nil
}

// RecordTelemetry inserts one position/velocity sample into the session.
func (db *DB) RecordTelemetry(session string, t time.Time, rec drone.TelemetryRecord) error {
	source := SourcePeer
	if rec.Self {
		source = SourceSelf
	}
	_, err := db.Exec(
		"INSERT INTO telemetry (session_id, t, drone_id, x, y, z, vx, vy, vz, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		session, t.UnixMilli(), rec.DroneID, rec.X, rec.Y, rec.Z, rec.VX, rec.VY, rec.VZ, source,
	)
	if err != nil {
		return err
	}
	return nil
}

// RecordEvent inserts one flight event into the session.
func (db *DB) RecordEvent(session string, t time.Time, ev drone.Event) error {
	_, err := db.Exec(
		"INSERT INTO events (session_id, t, drone_id, kind, detail) VALUES (?, ?, ?, ?, ?)",
		session, t.UnixMilli(), ev.DroneID, ev.Kind, ev.Detail,
	)
	if err != nil {
		return err
	}
	return nil
}

// RecordLinkStats inserts one link statistics snapshot into the session.
// Counters are cumulative since the link was opened, not deltas.
func (db *DB) RecordLinkStats(session string, t time.Time, s link.StatsSnapshot) error {
	_, err := db.Exec(
		"INSERT INTO link_stats (session_id, t, iface, sent_packets, sent_bytes, recv_packets, recv_bytes, corrupted) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		session, t.UnixMilli(), s.Name, s.PacketsSent, s.BytesSent, s.PacketsReceived, s.BytesReceived, s.Corrupted,
	)
	if err != nil {
		return err
	}
	return nil
}

// Sessions returns all recorded sessions, most recent first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query("SELECT session_id, drone_id, started_at, ended_at, notes FROM sessions ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// GetSession returns the session with the given identifier.
func (db *DB) GetSession(id string) (*Session, error) {
	rows, err := db.Query("SELECT session_id, drone_id, started_at, ended_at, notes FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no session with id %s", id)
	}
	s, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (*Session, error) {
	rows, err := db.Query("SELECT session_id, drone_id, started_at, ended_at, notes FROM sessions ORDER BY started_at DESC LIMIT 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no sessions recorded")
	}
	s, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSession(rows *sql.Rows) (Session, error) {
	var s Session
	var droneID int64
	var startedAt int64
	var endedAt sql.NullInt64
	if err := rows.Scan(&s.ID, &droneID, &startedAt, &endedAt, &s.Notes); err != nil {
		return Session{}, err
	}
	s.DroneID = uint8(droneID)
	s.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		s.EndedAt = time.UnixMilli(endedAt.Int64)
	}
	return s, nil
}

// Telemetry returns the session's samples in time order.
func (db *DB) Telemetry(session string) ([]Sample, error) {
	rows, err := db.Query(
		"SELECT t, drone_id, x, y, z, vx, vy, vz, source FROM telemetry WHERE session_id = ? ORDER BY t",
		session,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var t, droneID int64
		if err := rows.Scan(&t, &droneID, &s.X, &s.Y, &s.Z, &s.VX, &s.VY, &s.VZ, &s.Source); err != nil {
			return nil, err
		}
		s.T = time.UnixMilli(t)
		s.DroneID = uint8(droneID)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// Events returns the session's events in time order.
func (db *DB) Events(session string) ([]EventRow, error) {
	rows, err := db.Query(
		"SELECT t, drone_id, kind, detail FROM events WHERE session_id = ? ORDER BY t",
		session,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var t, droneID int64
		if err := rows.Scan(&t, &droneID, &e.Kind, &e.Detail); err != nil {
			return nil, err
		}
		e.T = time.UnixMilli(t)
		e.DroneID = uint8(droneID)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// LinkStats returns the session's link statistics snapshots in time order.
func (db *DB) LinkStats(session string) ([]StatsRow, error) {
	rows, err := db.Query(
		"SELECT t, iface, sent_packets, sent_bytes, recv_packets, recv_bytes, corrupted FROM link_stats WHERE session_id = ? ORDER BY t",
		session,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []StatsRow
	for rows.Next() {
		var r StatsRow
		var t int64
		if err := rows.Scan(&t, &r.Iface, &r.SentPackets, &r.SentBytes, &r.RecvPackets, &r.RecvBytes, &r.Corrupted); err != nil {
			return nil, err
		}
		r.T = time.UnixMilli(t)
		stats = append(stats, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
