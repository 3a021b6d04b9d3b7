package flightlog

import (
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/drone"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
)

const insertWarnInterval = 5 * time.Second

// Recorder writes drone records into one flight session. It implements
// drone.Sink, so attach it with Drone.SetSink. Insert failures are logged
// and dropped: a full disk must not stall the telemetry path.
type Recorder struct {
	db      *DB
	clock   timeutil.Clock
	session string
}

// NewRecorder begins a new session and returns a recorder writing into it.
func NewRecorder(db *DB, droneID uint8, notes string) (*Recorder, error) {
	return NewRecorderWithClock(db, droneID, notes, timeutil.RealClock{})
}

// NewRecorderWithClock is NewRecorder with an explicit time source. Tests
// use it to drive a recorder on a mock clock; a nil clock means real time.
func NewRecorderWithClock(db *DB, droneID uint8, notes string, clock timeutil.Clock) (*Recorder, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	session, err := db.BeginSession(droneID, clock.Now(), notes)
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, clock: clock, session: session}, nil
}

// Session returns the identifier of the session being recorded.
func (r *Recorder) Session() string {
	return r.session
}

// RecordTelemetry implements drone.Sink.
func (r *Recorder) RecordTelemetry(rec drone.TelemetryRecord) {
	if err := r.db.RecordTelemetry(r.session, r.clock.Now(), rec); err != nil {
		monitoring.RateLimitedLogf("flightlog-telemetry", insertWarnInterval,
			"[flightlog] telemetry insert failed: %v", err)
	}
}

// RecordEvent implements drone.Sink.
func (r *Recorder) RecordEvent(ev drone.Event) {
	if err := r.db.RecordEvent(r.session, r.clock.Now(), ev); err != nil {
		monitoring.Logf("[flightlog] event insert failed: %v", err)
	}
}

// RecordLinkStats implements drone.Sink.
func (r *Recorder) RecordLinkStats(s link.StatsSnapshot) {
	if err := r.db.RecordLinkStats(r.session, r.clock.Now(), s); err != nil {
		monitoring.RateLimitedLogf("flightlog-stats", insertWarnInterval,
			"[flightlog] link stats insert failed: %v", err)
	}
}

// Close stamps the session's end time. The database stays open; closing it
// is the caller's job.
func (r *Recorder) Close() error {
	return r.db.EndSession(r.session, r.clock.Now())
}
