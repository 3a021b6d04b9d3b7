package drone

import "github.com/Max-lab10/Dronecraft-archipelago/internal/link"

// Event kinds recorded to the sink.
const (
	EventPeerDiscovered = "peer_discovered"
	EventPeerLost       = "peer_lost"
	EventCriticalStatus = "critical_status"
	EventTakeoff        = "takeoff"
	EventLand           = "land"
)

// TelemetryRecord is one position/velocity sample, our own or a peer's.
type TelemetryRecord struct {
	DroneID    uint8
	Self       bool
	X, Y, Z    float64
	VX, VY, VZ float64
}

// Event marks a notable moment in a flight session.
type Event struct {
	DroneID uint8
	Kind    string
	Detail  string
}

// Sink receives records for persistence. Implementations must be safe for
// concurrent use: calls arrive from the link's reader goroutine, from the
// timer loops and from whichever goroutine runs a flight command.
type Sink interface {
	RecordTelemetry(rec TelemetryRecord)
	RecordEvent(ev Event)
	RecordLinkStats(s link.StatsSnapshot)
}
