// Package swarm tracks which peer drones are currently visible on the radio
// network. Presence is driven entirely by received traffic: telemetry
// creates and updates entries, status refreshes them, and a periodic sweep
// expires peers that have gone quiet.
package swarm

import (
	"sort"
	"sync"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

// Presence timing. SweepPeriod is how often the owner should call Sweep;
// expiry below MinExpiry clamps because one missed broadcast would
// otherwise flap the whole table.
const (
	DefaultExpiry = 5 * time.Second
	MinExpiry     = 1 * time.Second
	SweepPeriod   = 2 * time.Second

	pollInterval  = 500 * time.Millisecond
	progressEvery = 10 * time.Second
)

// DiscoverySource records which packet kind last touched a peer entry.
type DiscoverySource uint8

const (
	ViaTelemetry DiscoverySource = iota + 1
	ViaStatus
)

func (s DiscoverySource) String() string {
	switch s {
	case ViaTelemetry:
		return "telemetry"
	case ViaStatus:
		return "status"
	default:
		return "unknown"
	}
}

// PeerInfo is one visible peer. Position and velocity are meters and meters
// per second in the shared coordinate frame, as last broadcast by the peer.
type PeerInfo struct {
	ID         uint8
	X, Y, Z    float64
	VX, VY, VZ float64
	LastSeen   time.Time
	Via        DiscoverySource
}

// Table is the presence table for one drone. All methods are safe for
// concurrent use; readers only ever see copies.
type Table struct {
	mu     sync.Mutex
	selfID uint8
	expiry time.Duration
	clock  timeutil.Clock
	peers  map[uint8]PeerInfo
}

// NewTable creates a presence table for the drone with the given id. An
// expiry of zero selects DefaultExpiry; a nil clock selects the real one.
func NewTable(selfID uint8, expiry time.Duration, clock timeutil.Clock) *Table {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if expiry < MinExpiry {
		monitoring.Logf("[swarm] expiry %v below minimum, clamping to %v", expiry, MinExpiry)
		expiry = MinExpiry
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Table{
		selfID: selfID,
		expiry: expiry,
		clock:  clock,
		peers:  make(map[uint8]PeerInfo),
	}
}

// ObserveTelemetry creates or overwrites the entry for the sender and
// reports whether the peer is newly discovered. The local drone's own
// broadcasts are ignored.
func (t *Table) ObserveTelemetry(tel wire.Telemetry) bool {
	if tel.DroneID == t.selfID {
		return false
	}
	now := t.clock.Now()

	t.mu.Lock()
	_, known := t.peers[tel.DroneID]
	t.peers[tel.DroneID] = PeerInfo{
		ID:       tel.DroneID,
		X:        float64(tel.X),
		Y:        float64(tel.Y),
		Z:        float64(tel.Z),
		VX:       float64(tel.VX),
		VY:       float64(tel.VY),
		VZ:       float64(tel.VZ),
		LastSeen: now,
		Via:      ViaTelemetry,
	}
	t.mu.Unlock()

	if !known {
		monitoring.Logf("[swarm] discovered drone %d at (%.2f, %.2f, %.2f)",
			tel.DroneID, tel.X, tel.Y, tel.Z)
	}
	return !known
}

// ObserveStatus refreshes LastSeen for a peer already known from telemetry.
// Status alone never creates an entry: without a position the peer would be
// invisible to the control law anyway.
func (t *Table) ObserveStatus(s wire.Status) {
	if s.DroneID == t.selfID {
		return
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[s.DroneID]
	if !ok {
		return
	}
	p.LastSeen = now
	p.Via = ViaStatus
	t.peers[s.DroneID] = p
}

// Sweep removes peers not heard from within the expiry window and returns
// the IDs that were dropped.
func (t *Table) Sweep() []uint8 {
	now := t.clock.Now()

	t.mu.Lock()
	var lost []PeerInfo
	for id, p := range t.peers {
		if now.Sub(p.LastSeen) > t.expiry {
			lost = append(lost, p)
			delete(t.peers, id)
		}
	}
	t.mu.Unlock()

	ids := make([]uint8, 0, len(lost))
	for _, p := range lost {
		monitoring.Logf("[swarm] lost drone %d (last seen %.1fs ago)",
			p.ID, now.Sub(p.LastSeen).Seconds())
		ids = append(ids, p.ID)
	}
	return ids
}

// Count returns the number of visible peers.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// Get returns the entry for one peer.
func (t *Table) Get(id uint8) (PeerInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	return p, ok
}

// Snapshot returns a copy of every visible peer, ordered by id.
func (t *Table) Snapshot() []PeerInfo {
	t.mu.Lock()
	peers := make([]PeerInfo, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// WaitForPeers blocks until at least n peers are visible or the timeout
// elapses. n <= 0 is trivially satisfied.
func (t *Table) WaitForPeers(n int, timeout time.Duration) bool {
	if n <= 0 {
		return true
	}

	start := t.clock.Now()
	deadline := start.Add(timeout)
	lastProgress := start

	monitoring.Logf("[swarm] waiting for %d peers (timeout %v)", n, timeout)
	for {
		count := t.Count()
		if count >= n {
			monitoring.Logf("[swarm] found %d peers after %.1fs", count, t.clock.Since(start).Seconds())
			return true
		}

		now := t.clock.Now()
		if !now.Before(deadline) {
			monitoring.Logf("[swarm] timed out waiting for %d peers, have %d", n, count)
			return false
		}
		if now.Sub(lastProgress) >= progressEvery {
			monitoring.Logf("[swarm] still waiting for %d peers, have %d (%.0fs elapsed)",
				n, count, now.Sub(start).Seconds())
			lastProgress = now
		}

		t.clock.Sleep(pollInterval)
	}
}
