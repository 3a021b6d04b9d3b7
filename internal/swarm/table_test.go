package swarm

import (
	"testing"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
	"github.com/google/go-cmp/cmp"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestObserveTelemetryCreates tests that telemetry from an unknown id
// creates a full peer entry.
func TestObserveTelemetryCreates(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 0, clock)

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2, X: 1.5, Y: -2.0, Z: 1.0, VX: 0.25, VY: -0.5, VZ: 0.125})

	want := []PeerInfo{{
		ID: 2,
		X:  1.5, Y: -2.0, Z: 1.0,
		VX: 0.25, VY: -0.5, VZ: 0.125,
		LastSeen: testEpoch,
		Via:      ViaTelemetry,
	}}
	if diff := cmp.Diff(want, tbl.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

// TestObserveTelemetryIgnoresSelf tests that a drone's own broadcasts never
// show up as a peer.
func TestObserveTelemetryIgnoresSelf(t *testing.T) {
	tbl := NewTable(7, 0, timeutil.NewMockClock(testEpoch))

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 7, X: 1})

	if n := tbl.Count(); n != 0 {
		t.Errorf("Count() = %d after self telemetry, want 0", n)
	}
}

// TestObserveTelemetryOverwrites tests that later telemetry replaces
// position, velocity and timestamp wholesale.
func TestObserveTelemetryOverwrites(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 0, clock)

	if !tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2, X: 1, VX: 1}) {
		t.Error("first telemetry from a peer should report it as new")
	}
	clock.Advance(time.Second)
	if tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2, X: 5, VX: -1}) {
		t.Error("repeat telemetry should not report the peer as new")
	}

	p, ok := tbl.Get(2)
	if !ok {
		t.Fatal("peer 2 missing")
	}
	if p.X != 5 || p.VX != -1 {
		t.Errorf("peer = %+v, want overwritten position and velocity", p)
	}
	if !p.LastSeen.Equal(testEpoch.Add(time.Second)) {
		t.Errorf("LastSeen = %v, want %v", p.LastSeen, testEpoch.Add(time.Second))
	}
	if n := tbl.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

// TestObserveStatusRefreshesOnly tests that status packets refresh known
// peers but never create entries.
func TestObserveStatusRefreshesOnly(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 0, clock)

	tbl.ObserveStatus(wire.Status{DroneID: 3, StatusCode: 1})
	if n := tbl.Count(); n != 0 {
		t.Fatalf("Count() = %d after status from unknown peer, want 0", n)
	}

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 3, X: 2.5})
	clock.Advance(2 * time.Second)
	tbl.ObserveStatus(wire.Status{DroneID: 3, StatusCode: 1})

	p, _ := tbl.Get(3)
	if !p.LastSeen.Equal(testEpoch.Add(2 * time.Second)) {
		t.Errorf("LastSeen = %v, want refresh at %v", p.LastSeen, testEpoch.Add(2*time.Second))
	}
	if p.X != 2.5 {
		t.Errorf("X = %v, status must not touch position", p.X)
	}
	if p.Via != ViaStatus {
		t.Errorf("Via = %v, want ViaStatus", p.Via)
	}
}

// TestSweepExpiry tests the expiry boundary: a peer last seen 2.9s ago
// survives a 3s expiry, one seen 3.1s ago does not.
func TestSweepExpiry(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 3*time.Second, clock)

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2})

	clock.Advance(2900 * time.Millisecond)
	if removed := tbl.Sweep(); len(removed) != 0 {
		t.Fatalf("Sweep() at 2.9s removed %v, want none", removed)
	}
	if n := tbl.Count(); n != 1 {
		t.Fatalf("Count() = %d at 2.9s, want 1", n)
	}

	clock.Advance(200 * time.Millisecond)
	if removed := tbl.Sweep(); len(removed) != 1 || removed[0] != 2 {
		t.Fatalf("Sweep() at 3.1s removed %v, want [2]", removed)
	}
	if n := tbl.Count(); n != 0 {
		t.Errorf("Count() = %d after expiry, want 0", n)
	}
}

// TestStatusKeepsPeerAlive tests that status refreshes push expiry out.
func TestStatusKeepsPeerAlive(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 3*time.Second, clock)

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2})
	clock.Advance(2 * time.Second)
	tbl.ObserveStatus(wire.Status{DroneID: 2})
	clock.Advance(2 * time.Second)

	// 4s since telemetry, 2s since status refresh.
	if removed := tbl.Sweep(); len(removed) != 0 {
		t.Errorf("Sweep() removed %v, want none: status should keep peers alive", removed)
	}
}

// TestExpiryDefaultsAndClamp tests the default window and the lower clamp.
func TestExpiryDefaultsAndClamp(t *testing.T) {
	t.Run("zero selects default", func(t *testing.T) {
		clock := timeutil.NewMockClock(testEpoch)
		tbl := NewTable(1, 0, clock)

		tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2})
		clock.Advance(DefaultExpiry - 100*time.Millisecond)
		tbl.Sweep()
		if n := tbl.Count(); n != 1 {
			t.Fatalf("peer expired before the default window")
		}
		clock.Advance(200 * time.Millisecond)
		tbl.Sweep()
		if n := tbl.Count(); n != 0 {
			t.Errorf("peer survived past the default window")
		}
	})

	t.Run("sub-second clamps to minimum", func(t *testing.T) {
		clock := timeutil.NewMockClock(testEpoch)
		tbl := NewTable(1, 200*time.Millisecond, clock)

		tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2})
		clock.Advance(900 * time.Millisecond)
		tbl.Sweep()
		if n := tbl.Count(); n != 1 {
			t.Fatalf("peer expired before the clamped minimum window")
		}
		clock.Advance(200 * time.Millisecond)
		tbl.Sweep()
		if n := tbl.Count(); n != 0 {
			t.Errorf("peer survived past the clamped minimum window")
		}
	})
}

// TestSnapshotSorted tests that snapshots come back ordered by id.
func TestSnapshotSorted(t *testing.T) {
	tbl := NewTable(1, 0, timeutil.NewMockClock(testEpoch))

	for _, id := range []uint8{9, 2, 5} {
		tbl.ObserveTelemetry(wire.Telemetry{DroneID: id})
	}

	snap := tbl.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d peers, want 3", len(snap))
	}
	for i, want := range []uint8{2, 5, 9} {
		if snap[i].ID != want {
			t.Errorf("snapshot[%d].ID = %d, want %d", i, snap[i].ID, want)
		}
	}
}

// TestWaitForPeersTrivial tests that zero or negative requirements are
// satisfied without waiting.
func TestWaitForPeersTrivial(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 0, clock)

	if !tbl.WaitForPeers(0, time.Second) {
		t.Error("WaitForPeers(0) = false, want true")
	}
	if !tbl.WaitForPeers(-1, time.Second) {
		t.Error("WaitForPeers(-1) = false, want true")
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 0 {
		t.Errorf("trivial waits slept %v, want no sleeps", sleeps)
	}
}

// TestWaitForPeersTimeout tests that an unmet requirement returns false
// once the deadline passes, polling at the fixed interval.
func TestWaitForPeersTimeout(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 0, clock)

	if tbl.WaitForPeers(2, 3*time.Second) {
		t.Error("WaitForPeers = true with no peers, want false")
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 6 {
		t.Errorf("polled %d times, want 6 at 500ms over 3s", len(sleeps))
	}
}

// TestWaitForPeersSatisfied tests success both immediately and mid-wait.
func TestWaitForPeersSatisfied(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	tbl := NewTable(1, 0, clock)

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 2})
	if !tbl.WaitForPeers(1, time.Second) {
		t.Error("WaitForPeers(1) = false with one peer visible")
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 0 {
		t.Errorf("satisfied wait slept %v, want no sleeps", sleeps)
	}

	tbl.ObserveTelemetry(wire.Telemetry{DroneID: 3})
	if !tbl.WaitForPeers(2, time.Second) {
		t.Error("WaitForPeers(2) = false with two peers visible")
	}
}
