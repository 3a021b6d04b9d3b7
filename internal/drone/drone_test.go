package drone

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/flight"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stubFC is a scriptable flight controller for façade tests.
type stubFC struct {
	mu        sync.Mutex
	pose      flight.Pose
	poseErr   error
	state     flight.State
	navErr    error
	landErr   error
	poseCalls int
	navCalls  int
	setCalls  int
	landCalls int
}

func (f *stubFC) GetPose(ctx context.Context, frame string) (flight.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poseCalls++
	return f.pose, f.poseErr
}

func (f *stubFC) SetPosition(ctx context.Context, x, y, z, yaw float64, frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	return nil
}

func (f *stubFC) Navigate(ctx context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navCalls++
	return f.navErr
}

func (f *stubFC) GetState(ctx context.Context) (flight.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *stubFC) Land(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.landCalls++
	return f.landErr
}

func (f *stubFC) setPose(p flight.Pose) {
	f.mu.Lock()
	f.pose = p
	f.mu.Unlock()
}

func (f *stubFC) counts() (pose, nav, set, land int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poseCalls, f.navCalls, f.setCalls, f.landCalls
}

// testSink records everything handed to it.
type testSink struct {
	mu      sync.Mutex
	records []TelemetryRecord
	events  []Event
	stats   []link.StatsSnapshot
}

func (s *testSink) RecordTelemetry(rec TelemetryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *testSink) RecordEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *testSink) RecordLinkStats(st link.StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, st)
}

func (s *testSink) telemetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *testSink) telemetry() []TelemetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TelemetryRecord(nil), s.records...)
}

func (s *testSink) eventsOf(kind string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (s *testSink) statsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats)
}

func newTestDrone(t *testing.T, opts Options) (*Drone, *link.TestablePort, *timeutil.MockClock) {
	t.Helper()
	if opts.ID == 0 {
		opts.ID = 1
	}
	if opts.Port == "" {
		opts.Port = "testport"
	}
	clock := timeutil.NewMockClock(testEpoch)
	port := link.NewTestablePort()
	return NewWithPort(opts, port, clock), port, clock
}

func startDrone(t *testing.T, d *Drone) {
	t.Helper()
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(d.Stop)
}

// waitUntil polls cond until it holds or the deadline passes. The link
// delivers packets on its own goroutine, so tests synchronize by polling.
func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func feedPacket(t *testing.T, port *link.TestablePort, p wire.Packet) {
	t.Helper()
	frame, err := wire.Encode(p, link.DefaultNetworkID)
	if err != nil {
		t.Fatalf("encode %v: %v", p.Type(), err)
	}
	port.AddReadData(frame)
}

func parseFrames(t *testing.T, data []byte) []wire.Packet {
	t.Helper()
	var pkts []wire.Packet
	for len(data) > 0 {
		hdr, err := wire.ParseHeader(data)
		if err != nil {
			t.Fatalf("parse written header: %v", err)
		}
		n := wire.HEADER_SIZE + int(hdr.PayloadSize)
		pkt, err := wire.Decode(data[:n])
		if err != nil {
			t.Fatalf("decode written frame: %v", err)
		}
		pkts = append(pkts, pkt)
		data = data[n:]
	}
	return pkts
}

func writtenTelemetry(t *testing.T, port *link.TestablePort) []wire.Telemetry {
	t.Helper()
	var tels []wire.Telemetry
	for _, p := range parseFrames(t, port.GetWrittenData()) {
		if tel, ok := p.(wire.Telemetry); ok {
			tels = append(tels, tel)
		}
	}
	return tels
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{ID: 3}.withDefaults()
	if o.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", o.Port, DefaultPort)
	}
	if o.BroadcastRate != DefaultBroadcastRate {
		t.Errorf("BroadcastRate = %v, want %v", o.BroadcastRate, DefaultBroadcastRate)
	}
	if o.NavigationRate != DefaultNavigationRate {
		t.Errorf("NavigationRate = %v, want %v", o.NavigationRate, DefaultNavigationRate)
	}
	if o.Frame != flight.FrameWorld {
		t.Errorf("Frame = %q, want %q", o.Frame, flight.FrameWorld)
	}
	if o.Avoidance.MaxSpeed == 0 {
		t.Error("zero avoidance config should select the reference tuning")
	}

	o = Options{ID: 3, Port: "/dev/ttyUSB0", BroadcastRate: 5, Frame: "map"}.withDefaults()
	if o.Port != "/dev/ttyUSB0" || o.BroadcastRate != 5 || o.Frame != "map" {
		t.Errorf("explicit options overridden: %+v", o)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	d, port, _ := newTestDrone(t, Options{ID: 2})

	if d.Running() {
		t.Fatal("Running() before Start")
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !d.Running() {
		t.Fatal("Running() false after Start")
	}
	if err := d.Start(); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}

	// The only traffic with no flight controller is the bridge config.
	if !port.WaitForWrittenBytes(wire.HEADER_SIZE+wire.CONFIG_PAYLOAD_SIZE, 2*time.Second) {
		t.Fatal("config frame never written")
	}
	pkts := parseFrames(t, port.GetWrittenData())
	cfg, ok := pkts[0].(wire.Config)
	if !ok {
		t.Fatalf("first frame = %T, want wire.Config", pkts[0])
	}
	want := wire.Config{NetworkID: link.DefaultNetworkID, Channel: link.DefaultChannel, TxPower: link.DefaultTxPower}
	if cfg != want {
		t.Errorf("config = %+v, want %+v", cfg, want)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("Running() true after Stop")
	}
	d.Stop() // repeated stop is a no-op
}

func TestBroadcastsTelemetry(t *testing.T) {
	d, port, clock := newTestDrone(t, Options{ID: 5})
	fc := &stubFC{}
	fc.setPose(flight.Pose{X: 1, Y: 2, Z: 1.5, VX: 0.25, VY: -0.5})
	d.SetFlightController(fc)
	startDrone(t, d)

	// Config plus the immediate first broadcast.
	first := wire.HEADER_SIZE + wire.CONFIG_PAYLOAD_SIZE + wire.HEADER_SIZE + wire.TELEMETRY_PAYLOAD_SIZE
	if !port.WaitForWrittenBytes(first, 2*time.Second) {
		t.Fatal("first telemetry broadcast never written")
	}

	clock.Advance(50 * time.Millisecond)
	if !port.WaitForWrittenBytes(first+wire.HEADER_SIZE+wire.TELEMETRY_PAYLOAD_SIZE, 2*time.Second) {
		t.Fatal("second telemetry broadcast never written")
	}

	tels := writtenTelemetry(t, port)
	if len(tels) != 2 {
		t.Fatalf("got %d telemetry frames, want 2", len(tels))
	}
	want := wire.Telemetry{DroneID: 5, X: 1, Y: 2, Z: 1.5, VX: 0.25, VY: -0.5}
	if tels[0] != want {
		t.Errorf("telemetry = %+v, want %+v", tels[0], want)
	}
}

func TestBroadcastSkipsNaNPose(t *testing.T) {
	d, port, clock := newTestDrone(t, Options{ID: 5})
	fc := &stubFC{}
	fc.setPose(flight.Pose{X: math.NaN(), Y: 2, Z: 1.5})
	d.SetFlightController(fc)
	startDrone(t, d)

	// The first broadcast reads the NaN pose and must stay silent.
	waitUntil(t, func() bool { pose, _, _, _ := fc.counts(); return pose >= 1 }, "first pose read")
	if got := len(port.GetWrittenData()); got != wire.HEADER_SIZE+wire.CONFIG_PAYLOAD_SIZE {
		t.Fatalf("wrote %d bytes with NaN pose, want config only", got)
	}

	fc.setPose(flight.Pose{X: 1, Y: 2, Z: 1.5})
	clock.Advance(100 * time.Millisecond)
	waitUntil(t, func() bool { return len(writtenTelemetry(t, port)) >= 1 }, "broadcast after pose recovery")
}

func TestTelemetryDiscoveryFeedsSink(t *testing.T) {
	d, port, _ := newTestDrone(t, Options{ID: 1})
	sink := &testSink{}
	d.SetSink(sink)
	startDrone(t, d)

	feedPacket(t, port, wire.Telemetry{DroneID: 7, X: 2, Y: 1, Z: 1.5, VX: 0.5})
	waitUntil(t, func() bool { return d.PeerCount() == 1 }, "peer discovery")

	peers := d.Peers()
	if len(peers) != 1 || peers[0].ID != 7 || peers[0].X != 2 {
		t.Fatalf("peers = %+v, want drone 7 at x=2", peers)
	}

	feedPacket(t, port, wire.Telemetry{DroneID: 7, X: 2.5, Y: 1, Z: 1.5})
	waitUntil(t, func() bool { return sink.telemetryCount() == 2 }, "second telemetry record")

	if evs := sink.eventsOf(EventPeerDiscovered); len(evs) != 1 || evs[0].DroneID != 7 {
		t.Errorf("discovery events = %+v, want exactly one for drone 7", evs)
	}
	recs := sink.telemetry()
	if recs[0].Self || recs[0].DroneID != 7 || recs[0].X != 2 || recs[0].VX != 0.5 {
		t.Errorf("first record = %+v, want peer 7 sample", recs[0])
	}
}

func TestStatusCriticalEvents(t *testing.T) {
	d, port, _ := newTestDrone(t, Options{ID: 1})
	sink := &testSink{}
	d.SetSink(sink)
	startDrone(t, d)

	// Low battery from a drone we have never heard telemetry from: the
	// warning surfaces but no presence entry appears.
	feedPacket(t, port, wire.Status{DroneID: 9, StatusCode: 2, BatteryMV: 3300})
	waitUntil(t, func() bool { return len(sink.eventsOf(EventCriticalStatus)) == 1 }, "critical status event")
	if d.PeerCount() != 0 {
		t.Errorf("PeerCount() = %d, status must not create peers", d.PeerCount())
	}
	ev := sink.eventsOf(EventCriticalStatus)[0]
	wantDetail := "Critical drone status - drone_9, Status=2, Battery=3300mV, Errors=0x0000"
	if ev.DroneID != 9 || ev.Detail != wantDetail {
		t.Errorf("event = %+v, want detail %q", ev, wantDetail)
	}

	// A healthy status between two critical ones must not add events.
	feedPacket(t, port, wire.Status{DroneID: 9, StatusCode: 0, BatteryMV: 4100})
	feedPacket(t, port, wire.Status{DroneID: 6, StatusCode: 0, BatteryMV: 4100, ErrorFlags: 0x0003})
	waitUntil(t, func() bool { return len(sink.eventsOf(EventCriticalStatus)) == 2 }, "error flags event")
	evs := sink.eventsOf(EventCriticalStatus)
	if len(evs) != 2 || evs[1].DroneID != 6 || !strings.Contains(evs[1].Detail, "Errors=0x0003") {
		t.Errorf("critical events = %+v, want second from drone 6 with error flags", evs)
	}
}

func TestPeerExpiryLostEvent(t *testing.T) {
	d, port, clock := newTestDrone(t, Options{ID: 1})
	sink := &testSink{}
	d.SetSink(sink)
	startDrone(t, d)

	feedPacket(t, port, wire.Telemetry{DroneID: 7, X: 1})
	waitUntil(t, func() bool { return d.PeerCount() == 1 }, "peer discovery")

	// Past the 5s expiry window; the 2s sweep timer fires on the way.
	clock.Advance(6 * time.Second)
	waitUntil(t, func() bool { return len(sink.eventsOf(EventPeerLost)) == 1 }, "peer lost event")

	if d.PeerCount() != 0 {
		t.Errorf("PeerCount() = %d after expiry, want 0", d.PeerCount())
	}
	if ev := sink.eventsOf(EventPeerLost)[0]; ev.DroneID != 7 {
		t.Errorf("lost event = %+v, want drone 7", ev)
	}
	if sink.statsCount() == 0 {
		t.Error("sweep should sample link counters into the sink")
	}
}

func TestBroadcastMessageTruncates(t *testing.T) {
	d, port, _ := newTestDrone(t, Options{ID: 1})

	if err := d.BroadcastMessage("formation: line"); err != nil {
		t.Fatalf("BroadcastMessage() error: %v", err)
	}
	if err := d.BroadcastMessage(strings.Repeat("x", 200)); err != nil {
		t.Fatalf("BroadcastMessage(long) error: %v", err)
	}

	pkts := parseFrames(t, port.GetWrittenData())
	if len(pkts) != 2 {
		t.Fatalf("got %d frames, want 2", len(pkts))
	}
	short := pkts[0].(wire.CustomMessage)
	if short.Text() != "formation: line" {
		t.Errorf("short text = %q", short.Text())
	}
	long := pkts[1].(wire.CustomMessage)
	if want := strings.Repeat("x", wire.MAX_TEXT_LEN); long.Text() != want {
		t.Errorf("long text = %d bytes, want truncation to %d", len(long.Text()), wire.MAX_TEXT_LEN)
	}
}

func TestOnMessageCallback(t *testing.T) {
	d, port, _ := newTestDrone(t, Options{ID: 1})

	var mu sync.Mutex
	var got []string
	d.OnMessage(func(text string) {
		mu.Lock()
		got = append(got, text)
		mu.Unlock()
	})
	startDrone(t, d)

	msg, err := wire.NewCustomMessage("hold position")
	if err != nil {
		t.Fatal(err)
	}
	feedPacket(t, port, msg)

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "message callback")
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "hold position" {
		t.Errorf("received %q, want %q", got[0], "hold position")
	}
}

func TestWaitHelpers(t *testing.T) {
	d, _, clock := newTestDrone(t, Options{ID: 1})

	if !d.WaitForPeers(0, 0) {
		t.Error("WaitForPeers(0, 0) must succeed immediately")
	}
	if d.WaitForPeers(2, 500*time.Millisecond) {
		t.Error("WaitForPeers(2, ...) succeeded with no peers")
	}

	d.Wait(3 * time.Second)
	if got := clock.Now().Sub(testEpoch); got < 3*time.Second {
		t.Errorf("Wait(3s) advanced the clock by %v", got)
	}
}
