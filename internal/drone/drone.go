// Package drone ties the serial link, the peer table, the collision
// avoidance law and the flight controller together into one swarm node.
// A node continuously announces its own position, tracks every peer it
// hears from, and flies avoidance-guided navigation commands on request.
package drone

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/avoidance"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/flight"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/swarm"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

// Critical status thresholds, matching the fleet's health conventions.
const (
	statusCodeCritical = 4    // bridge firmware's "critical failure" code
	criticalBatteryMV  = 3400 // single-cell LiPo cutoff with headroom
	statusWarnInterval = 5 * time.Second
	poseWarnInterval   = 5 * time.Second
)

// Drone is one node of the swarm. It owns the radio link, the peer table
// and the periodic broadcast and expiry schedules; an attached flight
// controller makes it flyable, without one it is a ground station that
// only listens and talks.
type Drone struct {
	opts  Options
	link  *link.Link
	peers *swarm.Table
	avoid *avoidance.Controller
	clock timeutil.Clock

	fcMu sync.RWMutex
	fc   flight.Controller

	sinkMu sync.RWMutex
	sink   Sink

	msgMu     sync.RWMutex
	onMessage func(text string)

	lifecycleMu sync.Mutex
	running     atomic.Bool
	done        chan struct{}
	wg          sync.WaitGroup
}

// New opens the serial device and assembles a drone node around it. The
// node is inert until Start.
func New(opts Options) (*Drone, error) {
	opts = opts.withDefaults()
	l, err := link.Open(opts.Port, opts.Serial, opts.Radio)
	if err != nil {
		return nil, fmt.Errorf("failed to open radio link: %w", err)
	}
	return assemble(opts, l, timeutil.RealClock{}), nil
}

// NewWithPort assembles a drone node over an already open port. Tests use
// it to drive a node over a TestablePort with a mock clock; a nil clock
// selects the real one.
func NewWithPort(opts Options, port link.Porter, clock timeutil.Clock) *Drone {
	opts = opts.withDefaults()
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return assemble(opts, link.New(opts.Port, port, opts.Radio), clock)
}

func assemble(opts Options, l *link.Link, clock timeutil.Clock) *Drone {
	d := &Drone{
		opts:  opts,
		link:  l,
		peers: swarm.NewTable(opts.ID, opts.PeerExpiry, clock),
		avoid: avoidance.NewController(opts.Avoidance, clock),
		clock: clock,
	}
	l.OnPacket(wire.TypeTelemetry, d.handleTelemetry)
	l.OnPacket(wire.TypeStatus, d.handleStatus)
	l.OnCustomText(d.handleCustomText)
	return d
}

// Start brings the link up and launches the broadcast and sweep loops.
func (d *Drone) Start() error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.running.Load() {
		return nil
	}
	if err := d.link.Start(); err != nil {
		return err
	}

	d.done = make(chan struct{})
	d.running.Store(true)
	d.wg.Add(2)
	go d.broadcastLoop()
	go d.sweepLoop()

	monitoring.Logf("[drone] %d up: broadcasting at %.0f Hz, expiry sweep every %s",
		d.opts.ID, d.opts.BroadcastRate, swarm.SweepPeriod)
	return nil
}

// Stop halts the loops, logs the final link counters and shuts the link
// down. It is safe to call more than once.
func (d *Drone) Stop() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if !d.running.Load() {
		return
	}
	d.running.Store(false)
	close(d.done)
	d.wg.Wait()

	d.link.LogStats()
	d.link.Stop()
	monitoring.Logf("[drone] %d stopped", d.opts.ID)
}

// Running reports whether the node is started.
func (d *Drone) Running() bool {
	return d.running.Load()
}

// ID returns this drone's identity on the network.
func (d *Drone) ID() uint8 {
	return d.opts.ID
}

// Peers returns a copy of the currently known peers.
func (d *Drone) Peers() []swarm.PeerInfo {
	return d.peers.Snapshot()
}

// PeerCount returns the number of currently known peers.
func (d *Drone) PeerCount() int {
	return d.peers.Count()
}

// WaitForPeers blocks until at least n peers are known or timeout elapses,
// and reports whether the count was reached.
func (d *Drone) WaitForPeers(n int, timeout time.Duration) bool {
	return d.peers.WaitForPeers(n, timeout)
}

// Wait pauses the calling goroutine on the drone's clock. Mission scripts
// use it between flight commands.
func (d *Drone) Wait(dur time.Duration) {
	d.clock.Sleep(dur)
}

// LinkStats returns a snapshot of the link's traffic counters.
func (d *Drone) LinkStats() link.StatsSnapshot {
	return d.link.Stats()
}

// SetFlightController attaches the controller used for broadcasts and
// flight commands. One-shot commands are retried on transient failure;
// pass nil to detach.
func (d *Drone) SetFlightController(fc flight.Controller) {
	if fc != nil {
		fc = flight.NewRetrier(fc, d.clock)
	}
	d.fcMu.Lock()
	d.fc = fc
	d.fcMu.Unlock()
}

func (d *Drone) flightController() flight.Controller {
	d.fcMu.RLock()
	defer d.fcMu.RUnlock()
	return d.fc
}

// SetSink attaches a flight-record sink; pass nil to detach.
func (d *Drone) SetSink(s Sink) {
	d.sinkMu.Lock()
	d.sink = s
	d.sinkMu.Unlock()
}

func (d *Drone) currentSink() Sink {
	d.sinkMu.RLock()
	defer d.sinkMu.RUnlock()
	return d.sink
}

// OnMessage sets the handler invoked for every received text message. The
// handler runs on the link's reader goroutine and must not block.
func (d *Drone) OnMessage(h func(text string)) {
	d.msgMu.Lock()
	d.onMessage = h
	d.msgMu.Unlock()
}

// BroadcastMessage sends text to every node on the network. Text longer
// than the wire capacity is truncated to fit.
func (d *Drone) BroadcastMessage(text string) error {
	if len(text) > wire.MAX_TEXT_LEN {
		monitoring.Logf("[drone] %d outgoing message truncated from %d to %d bytes",
			d.opts.ID, len(text), wire.MAX_TEXT_LEN)
		text = text[:wire.MAX_TEXT_LEN]
	}
	msg, err := wire.NewCustomMessage(text)
	if err != nil {
		return err
	}
	return d.link.Send(msg)
}

// broadcastLoop announces our telemetry at the configured rate. The first
// broadcast goes out immediately; each timer reset starts only after the
// previous broadcast finished, so a slow tick delays but never stacks.
func (d *Drone) broadcastLoop() {
	defer d.wg.Done()

	period := time.Duration(float64(time.Second) / d.opts.BroadcastRate)
	t := d.clock.NewTimer(period)
	defer t.Stop()

	for {
		d.broadcastTelemetry()
		select {
		case <-t.C():
			t.Reset(period)
		case <-d.done:
			return
		}
	}
}

// sweepLoop expires silent peers and samples the link counters for the
// sink on the same period.
func (d *Drone) sweepLoop() {
	defer d.wg.Done()

	t := d.clock.NewTimer(swarm.SweepPeriod)
	defer t.Stop()

	for {
		select {
		case <-t.C():
			d.sweepPeers()
			t.Reset(swarm.SweepPeriod)
		case <-d.done:
			return
		}
	}
}

// broadcastTelemetry announces our pose. Ticks with no flight controller,
// a failed pose read or a non-finite planar component are skipped; the
// next tick retries naturally.
func (d *Drone) broadcastTelemetry() {
	fc := d.flightController()
	if fc == nil {
		return
	}
	pose, err := fc.GetPose(context.Background(), d.opts.Frame)
	if err != nil {
		monitoring.RateLimitedLogf("broadcast-pose", poseWarnInterval,
			"[drone] %d telemetry broadcast skipped: %v", d.opts.ID, err)
		return
	}
	if anyNaN(pose.X, pose.Y, pose.VX, pose.VY) {
		return
	}

	tel := wire.Telemetry{
		DroneID: d.opts.ID,
		X:       float32(pose.X),
		Y:       float32(pose.Y),
		Z:       float32(pose.Z),
		VX:      float32(pose.VX),
		VY:      float32(pose.VY),
		VZ:      float32(pose.VZ),
	}
	if err := d.link.Send(tel); err != nil {
		monitoring.RateLimitedLogf("broadcast-send", poseWarnInterval,
			"[drone] %d telemetry broadcast failed: %v", d.opts.ID, err)
		return
	}

	if s := d.currentSink(); s != nil {
		s.RecordTelemetry(TelemetryRecord{
			DroneID: d.opts.ID,
			Self:    true,
			X:       pose.X, Y: pose.Y, Z: pose.Z,
			VX: pose.VX, VY: pose.VY, VZ: pose.VZ,
		})
	}
}

func (d *Drone) sweepPeers() {
	removed := d.peers.Sweep()
	s := d.currentSink()
	if s == nil {
		return
	}
	for _, id := range removed {
		s.RecordEvent(Event{DroneID: id, Kind: EventPeerLost})
	}
	s.RecordLinkStats(d.link.Stats())
}

func (d *Drone) handleTelemetry(pkt wire.Packet) {
	tel, ok := pkt.(wire.Telemetry)
	if !ok || tel.DroneID == d.opts.ID {
		return
	}
	fresh := d.peers.ObserveTelemetry(tel)

	s := d.currentSink()
	if s == nil {
		return
	}
	if fresh {
		s.RecordEvent(Event{
			DroneID: tel.DroneID,
			Kind:    EventPeerDiscovered,
			Detail:  fmt.Sprintf("at (%.2f, %.2f, %.2f)", tel.X, tel.Y, tel.Z),
		})
	}
	s.RecordTelemetry(TelemetryRecord{
		DroneID: tel.DroneID,
		X:       float64(tel.X), Y: float64(tel.Y), Z: float64(tel.Z),
		VX: float64(tel.VX), VY: float64(tel.VY), VZ: float64(tel.VZ),
	})
}

func (d *Drone) handleStatus(pkt wire.Packet) {
	st, ok := pkt.(wire.Status)
	if !ok || st.DroneID == d.opts.ID {
		return
	}
	d.peers.ObserveStatus(st)

	if st.StatusCode != statusCodeCritical && st.ErrorFlags == 0 && st.BatteryMV >= criticalBatteryMV {
		return
	}
	detail := fmt.Sprintf("Critical drone status - drone_%d, Status=%d, Battery=%dmV, Errors=0x%04X",
		st.DroneID, st.StatusCode, st.BatteryMV, st.ErrorFlags)
	monitoring.RateLimitedLogf(fmt.Sprintf("status-%d", st.DroneID), statusWarnInterval,
		"[drone] %s", detail)
	if s := d.currentSink(); s != nil {
		s.RecordEvent(Event{DroneID: st.DroneID, Kind: EventCriticalStatus, Detail: detail})
	}
}

func (d *Drone) handleCustomText(text string) {
	d.msgMu.RLock()
	h := d.onMessage
	d.msgMu.RUnlock()
	if h != nil {
		h(text)
	}
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
