package link

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

// ErrWriteFailed indicates the port accepted fewer bytes than the frame
// holds. A partial frame on the wire is unrecoverable for the receiver, so
// the whole send is reported as failed.
var ErrWriteFailed = errors.New("failed to write complete frame to serial port")

// Radio defaults pushed to the bridge when no explicit option is set.
const (
	DefaultNetworkID = 0x12
	DefaultChannel   = 1
	DefaultTxPower   = 11
)

const (
	readTimeout      = 10 * time.Millisecond
	idlePollInterval = 10 * time.Millisecond
	readErrorBackoff = 100 * time.Millisecond
	stopTimeout      = 1 * time.Second
)

// preamble as it appears on the wire, little-endian.
var preambleBytes = []byte{0x55, 0xAA}

// Handler receives decoded packets of one registered type. Handlers run on
// the reader goroutine and must not block.
type Handler func(pkt wire.Packet)

// Options carries the radio parameters pushed to the bridge when the link
// starts. A zero value for any field selects the default.
type Options struct {
	NetworkID uint8
	Channel   uint8
	TxPower   uint8
}

func (o Options) withDefaults() Options {
	if o.NetworkID == 0 {
		o.NetworkID = DefaultNetworkID
	}
	if o.Channel == 0 {
		o.Channel = DefaultChannel
	}
	if o.TxPower == 0 {
		o.TxPower = DefaultTxPower
	}
	return o
}

// Link frames the byte stream from one radio bridge back into packets and
// dispatches them. Sends from any goroutine are serialized onto the port.
type Link struct {
	name  string
	port  Porter
	opts  Options
	stats *InterfaceStats

	// writeMu serializes whole frames onto the port so concurrent sends
	// cannot interleave bytes.
	writeMu sync.Mutex

	handlersMu  sync.RWMutex
	handlers    map[wire.PacketType]Handler
	textHandler func(text string)

	lifecycleMu sync.Mutex
	running     atomic.Bool
	done        chan struct{}

	// rxBuf accumulates raw bytes between reads. Reader goroutine only.
	rxBuf []byte
}

// New wraps an open port in a link named for logging, usually after the
// device path. Call Start to begin reading.
func New(name string, port Porter, opts Options) *Link {
	return &Link{
		name:     name,
		port:     port,
		opts:     opts.withDefaults(),
		stats:    NewInterfaceStats(name),
		handlers: make(map[wire.PacketType]Handler),
	}
}

// Open opens the serial device at path and wraps it in a link.
func Open(path string, portOpts PortOptions, opts Options) (*Link, error) {
	port, err := OpenPort(path, portOpts)
	if err != nil {
		return nil, err
	}
	return New(path, port, opts), nil
}

// Start configures the radio bridge, discards stale input and launches the
// reader. The config packet goes out first so the bridge joins the right
// network before any traffic is exchanged.
func (l *Link) Start() error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.running.Load() {
		monitoring.Logf("[link] %s start ignored: already running", l.name)
		return nil
	}

	cfg := wire.Config{
		NetworkID: l.opts.NetworkID,
		Channel:   l.opts.Channel,
		TxPower:   l.opts.TxPower,
	}
	if err := l.Send(cfg); err != nil {
		return fmt.Errorf("failed to configure radio bridge: %w", err)
	}

	if err := l.port.ResetInputBuffer(); err != nil {
		monitoring.Logf("[link] %s input buffer reset failed: %v", l.name, err)
	}
	if tp, ok := l.port.(TimeoutPorter); ok {
		if err := tp.SetReadTimeout(readTimeout); err != nil {
			monitoring.Logf("[link] %s set read timeout failed: %v", l.name, err)
		}
	}

	l.done = make(chan struct{})
	l.running.Store(true)
	go l.readLoop()

	monitoring.Logf("[link] %s started on network 0x%02X (channel %d, tx power %d)",
		l.name, l.opts.NetworkID, l.opts.Channel, l.opts.TxPower)
	return nil
}

// Stop shuts the link down. Closing the port first unblocks a reader stuck
// in Read; the join is bounded so a wedged port cannot hang the caller.
func (l *Link) Stop() {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if !l.running.Load() {
		return
	}
	l.running.Store(false)

	if err := l.port.Close(); err != nil {
		monitoring.Logf("[link] %s port close failed: %v", l.name, err)
	}

	select {
	case <-l.done:
	case <-time.After(stopTimeout):
		monitoring.Logf("[link] %s reader did not stop within %v", l.name, stopTimeout)
	}
	monitoring.Logf("[link] %s stopped", l.name)
}

// Running reports whether the reader is active.
func (l *Link) Running() bool {
	return l.running.Load()
}

// NetworkID returns the logical network this link was configured onto.
func (l *Link) NetworkID() uint8 {
	return l.opts.NetworkID
}

// OnPacket registers h for packets of type t, replacing any previous
// handler for that type.
func (l *Link) OnPacket(t wire.PacketType, h Handler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers[t] = h
}

// OnCustomText registers h for the text body of incoming custom messages.
// It fires in addition to any OnPacket handler for TypeCustomMessage.
func (l *Link) OnCustomText(h func(text string)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.textHandler = h
}

// Send encodes p and writes the frame to the port.
func (l *Link) Send(p wire.Packet) error {
	frame, err := wire.Encode(p, l.opts.NetworkID)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	n, err := l.port.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to send %s packet: %w", p.Type(), err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(frame))
	}

	l.stats.RecordSent(p.Type(), len(frame))
	return nil
}

// SendRaw writes a pre-encoded frame as-is, with no validation. The stress
// tooling uses it to inject deliberately corrupted frames.
func (l *Link) SendRaw(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	n, err := l.port.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to send raw frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(frame))
	}
	if h, err := wire.ParseHeader(frame); err == nil {
		l.stats.RecordSent(h.Type, len(frame))
	}
	return nil
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() StatsSnapshot {
	return l.stats.Snapshot()
}

// LogStats writes the current counters to the log.
func (l *Link) LogStats() {
	l.stats.LogStats()
}

func (l *Link) readLoop() {
	defer close(l.done)

	buf := make([]byte, 1024)
	for l.running.Load() {
		n, err := l.port.Read(buf)
		if err != nil {
			if !l.running.Load() {
				return
			}
			monitoring.Logf("[link] %s read error: %v", l.name, err)
			l.rxBuf = l.rxBuf[:0]
			time.Sleep(readErrorBackoff)
			continue
		}
		if n == 0 {
			time.Sleep(idlePollInterval)
			continue
		}

		l.rxBuf = append(l.rxBuf, buf[:n]...)
		l.extractPackets()
	}
}

// extractPackets drains every complete frame out of rxBuf. The stream can
// start mid-frame or carry line noise, so the loop hunts for the preamble
// and resynchronizes on any implausible header.
func (l *Link) extractPackets() {
	for {
		if len(l.rxBuf) < wire.HEADER_SIZE {
			return
		}

		idx := bytes.Index(l.rxBuf, preambleBytes)
		if idx == -1 {
			// No frame start anywhere. Keep the last byte: it may be
			// the first half of a preamble split across reads.
			if len(l.rxBuf) > 1 {
				l.rxBuf[0] = l.rxBuf[len(l.rxBuf)-1]
				l.rxBuf = l.rxBuf[:1]
			}
			return
		}
		if idx > 0 {
			l.advance(idx)
			if len(l.rxBuf) < wire.HEADER_SIZE {
				return
			}
		}

		payloadSize := int(l.rxBuf[2])
		if payloadSize < wire.MIN_PAYLOAD_SIZE || payloadSize > wire.MAX_PAYLOAD_SIZE {
			// The preamble bytes were a coincidence inside other data.
			// Shift one byte and hunt again.
			l.advance(1)
			continue
		}

		total := wire.HEADER_SIZE + payloadSize
		if len(l.rxBuf) < total {
			return
		}

		pkt, err := wire.Decode(l.rxBuf[:total])
		l.advance(total)
		if err != nil {
			l.stats.RecordCorrupted()
			monitoring.Logf("[link] %s dropping corrupted frame: %v", l.name, err)
			continue
		}

		l.stats.RecordReceived(pkt.Type(), total)
		l.dispatch(pkt)
	}
}

// advance discards the first n buffered bytes, compacting in place so the
// buffer never grows beyond the largest burst.
func (l *Link) advance(n int) {
	m := copy(l.rxBuf, l.rxBuf[n:])
	l.rxBuf = l.rxBuf[:m]
}

func (l *Link) dispatch(pkt wire.Packet) {
	switch v := pkt.(type) {
	case wire.Ping:
		// Pings are answered at the link layer so peers can probe
		// reachability without the application cooperating.
		ack := wire.Ack{AckType: uint8(wire.TypePing)}
		if err := l.Send(ack); err != nil {
			monitoring.Logf("[link] %s ping ack failed: %v", l.name, err)
		}
	case wire.CustomMessage:
		l.handlersMu.RLock()
		th := l.textHandler
		l.handlersMu.RUnlock()
		if th != nil {
			th(v.Text())
		}
	}

	l.handlersMu.RLock()
	h := l.handlers[pkt.Type()]
	l.handlersMu.RUnlock()
	if h != nil {
		h(pkt)
	}
}
