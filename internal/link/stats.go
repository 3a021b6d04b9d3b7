package link

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
	"github.com/dustin/go-humanize"
)

// InterfaceStats tracks packet and byte counters for one link. All methods
// are safe for concurrent use; the reader goroutine and the send path update
// it from different goroutines.
type InterfaceStats struct {
	mu        sync.Mutex
	name      string
	startTime time.Time

	packetsSent     int64
	bytesSent       int64
	packetsReceived int64
	bytesReceived   int64
	corrupted       int64

	sentByType     map[wire.PacketType]int64
	receivedByType map[wire.PacketType]int64
}

// StatsSnapshot is a point-in-time copy of the link counters.
type StatsSnapshot struct {
	Name            string
	Uptime          time.Duration
	PacketsSent     int64
	BytesSent       int64
	PacketsReceived int64
	BytesReceived   int64
	Corrupted       int64
	SentByType      map[wire.PacketType]int64
	ReceivedByType  map[wire.PacketType]int64
}

// NewInterfaceStats creates a stats tracker named after its link.
func NewInterfaceStats(name string) *InterfaceStats {
	return &InterfaceStats{
		name:           name,
		startTime:      time.Now(),
		sentByType:     make(map[wire.PacketType]int64),
		receivedByType: make(map[wire.PacketType]int64),
	}
}

// RecordSent counts one transmitted packet of the given type and size.
func (s *InterfaceStats) RecordSent(t wire.PacketType, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsSent++
	s.bytesSent += int64(size)
	s.sentByType[t]++
}

// RecordReceived counts one successfully decoded packet of the given type
// and total frame size.
func (s *InterfaceStats) RecordReceived(t wire.PacketType, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsReceived++
	s.bytesReceived += int64(size)
	s.receivedByType[t]++
}

// RecordCorrupted counts one frame that had a valid preamble and length but
// failed decoding.
func (s *InterfaceStats) RecordCorrupted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corrupted++
}

// Snapshot returns a copy of the current counters.
func (s *InterfaceStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Name:            s.name,
		Uptime:          time.Since(s.startTime),
		PacketsSent:     s.packetsSent,
		BytesSent:       s.bytesSent,
		PacketsReceived: s.packetsReceived,
		BytesReceived:   s.bytesReceived,
		Corrupted:       s.corrupted,
		SentByType:      make(map[wire.PacketType]int64, len(s.sentByType)),
		ReceivedByType:  make(map[wire.PacketType]int64, len(s.receivedByType)),
	}
	for t, n := range s.sentByType {
		snap.SentByType[t] = n
	}
	for t, n := range s.receivedByType {
		snap.ReceivedByType[t] = n
	}
	return snap
}

// LogStats writes a one-line summary of the counters to the log.
func (s *InterfaceStats) LogStats() {
	snap := s.Snapshot()

	secs := snap.Uptime.Seconds()
	if secs <= 0 {
		secs = 1
	}

	monitoring.Logf("[link] %s stats: sent %s pkts / %s bytes (%.1f/s), received %s pkts / %s bytes (%.1f/s), corrupted %s",
		snap.Name,
		humanize.Comma(snap.PacketsSent), humanize.Comma(snap.BytesSent),
		float64(snap.PacketsSent)/secs,
		humanize.Comma(snap.PacketsReceived), humanize.Comma(snap.BytesReceived),
		float64(snap.PacketsReceived)/secs,
		humanize.Comma(snap.Corrupted))

	if len(snap.ReceivedByType) > 0 {
		monitoring.Logf("[link] %s received by type: %s", snap.Name, formatByType(snap.ReceivedByType))
	}
}

// formatByType renders a per-type count map in stable type order.
func formatByType(counts map[wire.PacketType]int64) string {
	types := make([]wire.PacketType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
	}
	return strings.Join(parts, " ")
}
