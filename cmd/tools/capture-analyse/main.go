//go:build pcap
// +build pcap

// The capture-analyse command decodes radio bridge traffic out of a pcap
// capture. The bench harness mirrors every serial byte onto UDP; this tool
// filters the mirror port, reassembles the byte stream from the datagram
// payloads and runs the frame extraction over it offline.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

var preambleBytes = []byte{0x55, 0xAA}

// Config holds the capture analysis settings.
type Config struct {
	PCAPFile     string
	UDPPort      int
	NetworkID    int // -1 accepts every network
	GapThreshold time.Duration
	Verbose      bool
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "pcap capture of mirrored link traffic (required)")
	flag.IntVar(&cfg.UDPPort, "port", 5555, "UDP port the bench harness mirrors onto")
	flag.IntVar(&cfg.NetworkID, "network", -1, "count only frames for this network id (-1 counts all)")
	flag.DurationVar(&cfg.GapThreshold, "gap", 250*time.Millisecond, "report datagram gaps longer than this")
	flag.BoolVar(&cfg.Verbose, "v", false, "log decoded custom messages and per-datagram progress")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()
	if cfg.PCAPFile == "" {
		log.Fatalf("no capture given: -pcap is required")
	}

	report, err := analyse(cfg)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	report.print()
}

// streamReport accumulates everything the analysis learns about a capture.
type streamReport struct {
	capture string
	port    int

	datagrams int
	first     time.Time
	last      time.Time
	maxGap    time.Duration
	stalls    int
	gapLimit  time.Duration

	scan *frameScanner
}

func analyse(cfg Config) (*streamReport, error) {
	handle, err := pcap.OpenOffline(cfg.PCAPFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", cfg.PCAPFile, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", cfg.UDPPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return nil, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}

	report := &streamReport{
		capture:  cfg.PCAPFile,
		port:     cfg.UDPPort,
		gapLimit: cfg.GapThreshold,
		scan:     newFrameScanner(cfg.NetworkID, cfg.Verbose),
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		ts := packet.Metadata().Timestamp
		if report.datagrams == 0 {
			report.first = ts
		} else if gap := ts.Sub(report.last); gap > 0 {
			if gap > report.maxGap {
				report.maxGap = gap
			}
			if gap > cfg.GapThreshold {
				report.stalls++
			}
		}
		report.last = ts
		report.datagrams++

		report.scan.feed(udp.Payload)

		if cfg.Verbose && report.datagrams%10000 == 0 {
			log.Printf("progress: %d datagrams, %d frames decoded", report.datagrams, report.scan.frames)
		}
	}
	report.scan.finish()
	return report, nil
}

func (r *streamReport) print() {
	s := r.scan
	fmt.Printf("capture: %s (udp port %d)\n", r.capture, r.port)

	span := r.last.Sub(r.first)
	if r.datagrams > 1 && span > 0 {
		rate := float64(r.datagrams-1) / span.Seconds()
		fmt.Printf("datagrams: %s spanning %s (%.1f/s)\n",
			humanize.Comma(int64(r.datagrams)), span.Truncate(time.Millisecond), rate)
	} else {
		fmt.Printf("datagrams: %s\n", humanize.Comma(int64(r.datagrams)))
	}

	fmt.Printf("frames: %s decoded (%s), %s corrupted (%s bad crc), %s noise bytes skipped\n",
		humanize.Comma(int64(s.frames)), humanize.Bytes(uint64(s.frameBytes)),
		humanize.Comma(int64(s.corrupted)), humanize.Comma(int64(s.crcFailures)),
		humanize.Comma(int64(s.noiseBytes)))
	if s.filtered > 0 {
		fmt.Printf("filtered: %s frames for other networks\n", humanize.Comma(int64(s.filtered)))
	}

	if len(s.byType) > 0 {
		fmt.Println("by type:")
		types := make([]wire.PacketType, 0, len(s.byType))
		for t := range s.byType {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, t := range types {
			fmt.Printf("  %-15s %s\n", t, humanize.Comma(int64(s.byType[t])))
		}
	}

	if len(s.drones) > 0 {
		ids := make([]int, 0, len(s.drones))
		for id := range s.drones {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		fmt.Printf("drones heard:")
		for _, id := range ids {
			fmt.Printf(" %d", id)
		}
		fmt.Println()
	}

	if r.maxGap > 0 {
		fmt.Printf("gaps: max %s, %d stalls over %s\n",
			r.maxGap.Truncate(time.Millisecond), r.stalls, r.gapLimit)
	}
	if s.remainder > 0 {
		fmt.Printf("trailing: %s bytes left mid-frame at end of capture\n", humanize.Comma(int64(s.remainder)))
	}
}

// frameScanner reassembles the serial byte stream and extracts frames the
// way the live link does: hunt for the preamble, resynchronize on any
// implausible header, drop frames whose CRC does not verify.
type frameScanner struct {
	buf     []byte
	network int
	verbose bool

	frames      int
	frameBytes  int64
	corrupted   int
	crcFailures int
	noiseBytes  int
	filtered    int
	remainder   int

	byType map[wire.PacketType]int
	drones map[uint8]struct{}
}

func newFrameScanner(network int, verbose bool) *frameScanner {
	return &frameScanner{
		network: network,
		verbose: verbose,
		byType:  make(map[wire.PacketType]int),
		drones:  make(map[uint8]struct{}),
	}
}

// feed appends mirrored bytes and drains every complete frame.
func (s *frameScanner) feed(data []byte) {
	s.buf = append(s.buf, data...)
	for {
		if len(s.buf) < wire.HEADER_SIZE {
			return
		}

		idx := bytes.Index(s.buf, preambleBytes)
		if idx == -1 {
			// No frame start anywhere. Keep the last byte: it may be
			// the first half of a preamble split across datagrams.
			s.noiseBytes += len(s.buf) - 1
			s.buf[0] = s.buf[len(s.buf)-1]
			s.buf = s.buf[:1]
			return
		}
		if idx > 0 {
			s.noiseBytes += idx
			s.advance(idx)
			if len(s.buf) < wire.HEADER_SIZE {
				return
			}
		}

		payloadSize := int(s.buf[2])
		if payloadSize < wire.MIN_PAYLOAD_SIZE || payloadSize > wire.MAX_PAYLOAD_SIZE {
			// The preamble bytes were a coincidence inside other data.
			s.noiseBytes++
			s.advance(1)
			continue
		}

		total := wire.HEADER_SIZE + payloadSize
		if len(s.buf) < total {
			return
		}

		hdr, _ := wire.ParseHeader(s.buf)
		pkt, err := wire.Decode(s.buf[:total])
		s.advance(total)
		if err != nil {
			s.corrupted++
			if errors.Is(err, wire.ErrBadCRC) {
				s.crcFailures++
			}
			continue
		}
		s.record(hdr, pkt, total)
	}
}

func (s *frameScanner) record(hdr wire.Header, pkt wire.Packet, size int) {
	if s.network >= 0 && int(hdr.NetworkID) != s.network {
		s.filtered++
		return
	}

	s.frames++
	s.frameBytes += int64(size)
	s.byType[pkt.Type()]++

	switch v := pkt.(type) {
	case wire.Telemetry:
		s.drones[v.DroneID] = struct{}{}
	case wire.Status:
		s.drones[v.DroneID] = struct{}{}
	case wire.CustomMessage:
		if s.verbose {
			log.Printf("custom message: %q", v.Text())
		}
	}
}

// finish accounts for whatever is still buffered when the capture ends.
func (s *frameScanner) finish() {
	s.remainder = len(s.buf)
	s.buf = nil
}

func (s *frameScanner) advance(n int) {
	m := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:m]
}
