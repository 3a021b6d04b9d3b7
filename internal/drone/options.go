package drone

import (
	"net"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/avoidance"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/flight"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultPort           = "/dev/ttyAMA1"
	DefaultBroadcastRate  = 20.0
	DefaultNavigationRate = 10.0
)

// Options configures a drone node. The zero value of every field selects a
// default, so Options{} is a complete flyable configuration.
type Options struct {
	// ID is this drone's identity on the network. Zero derives the ID
	// from the last octet of the local IP address.
	ID uint8

	// Port is the serial device connected to the radio bridge.
	Port string

	Serial link.PortOptions // serial parameters, zero selects the bridge defaults
	Radio  link.Options     // radio parameters pushed to the bridge on start

	BroadcastRate  float64       // telemetry broadcasts per second
	NavigationRate float64       // navigation loop ticks per second
	Frame          string        // default navigation frame
	PeerExpiry     time.Duration // window before a silent peer is dropped

	// Avoidance tunes the collision-avoidance law. The zero value
	// selects the reference tuning.
	Avoidance avoidance.Config
}

func (o Options) withDefaults() Options {
	if o.ID == 0 {
		o.ID = localIPID()
	}
	if o.Port == "" {
		o.Port = DefaultPort
	}
	if o.BroadcastRate <= 0 {
		o.BroadcastRate = DefaultBroadcastRate
	}
	if o.NavigationRate <= 0 {
		o.NavigationRate = DefaultNavigationRate
	}
	if o.Frame == "" {
		o.Frame = flight.FrameWorld
	}
	if o.Avoidance == (avoidance.Config{}) {
		o.Avoidance = avoidance.DefaultConfig()
	}
	return o
}

// localIPID derives a drone ID from the last octet of the host's outbound
// IPv4 address, the fleet convention for static addressing. The dial sends
// nothing; it only selects the outbound interface.
func localIPID() uint8 {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return 1
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 1
	}
	ip := addr.IP.To4()
	if ip == nil {
		return 1
	}
	return ip[3]
}
