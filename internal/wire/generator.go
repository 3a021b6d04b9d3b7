package wire

import (
	"math/rand"
	"time"
)

// Generator produces random, wire-valid packets for stress testing and
// bench traffic. Config packets are deliberately absent from the random
// mix: the bridge persists them and restarts, so a flood of random configs
// would reboot it continuously.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator seeds a generator. Seed 0 picks a time-based seed.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Telemetry generates a plausible telemetry packet. droneID 0 picks a
// random id in [1,10].
func (g *Generator) Telemetry(droneID uint8) Telemetry {
	if droneID == 0 {
		droneID = uint8(1 + g.rng.Intn(10))
	}
	return Telemetry{
		DroneID: droneID,
		X:       g.uniform(-100, 100),
		Y:       g.uniform(-100, 100),
		Z:       g.uniform(-50, 50),
		VX:      g.uniform(-10, 10),
		VY:      g.uniform(-10, 10),
		VZ:      g.uniform(-5, 5),
	}
}

func (g *Generator) Command() Command {
	return Command{
		CommandID: uint8(1 + g.rng.Intn(20)),
		TargetID:  uint8(1 + g.rng.Intn(10)),
		Param:     uint16(g.rng.Intn(65536)),
	}
}

func (g *Generator) Status() Status {
	return Status{
		DroneID:    uint8(1 + g.rng.Intn(10)),
		StatusCode: uint8(g.rng.Intn(256)),
		BatteryMV:  uint16(3000 + g.rng.Intn(1201)),
		ErrorFlags: uint16(g.rng.Intn(65536)),
	}
}

func (g *Generator) SensorData() SensorData {
	return SensorData{
		SensorID: uint8(1 + g.rng.Intn(5)),
		Value1:   g.uniform(-50, 50),
		Value2:   g.uniform(0, 100),
		Value3:   g.uniform(-180, 180),
	}
}

// BulkData generates between 8 and 126 random payload bytes.
func (g *Generator) BulkData() BulkData {
	n := 8 + g.rng.Intn(MAX_PAYLOAD_SIZE-CRC_SIZE-7)
	data := make([]byte, n)
	g.rng.Read(data)
	return BulkData{Data: data}
}

func (g *Generator) Ping() Ping {
	return Ping{Timestamp: uint32(time.Now().UnixMilli())}
}

func (g *Generator) Ack() Ack {
	return Ack{
		AckType: uint8(1 + g.rng.Intn(8)),
		AckID:   uint8(g.rng.Intn(256)),
		Status:  uint16(g.rng.Intn(65536)),
	}
}

func (g *Generator) CustomMessage() CustomMessage {
	var m CustomMessage
	g.rng.Read(m.Data[:])
	return m
}

// Random picks a packet kind with the bench traffic mix: telemetry 30%,
// command/status/sensor 15% each, bulk 10%, ping/ack/custom 5% each.
func (g *Generator) Random() Packet {
	r := g.rng.Intn(100)
	switch {
	case r < 30:
		return g.Telemetry(0)
	case r < 45:
		return g.Command()
	case r < 60:
		return g.Status()
	case r < 75:
		return g.SensorData()
	case r < 85:
		return g.BulkData()
	case r < 90:
		return g.Ping()
	case r < 95:
		return g.Ack()
	default:
		return g.CustomMessage()
	}
}

func (g *Generator) uniform(lo, hi float64) float32 {
	return float32(lo + g.rng.Float64()*(hi-lo))
}
