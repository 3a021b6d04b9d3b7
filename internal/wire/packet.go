// Package wire defines the binary packet format spoken over the serial line
// to the ESP-NOW radio bridge, and the codec that translates between typed
// packets and raw frames.
//
// Every frame on the wire is laid out as:
//
//	┌──────────┬──────────────┬─────────────┬────────────┬─────────┬───────┐
//	│ preamble │ payload_size │ packet_type │ network_id │ payload │ CRC16 │
//	│  u16 LE  │      u8      │     u8      │     u8     │   ...   │ u16 LE│
//	└──────────┴──────────────┴─────────────┴────────────┴─────────┴───────┘
//
// payload_size counts the payload bytes including the trailing CRC. The CRC
// is computed over the whole frame except its own two bytes. All multi-byte
// fields are little-endian. The layout must match the bridge firmware
// byte-for-byte; the sizes below are fixed by that firmware, not negotiable.
package wire

import "fmt"

// Wire format constants shared with the radio bridge firmware.
const (
	PREAMBLE         = 0xAA55 // Frame start sentinel, little-endian on the wire (0x55 0xAA)
	HEADER_SIZE      = 5      // preamble(2) + payload_size(1) + packet_type(1) + network_id(1)
	CRC_SIZE         = 2      // Trailing CRC16, little-endian
	MIN_PAYLOAD_SIZE = 2      // Smallest legal payload: just the CRC
	MAX_PAYLOAD_SIZE = 128    // Largest legal payload, bridge RX buffer bound

	// Fixed payload sizes per packet type, CRC included.
	TELEMETRY_PAYLOAD_SIZE = 27  // id(1) + 6×float32(24) + crc(2)
	COMMAND_PAYLOAD_SIZE   = 6   // command(1) + target(1) + param(2) + crc(2)
	STATUS_PAYLOAD_SIZE    = 8   // id(1) + status(1) + battery(2) + flags(2) + crc(2)
	SENSOR_PAYLOAD_SIZE    = 15  // sensor(1) + 3×float32(12) + crc(2)
	CONFIG_PAYLOAD_SIZE    = 5   // network(1) + channel(1) + power(1) + crc(2)
	PING_PAYLOAD_SIZE      = 6   // timestamp(4) + crc(2)
	ACK_PAYLOAD_SIZE       = 6   // type(1) + id(1) + status(2) + crc(2)
	CUSTOM_PAYLOAD_SIZE    = 128 // data(126) + crc(2)

	CUSTOM_DATA_SIZE = 126 // Raw byte capacity of a custom message payload
	MAX_TEXT_LEN     = 125 // Text capacity: one byte is reserved for a terminating null
)

// PacketType tags the payload layout of a frame. Values are wire values and
// must not be renumbered.
type PacketType uint8

const (
	TypeTelemetry     PacketType = 1
	TypeCommand       PacketType = 2
	TypeStatus        PacketType = 3
	TypeSensorData    PacketType = 4
	TypeConfig        PacketType = 5
	TypeBulkData      PacketType = 6
	TypePing          PacketType = 7
	TypeAck           PacketType = 8
	TypeCustomMessage PacketType = 9
)

func (t PacketType) String() string {
	switch t {
	case TypeTelemetry:
		return "telemetry"
	case TypeCommand:
		return "command"
	case TypeStatus:
		return "status"
	case TypeSensorData:
		return "sensor_data"
	case TypeConfig:
		return "config"
	case TypeBulkData:
		return "bulk_data"
	case TypePing:
		return "ping"
	case TypeAck:
		return "ack"
	case TypeCustomMessage:
		return "custom_message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// PayloadSize returns the fixed payload size (CRC included) for a packet
// type, or false for BulkData and unknown types, whose sizes are not fixed.
func PayloadSize(t PacketType) (int, bool) {
	switch t {
	case TypeTelemetry:
		return TELEMETRY_PAYLOAD_SIZE, true
	case TypeCommand:
		return COMMAND_PAYLOAD_SIZE, true
	case TypeStatus:
		return STATUS_PAYLOAD_SIZE, true
	case TypeSensorData:
		return SENSOR_PAYLOAD_SIZE, true
	case TypeConfig:
		return CONFIG_PAYLOAD_SIZE, true
	case TypePing:
		return PING_PAYLOAD_SIZE, true
	case TypeAck:
		return ACK_PAYLOAD_SIZE, true
	case TypeCustomMessage:
		return CUSTOM_PAYLOAD_SIZE, true
	default:
		return 0, false
	}
}

// Header is the decoded 5-byte frame header.
type Header struct {
	Preamble    uint16
	PayloadSize uint8 // Payload bytes including the trailing CRC
	Type        PacketType
	NetworkID   uint8
}

// Packet is the decoded form of one frame. Exactly one concrete type exists
// per PacketType value.
type Packet interface {
	Type() PacketType
}

// Telemetry broadcasts a drone's position and velocity. It is the primary
// discovery signal: receiving one is what makes a peer known.
type Telemetry struct {
	DroneID uint8
	X, Y, Z float32 // Position in meters
	VX, VY  float32 // Velocity in m/s
	VZ      float32
}

func (Telemetry) Type() PacketType { return TypeTelemetry }

// Command carries an addressed control instruction.
type Command struct {
	CommandID uint8
	TargetID  uint8
	Param     uint16
}

func (Command) Type() PacketType { return TypeCommand }

// Status broadcasts health state. It never creates presence entries on its
// own; it can only refresh a peer already known from telemetry.
type Status struct {
	DroneID    uint8
	StatusCode uint8
	BatteryMV  uint16
	ErrorFlags uint16
}

func (Status) Type() PacketType { return TypeStatus }

// SensorData carries three generic sensor readings.
type SensorData struct {
	SensorID               uint8
	Value1, Value2, Value3 float32
}

func (SensorData) Type() PacketType { return TypeSensorData }

// Config reconfigures the radio bridge: which logical network to join, the
// WiFi channel and the transmit power. Sent once when a link starts.
type Config struct {
	NetworkID uint8
	Channel   uint8
	TxPower   uint8
}

func (Config) Type() PacketType { return TypeConfig }

// BulkData is an opaque payload, CRC-checked but otherwise passed through
// undecoded. Data excludes the CRC.
type BulkData struct {
	Data []byte
}

func (BulkData) Type() PacketType { return TypeBulkData }

// Ping requests an Ack reply. Timestamp is the sender's transmit clock; the
// reply does not echo it, so round trips are measured against the sender's
// own clock when the Ack arrives.
type Ping struct {
	Timestamp uint32
}

func (Ping) Type() PacketType { return TypePing }

// Ack answers a Ping or confirms a command.
type Ack struct {
	AckType uint8
	AckID   uint8
	Status  uint16
}

func (Ack) Type() PacketType { return TypeAck }

// CustomMessage carries up to MAX_TEXT_LEN bytes of UTF-8 text, null-padded
// to CUSTOM_DATA_SIZE on the wire.
type CustomMessage struct {
	Data [CUSTOM_DATA_SIZE]byte
}

func (CustomMessage) Type() PacketType { return TypeCustomMessage }

// NewCustomMessage wraps text into a null-padded custom message. Text longer
// than MAX_TEXT_LEN bytes is rejected rather than truncated.
func NewCustomMessage(text string) (CustomMessage, error) {
	var m CustomMessage
	if len(text) > MAX_TEXT_LEN {
		return m, fmt.Errorf("custom message too long: %d bytes (max %d)", len(text), MAX_TEXT_LEN)
	}
	copy(m.Data[:], text)
	return m, nil
}

// Text strips the null padding and returns the message body.
func (m CustomMessage) Text() string {
	for i, b := range m.Data {
		if b == 0 {
			return string(m.Data[:i])
		}
	}
	return string(m.Data[:])
}
