package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Decode failure classes. Callers count these separately, so every decode
// error wraps exactly one of them.
var (
	ErrShortFrame   = errors.New("frame shorter than declared size")
	ErrBadPreamble  = errors.New("bad preamble")
	ErrBadCRC       = errors.New("crc mismatch")
	ErrUnknownType  = errors.New("unknown packet type")
	ErrSizeMismatch = errors.New("payload size mismatch for type")
)

// Encode serializes a packet into a complete frame: header, payload and
// trailing CRC. It is a pure transform; the only failure mode is a payload
// that cannot fit the wire format.
func Encode(p Packet, networkID uint8) ([]byte, error) {
	payload, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	payloadSize := len(payload) + CRC_SIZE
	if payloadSize > MAX_PAYLOAD_SIZE {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", payloadSize, MAX_PAYLOAD_SIZE)
	}

	frame := make([]byte, HEADER_SIZE+payloadSize)
	binary.LittleEndian.PutUint16(frame[0:2], PREAMBLE)
	frame[2] = uint8(payloadSize)
	frame[3] = uint8(p.Type())
	frame[4] = networkID
	copy(frame[HEADER_SIZE:], payload)

	// CRC covers everything up to its own two bytes.
	crc := CRC16(frame[:len(frame)-CRC_SIZE])
	binary.LittleEndian.PutUint16(frame[len(frame)-CRC_SIZE:], crc)
	return frame, nil
}

func encodePayload(p Packet) ([]byte, error) {
	switch v := p.(type) {
	case Telemetry:
		b := make([]byte, TELEMETRY_PAYLOAD_SIZE-CRC_SIZE)
		b[0] = v.DroneID
		putFloat32(b[1:5], v.X)
		putFloat32(b[5:9], v.Y)
		putFloat32(b[9:13], v.Z)
		putFloat32(b[13:17], v.VX)
		putFloat32(b[17:21], v.VY)
		putFloat32(b[21:25], v.VZ)
		return b, nil
	case Command:
		b := make([]byte, COMMAND_PAYLOAD_SIZE-CRC_SIZE)
		b[0] = v.CommandID
		b[1] = v.TargetID
		binary.LittleEndian.PutUint16(b[2:4], v.Param)
		return b, nil
	case Status:
		b := make([]byte, STATUS_PAYLOAD_SIZE-CRC_SIZE)
		b[0] = v.DroneID
		b[1] = v.StatusCode
		binary.LittleEndian.PutUint16(b[2:4], v.BatteryMV)
		binary.LittleEndian.PutUint16(b[4:6], v.ErrorFlags)
		return b, nil
	case SensorData:
		b := make([]byte, SENSOR_PAYLOAD_SIZE-CRC_SIZE)
		b[0] = v.SensorID
		putFloat32(b[1:5], v.Value1)
		putFloat32(b[5:9], v.Value2)
		putFloat32(b[9:13], v.Value3)
		return b, nil
	case Config:
		b := make([]byte, CONFIG_PAYLOAD_SIZE-CRC_SIZE)
		b[0] = v.NetworkID
		b[1] = v.Channel
		b[2] = v.TxPower
		return b, nil
	case BulkData:
		if len(v.Data) > MAX_PAYLOAD_SIZE-CRC_SIZE {
			return nil, fmt.Errorf("bulk data too large: %d bytes (max %d)", len(v.Data), MAX_PAYLOAD_SIZE-CRC_SIZE)
		}
		return v.Data, nil
	case Ping:
		b := make([]byte, PING_PAYLOAD_SIZE-CRC_SIZE)
		binary.LittleEndian.PutUint32(b[0:4], v.Timestamp)
		return b, nil
	case Ack:
		b := make([]byte, ACK_PAYLOAD_SIZE-CRC_SIZE)
		b[0] = v.AckType
		b[1] = v.AckID
		binary.LittleEndian.PutUint16(b[2:4], v.Status)
		return b, nil
	case CustomMessage:
		b := make([]byte, CUSTOM_PAYLOAD_SIZE-CRC_SIZE)
		copy(b, v.Data[:])
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, p)
	}
}

// ParseHeader reads the 5-byte frame header from the front of buf. It
// validates only the preamble; size/type checks belong to Decode.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HEADER_SIZE {
		return Header{}, fmt.Errorf("%w: %d header bytes", ErrShortFrame, len(buf))
	}
	h := Header{
		Preamble:    binary.LittleEndian.Uint16(buf[0:2]),
		PayloadSize: buf[2],
		Type:        PacketType(buf[3]),
		NetworkID:   buf[4],
	}
	if h.Preamble != PREAMBLE {
		return Header{}, fmt.Errorf("%w: 0x%04X", ErrBadPreamble, h.Preamble)
	}
	return h, nil
}

// Decode validates a complete frame (header through CRC) and returns the
// typed packet. The CRC is recomputed over the whole frame minus its last
// two bytes; a mismatch rejects the frame before any type dispatch.
func Decode(frame []byte) (Packet, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	if int(h.PayloadSize) < MIN_PAYLOAD_SIZE || int(h.PayloadSize) > MAX_PAYLOAD_SIZE {
		return nil, fmt.Errorf("%w: declared payload %d", ErrSizeMismatch, h.PayloadSize)
	}
	if len(frame) != HEADER_SIZE+int(h.PayloadSize) {
		return nil, fmt.Errorf("%w: have %d bytes, header declares %d", ErrShortFrame, len(frame), HEADER_SIZE+int(h.PayloadSize))
	}

	want := binary.LittleEndian.Uint16(frame[len(frame)-CRC_SIZE:])
	if got := CRC16(frame[:len(frame)-CRC_SIZE]); got != want {
		return nil, fmt.Errorf("%w: computed 0x%04X, frame carries 0x%04X", ErrBadCRC, got, want)
	}

	payload := frame[HEADER_SIZE : len(frame)-CRC_SIZE]

	// BulkData has no fixed size; everything else must match its layout
	// exactly or the frame is rejected.
	if h.Type == TypeBulkData {
		data := make([]byte, len(payload))
		copy(data, payload)
		return BulkData{Data: data}, nil
	}

	expected, ok := PayloadSize(h.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(h.Type))
	}
	if int(h.PayloadSize) != expected {
		return nil, fmt.Errorf("%w: %s declares %d, expected %d", ErrSizeMismatch, h.Type, h.PayloadSize, expected)
	}

	switch h.Type {
	case TypeTelemetry:
		return Telemetry{
			DroneID: payload[0],
			X:       getFloat32(payload[1:5]),
			Y:       getFloat32(payload[5:9]),
			Z:       getFloat32(payload[9:13]),
			VX:      getFloat32(payload[13:17]),
			VY:      getFloat32(payload[17:21]),
			VZ:      getFloat32(payload[21:25]),
		}, nil
	case TypeCommand:
		return Command{
			CommandID: payload[0],
			TargetID:  payload[1],
			Param:     binary.LittleEndian.Uint16(payload[2:4]),
		}, nil
	case TypeStatus:
		return Status{
			DroneID:    payload[0],
			StatusCode: payload[1],
			BatteryMV:  binary.LittleEndian.Uint16(payload[2:4]),
			ErrorFlags: binary.LittleEndian.Uint16(payload[4:6]),
		}, nil
	case TypeSensorData:
		return SensorData{
			SensorID: payload[0],
			Value1:   getFloat32(payload[1:5]),
			Value2:   getFloat32(payload[5:9]),
			Value3:   getFloat32(payload[9:13]),
		}, nil
	case TypeConfig:
		return Config{
			NetworkID: payload[0],
			Channel:   payload[1],
			TxPower:   payload[2],
		}, nil
	case TypePing:
		return Ping{
			Timestamp: binary.LittleEndian.Uint32(payload[0:4]),
		}, nil
	case TypeAck:
		return Ack{
			AckType: payload[0],
			AckID:   payload[1],
			Status:  binary.LittleEndian.Uint16(payload[2:4]),
		}, nil
	case TypeCustomMessage:
		var m CustomMessage
		copy(m.Data[:], payload)
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(h.Type))
	}
}

func putFloat32(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
