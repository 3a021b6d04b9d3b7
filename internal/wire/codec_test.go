package wire

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testNetworkID = 0x12

// allPackets returns one representative of every packet kind with non-trivial
// field values, so round-trip tests exercise full layouts.
func allPackets() []Packet {
	custom, _ := NewCustomMessage("hello swarm")
	return []Packet{
		Telemetry{DroneID: 7, X: 1.5, Y: -2.25, Z: 1.0, VX: 0.5, VY: -0.125, VZ: 0.0},
		Command{CommandID: 3, TargetID: 9, Param: 0xBEEF},
		Status{DroneID: 4, StatusCode: 2, BatteryMV: 3850, ErrorFlags: 0x0102},
		SensorData{SensorID: 1, Value1: 25.5, Value2: 101.3, Value3: -3.75},
		Config{NetworkID: 0x12, Channel: 1, TxPower: 11},
		BulkData{Data: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}},
		Ping{Timestamp: 123456789},
		Ack{AckType: 1, AckID: 42, Status: 0},
		custom,
	}
}

func TestCRC16KnownValue(t *testing.T) {
	// Standard CRC-16/MODBUS check value; the bridge firmware computes the
	// same algorithm, so this anchors interoperability.
	if got := CRC16([]byte("123456789")); got != 0x4B37 {
		t.Fatalf("CRC16(123456789) = 0x%04X, want 0x4B37", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, p := range allPackets() {
		frame, err := Encode(p, testNetworkID)
		if err != nil {
			t.Fatalf("Encode(%s): %v", p.Type(), err)
		}

		h, err := ParseHeader(frame)
		if err != nil {
			t.Fatalf("ParseHeader(%s): %v", p.Type(), err)
		}
		if h.Type != p.Type() {
			t.Errorf("header type = %s, want %s", h.Type, p.Type())
		}
		if h.NetworkID != testNetworkID {
			t.Errorf("header network id = 0x%02X, want 0x%02X", h.NetworkID, testNetworkID)
		}
		if len(frame) != HEADER_SIZE+int(h.PayloadSize) {
			t.Errorf("%s frame length %d does not match declared payload %d", p.Type(), len(frame), h.PayloadSize)
		}

		decoded, err := Decode(frame)
		if err != nil {
			t.Fatalf("Decode(%s): %v", p.Type(), err)
		}
		if diff := cmp.Diff(p, decoded); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", p.Type(), diff)
		}
	}
}

func TestEncodedSizesMatchFirmware(t *testing.T) {
	// Total frame size = header + fixed payload size. These are the numbers
	// the bridge firmware is compiled with.
	want := map[PacketType]int{
		TypeTelemetry:     HEADER_SIZE + 27,
		TypeCommand:       HEADER_SIZE + 6,
		TypeStatus:        HEADER_SIZE + 8,
		TypeSensorData:    HEADER_SIZE + 15,
		TypeConfig:        HEADER_SIZE + 5,
		TypePing:          HEADER_SIZE + 6,
		TypeAck:           HEADER_SIZE + 6,
		TypeCustomMessage: HEADER_SIZE + 128,
	}
	for _, p := range allPackets() {
		expected, ok := want[p.Type()]
		if !ok {
			continue // bulk data is variable-size
		}
		frame, err := Encode(p, testNetworkID)
		if err != nil {
			t.Fatalf("Encode(%s): %v", p.Type(), err)
		}
		if len(frame) != expected {
			t.Errorf("%s frame size = %d, want %d", p.Type(), len(frame), expected)
		}
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	// Flipping any single byte must surface as a CRC mismatch, except the
	// preamble and size bytes, which fail structural checks first.
	frame, err := Encode(Telemetry{DroneID: 7, X: 1, Y: 2, Z: 3}, testNetworkID)
	if err != nil {
		t.Fatal(err)
	}

	for i := range frame {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[i] ^= 0xFF

		_, err := Decode(corrupted)
		if err == nil {
			t.Fatalf("Decode accepted frame with byte %d flipped", i)
		}
		switch i {
		case 0, 1:
			if !errors.Is(err, ErrBadPreamble) {
				t.Errorf("byte %d flip: got %v, want preamble rejection", i, err)
			}
		case 2:
			// Corrupted size byte fails a structural check; the exact
			// error class does not matter, only that it never passes.
		default:
			if !errors.Is(err, ErrBadCRC) && !errors.Is(err, ErrSizeMismatch) {
				t.Errorf("byte %d flip: got %v, want CRC or size rejection", i, err)
			}
		}
	}
}

func TestDecodeRejectsSizeMismatch(t *testing.T) {
	// A telemetry header claiming the wrong payload size must be rejected
	// even when the CRC over the malformed frame is valid.
	frame, err := Encode(Ping{Timestamp: 42}, testNetworkID)
	if err != nil {
		t.Fatal(err)
	}
	frame[3] = uint8(TypeTelemetry) // retag ping as telemetry
	crc := CRC16(frame[:len(frame)-CRC_SIZE])
	binary.LittleEndian.PutUint16(frame[len(frame)-CRC_SIZE:], crc)

	_, err = Decode(frame)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("got %v, want ErrSizeMismatch", err)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	frame, err := Encode(Ping{Timestamp: 42}, testNetworkID)
	if err != nil {
		t.Fatal(err)
	}
	frame[3] = 0x7F
	crc := CRC16(frame[:len(frame)-CRC_SIZE])
	binary.LittleEndian.PutUint16(frame[len(frame)-CRC_SIZE:], crc)

	_, err = Decode(frame)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("got %v, want ErrUnknownType", err)
	}
}

func TestDecodeBulkDataPassthrough(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	frame, err := Encode(BulkData{Data: payload}, testNetworkID)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	bulk, ok := decoded.(BulkData)
	if !ok {
		t.Fatalf("decoded %T, want BulkData", decoded)
	}
	if diff := cmp.Diff(payload, bulk.Data); diff != "" {
		t.Errorf("bulk payload mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomMessageText(t *testing.T) {
	m, err := NewCustomMessage("start:leader=3")
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Text(); got != "start:leader=3" {
		t.Errorf("Text() = %q", got)
	}

	if _, err := NewCustomMessage(strings.Repeat("x", MAX_TEXT_LEN)); err != nil {
		t.Errorf("message of exactly %d bytes rejected: %v", MAX_TEXT_LEN, err)
	}
	if _, err := NewCustomMessage(strings.Repeat("x", MAX_TEXT_LEN+1)); err == nil {
		t.Error("over-length message accepted")
	}
}

func TestGeneratorProducesValidPackets(t *testing.T) {
	g := NewGenerator(1)
	for i := 0; i < 200; i++ {
		p := g.Random()
		frame, err := Encode(p, testNetworkID)
		if err != nil {
			t.Fatalf("generated %s failed to encode: %v", p.Type(), err)
		}
		if _, err := Decode(frame); err != nil {
			t.Fatalf("generated %s failed to decode: %v", p.Type(), err)
		}
	}
}
