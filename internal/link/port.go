// Package link owns the serial connection to the ESP-NOW radio bridge: it
// opens the port, frames the unstructured receive byte stream back into
// packets, dispatches them to registered handlers, and serializes the send
// path. One Link corresponds to one physical bridge.
package link

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Porter is the minimal surface the link needs from a serial device.
// The abstraction enables unit testing without bridge hardware.
type Porter interface {
	io.ReadWriter
	io.Closer

	// ResetInputBuffer discards buffered, unread input. Called once on
	// start so the framer never sees bytes from before the process ran.
	ResetInputBuffer() error
}

// TimeoutPorter is optionally implemented by ports whose reads can block
// with a deadline. When available, the reader uses it instead of sleeping
// between empty polls.
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}

// PortOptions describes the serial connection parameters used when opening a
// real port. The fields mirror the tuning config schema so options load
// straight from it without translation.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
// The default baud rate is the bridge firmware's UART speed.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 921600
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if parity == "" {
		parity = "N"
	}

	switch parity {
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure
// required by go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	// serial.StopBits constants are not the literal counts; map explicitly.
	switch opts.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", opts.StopBits)
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}

// OpenPort opens the serial device at path with the given options. The
// returned port implements TimeoutPorter.
func OpenPort(path string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}
