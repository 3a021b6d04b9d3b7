package link

import (
	"io"
	"sync"
	"time"
)

// TestablePort is a mock implementation of Porter for testing. It provides
// controllable read data, captures written data, and can simulate errors
// and blocking behavior.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer contains data that will be returned by Read calls.
	ReadBuffer []byte
	// WriteBuffer accumulates all data written via Write calls.
	WriteBuffer []byte

	// ReadError, if set, is returned by the next Read call.
	ReadError error
	// WriteError, if set, is returned by Write calls.
	WriteError error
	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool

	// BlockReads makes Read block until data is added or the port closes,
	// mimicking a serial port with no pending bytes.
	BlockReads bool

	// Counters for verifying call patterns.
	ReadCalls  int
	WriteCalls int
	ResetCalls int
	Closed     bool

	readCond *sync.Cond
}

// NewTestablePort creates a new mock port.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns data from the ReadBuffer. With BlockReads set it waits until
// data is available or the port is closed, otherwise it returns immediately
// with whatever is buffered.
func (p *TestablePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if p.BlockReads {
		for len(p.ReadBuffer) == 0 && !p.Closed && p.ReadError == nil {
			p.readCond.Wait()
		}
		if p.ReadError != nil {
			err := p.ReadError
			p.ReadError = nil
			return 0, err
		}
	}

	if p.Closed {
		return 0, io.ErrClosedPipe
	}

	n := copy(buf, p.ReadBuffer)
	p.ReadBuffer = p.ReadBuffer[n:]
	return n, nil
}

// Write appends to the WriteBuffer.
func (p *TestablePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++

	if p.WriteError != nil {
		return 0, p.WriteError
	}
	if p.Closed {
		return 0, io.ErrClosedPipe
	}

	n := len(buf)
	if p.ShortWrite && n > 0 {
		n--
	}
	p.WriteBuffer = append(p.WriteBuffer, buf[:n]...)
	return n, nil
}

// Close marks the port closed and wakes any blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()
	return nil
}

// ResetInputBuffer discards any unread data.
func (p *TestablePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ResetCalls++
	p.ReadBuffer = nil
	return nil
}

// AddReadData appends data for subsequent Read calls to return and wakes
// blocked readers.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer = append(p.ReadBuffer, data...)
	p.readCond.Broadcast()
}

// FailNextRead arranges for the next Read call to return err.
func (p *TestablePort) FailNextRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadError = err
	p.readCond.Broadcast()
}

// GetWrittenData returns a copy of everything written so far.
func (p *TestablePort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]byte, len(p.WriteBuffer))
	copy(out, p.WriteBuffer)
	return out
}

// ClearWrittenData drops captured writes, for tests that only care about
// traffic after a setup phase.
func (p *TestablePort) ClearWrittenData() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteBuffer = nil
}

// WaitForWrittenBytes polls until at least n bytes have been written or the
// timeout expires, returning whether the threshold was reached.
func (p *TestablePort) WaitForWrittenBytes(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		have := len(p.WriteBuffer)
		p.mu.Unlock()
		if have >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
