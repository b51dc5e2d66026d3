package serialport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// readPollInterval is the read timeout applied to the underlying port. A
// short timeout makes Read return (0, nil) when the line is quiet, which is
// the non-blocking behaviour the acquisition loop depends on.
const readPollInterval = 5 * time.Millisecond

// RealPort is the hardware-backed Transport over go.bug.st/serial.
type RealPort struct {
	mu   sync.Mutex
	port serial.Port
}

// NewRealPort returns an unopened hardware transport.
func NewRealPort() *RealPort {
	return &RealPort{}
}

// Open connects to the serial device at path. An already-open port is closed
// first so Open can double as a reconnect.
func (r *RealPort) Open(path string, opts Options) error {
	mode, err := opts.serialMode()
	if err != nil {
		return fmt.Errorf("invalid serial options: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port != nil {
		r.port.Close()
		r.port = nil
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(readPollInterval); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", path, err)
	}

	r.port = port
	return nil
}

// Close releases the device.
func (r *RealPort) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	return err
}

// IsOpen reports whether the port is connected.
func (r *RealPort) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port != nil
}

// Read returns whatever arrived within the poll interval; (0, nil) when the
// line is quiet.
func (r *RealPort) Read(p []byte) (int, error) {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return 0, ErrNotOpen
	}
	return port.Read(p)
}

// Write sends p to the device.
func (r *RealPort) Write(p []byte) (int, error) {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return 0, ErrNotOpen
	}
	return port.Write(p)
}

// Available always returns zero: the portable serial stack does not expose
// input queue depth. Callers poll Read instead.
func (r *RealPort) Available() int {
	return 0
}

// Flush discards pending input and output on the device.
func (r *RealPort) Flush() error {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return ErrNotOpen
	}
	if err := port.ResetInputBuffer(); err != nil {
		return err
	}
	return port.ResetOutputBuffer()
}

// ListPorts enumerates the serial devices visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
