// Package serialport abstracts the serial device behind a small transport
// interface so the acquisition loop can run against real hardware or a test
// double without knowing which.
package serialport

import "errors"

// ErrNotOpen is returned by transport operations before Open succeeds or
// after Close.
var ErrNotOpen = errors.New("serial port not open")

// Transport is the byte-stream contract the acquisition loop polls.
type Transport interface {
	// Open connects to the device at path with the given options.
	Open(path string, opts Options) error

	// Close releases the device. Closing a closed transport is a no-op.
	Close() error

	// IsOpen reports whether the transport is connected.
	IsOpen() bool

	// Read is non-blocking in spirit: when no data is pending it returns
	// (0, nil) promptly rather than waiting indefinitely.
	Read(p []byte) (int, error)

	// Write sends p to the device.
	Write(p []byte) (int, error)

	// Available returns the number of bytes queued for reading, or zero
	// when the underlying stack cannot report queue depth.
	Available() int

	// Flush discards any pending input and output.
	Flush() error
}
