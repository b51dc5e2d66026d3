package serialport

import (
	"bytes"
	"sync"
)

// TestablePort implements Transport with configurable behaviour for tests:
// scripted read data, injectable errors, and call counters.
type TestablePort struct {
	mu sync.Mutex

	open     bool
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// OpenError, ReadError, and WriteError are returned by the matching
	// call when set. ReadError and WriteError clear after one use.
	OpenError  error
	ReadError  error
	WriteError error

	// OpenCalls, ReadCalls, and FlushCalls count invocations.
	OpenCalls  int
	ReadCalls  int
	FlushCalls int

	// LastPath and LastOptions record the most recent Open arguments.
	LastPath    string
	LastOptions Options
}

// NewTestablePort returns a closed test transport.
func NewTestablePort() *TestablePort {
	return &TestablePort{}
}

func (t *TestablePort) Open(path string, opts Options) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.OpenCalls++
	t.LastPath = path
	t.LastOptions = opts
	if t.OpenError != nil {
		return t.OpenError
	}
	t.open = true
	return nil
}

func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	return nil
}

func (t *TestablePort) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Read drains queued data; (0, nil) when nothing is queued, matching the
// real port's quiet-line behaviour.
func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if !t.open {
		return 0, ErrNotOpen
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.readBuf.Len() == 0 {
		return 0, nil
	}
	return t.readBuf.Read(p)
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return 0, ErrNotOpen
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	return t.writeBuf.Write(p)
}

func (t *TestablePort) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readBuf.Len()
}

// Flush drops queued read data, mirroring a hardware input buffer reset.
func (t *TestablePort) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.FlushCalls++
	if !t.open {
		return ErrNotOpen
	}
	t.readBuf.Reset()
	return nil
}

// AddReadData queues data for subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.Write(data)
}

// WrittenData returns everything written to the port so far.
func (t *TestablePort) WrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.writeBuf.Bytes()...)
}
