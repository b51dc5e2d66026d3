package acquire

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/biostream/internal/framing"
	"github.com/banshee-data/biostream/internal/serialport"
	"github.com/banshee-data/biostream/internal/timeutil"
)

func testFormat() framing.Config {
	return framing.Config{
		ChannelCount: 2,
		SampleWidth:  2,
		ScaleFactor:  1.0,
		SyncByte1:    framing.DefaultSyncByte1,
		SyncByte2:    framing.DefaultSyncByte2,
	}
}

// encodeFrames builds n consecutive wire frames whose channel values are
// (base+i, base+i+100) so blocks are easy to verify.
func encodeFrames(cfg framing.Config, base, n int) []byte {
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, cfg.SyncByte1, cfg.SyncByte2)
		for ch := 0; ch < cfg.ChannelCount; ch++ {
			v := int16(base + i + ch*100)
			out = append(out, byte(uint16(v)>>8), byte(v))
		}
	}
	return out
}

type captureRecorder struct {
	mu       sync.Mutex
	sessions []SessionSummary
}

func (r *captureRecorder) RecordSession(s SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *captureRecorder) recorded() []SessionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionSummary(nil), r.sessions...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewLoopValidation(t *testing.T) {
	sink := NewBlockRing(4)
	port := serialport.NewTestablePort()

	tests := []struct {
		name string
		cfg  LoopConfig
	}{
		{"invalid format", LoopConfig{Transport: port, Sink: sink, SampleRate: 1000}},
		{"zero sample rate", LoopConfig{Transport: port, Sink: sink, Format: testFormat()}},
		{"missing sink", LoopConfig{Transport: port, Format: testFormat(), SampleRate: 1000}},
		{"missing transport", LoopConfig{Sink: sink, Format: testFormat(), SampleRate: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoop(tt.cfg); err == nil {
				t.Error("NewLoop() accepted invalid config")
			}
		})
	}

	// Simulation mode needs no transport.
	if _, err := NewLoop(LoopConfig{Sink: sink, Format: testFormat(), SampleRate: 1000, Simulate: true}); err != nil {
		t.Errorf("NewLoop(simulate) error = %v", err)
	}
}

func TestConnectFailureLeavesLoopIdle(t *testing.T) {
	port := serialport.NewTestablePort()
	port.OpenError = errors.New("device busy")

	loop, err := NewLoop(LoopConfig{
		Transport:  port,
		Sink:       NewBlockRing(4),
		PortPath:   "/dev/ttyTEST0",
		Format:     testFormat(),
		SampleRate: 1000,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	if err := loop.Connect(); err == nil {
		t.Fatal("Connect() succeeded despite open failure")
	}
	if got := loop.State(); got != StateIdle {
		t.Fatalf("state after failed connect = %s, want idle", got)
	}

	// The failure is non-fatal; a retry works once the device frees up.
	port.OpenError = nil
	if err := loop.Connect(); err != nil {
		t.Fatalf("Connect() retry error = %v", err)
	}
	if got := loop.State(); got != StateConnected {
		t.Errorf("state after retry = %s, want connected", got)
	}
}

func TestConnectRequiresPortPath(t *testing.T) {
	loop, err := NewLoop(LoopConfig{
		Transport:  serialport.NewTestablePort(),
		Sink:       NewBlockRing(4),
		Format:     testFormat(),
		SampleRate: 1000,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if err := loop.Connect(); err == nil {
		t.Error("Connect() succeeded with no port configured")
	}
	if got := loop.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestStartRequiresConnected(t *testing.T) {
	loop, err := NewLoop(LoopConfig{
		Transport:  serialport.NewTestablePort(),
		Sink:       NewBlockRing(4),
		PortPath:   "/dev/ttyTEST0",
		Format:     testFormat(),
		SampleRate: 1000,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if err := loop.Start(); err == nil {
		t.Error("Start() succeeded while idle")
	}
}

func TestSerialAcquisition(t *testing.T) {
	const rate = 1000.0
	cfg := testFormat()
	port := serialport.NewTestablePort()
	sink := NewBlockRing(64)
	recorder := &captureRecorder{}

	loop, err := NewLoop(LoopConfig{
		Transport:  port,
		Sink:       sink,
		Clock:      timeutil.NewMockClock(time.Unix(1700000000, 0)),
		Recorder:   recorder,
		PortPath:   "/dev/ttyTEST0",
		Format:     cfg,
		SampleRate: rate,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	if err := loop.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := loop.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := loop.State(); got != StateRunning {
		t.Fatalf("state = %s, want running", got)
	}

	// Queue data only after Start: the pre-session flush would eat it.
	port.AddReadData(encodeFrames(cfg, 10, 3))

	var first SampleBlock
	waitFor(t, "first block", func() bool {
		b, ok := sink.Pop()
		if ok {
			first = b
		}
		return ok
	})

	if first.FrameCount != 3 {
		t.Fatalf("FrameCount = %d, want 3", first.FrameCount)
	}
	if len(first.Samples) != 2 {
		t.Fatalf("block has %d channels, want 2", len(first.Samples))
	}
	for i := 0; i < 3; i++ {
		if got := first.Samples[0][i]; got != float64(10+i) {
			t.Errorf("ch0[%d] = %g, want %d", i, got, 10+i)
		}
		if got := first.Samples[1][i]; got != float64(110+i) {
			t.Errorf("ch1[%d] = %g, want %d", i, got, 110+i)
		}
		if first.Indices[i] != int64(i) {
			t.Errorf("Indices[%d] = %d, want %d", i, first.Indices[i], i)
		}
		if want := float64(i) / rate; math.Abs(first.Timestamps[i]-want) > 1e-12 {
			t.Errorf("Timestamps[%d] = %g, want %g", i, first.Timestamps[i], want)
		}
		if first.TTLWords[i] != 0 {
			t.Errorf("TTLWords[%d] = %d, want 0", i, first.TTLWords[i])
		}
	}

	// Indices keep counting across blocks within the session.
	port.AddReadData(encodeFrames(cfg, 20, 2))
	var second SampleBlock
	waitFor(t, "second block", func() bool {
		b, ok := sink.Pop()
		if ok {
			second = b
		}
		return ok
	})
	if second.Indices[0] != 3 {
		t.Errorf("second block starts at index %d, want 3", second.Indices[0])
	}

	loop.Stop()
	if got := loop.State(); got != StateIdle {
		t.Errorf("state after Stop = %s, want idle", got)
	}
	if port.IsOpen() {
		t.Error("transport still open after Stop")
	}
	if got := sink.Len(); got != 0 {
		t.Errorf("sink holds %d blocks after Stop, want 0", got)
	}

	sessions := recorder.recorded()
	if len(sessions) != 1 {
		t.Fatalf("recorded %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.ID == "" {
		t.Error("session has empty ID")
	}
	if s.Simulated {
		t.Error("serial session marked simulated")
	}
	if s.SamplesEmitted != 5 {
		t.Errorf("SamplesEmitted = %d, want 5", s.SamplesEmitted)
	}
	if s.FramesDecoded != 5 {
		t.Errorf("FramesDecoded = %d, want 5", s.FramesDecoded)
	}
}

func TestSimulatedAcquisition(t *testing.T) {
	const rate = 1000.0
	sink := NewBlockRing(256)
	recorder := &captureRecorder{}

	loop, err := NewLoop(LoopConfig{
		Sink:        sink,
		Recorder:    recorder,
		Format:      testFormat(),
		SampleRate:  rate,
		Simulate:    true,
		SimSeed:     42,
		SimInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	if err := loop.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := loop.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var first SampleBlock
	waitFor(t, "first simulated block", func() bool {
		b, ok := sink.Pop()
		if ok && b.Indices[0] == 0 {
			first = b
			return true
		}
		return false
	})

	if first.FrameCount != 10 {
		t.Errorf("FrameCount = %d, want 10 (10 ms at 1 kHz)", first.FrameCount)
	}
	if len(first.Samples) != 2 {
		t.Errorf("block has %d channels, want 2", len(first.Samples))
	}
	for i := 0; i < first.FrameCount; i++ {
		if want := float64(i) / rate; math.Abs(first.Timestamps[i]-want) > 1e-12 {
			t.Errorf("Timestamps[%d] = %g, want %g", i, first.Timestamps[i], want)
		}
	}

	loop.Stop()
	if got := loop.State(); got != StateIdle {
		t.Errorf("state after Stop = %s, want idle", got)
	}

	sessions := recorder.recorded()
	if len(sessions) != 1 {
		t.Fatalf("recorded %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if !s.Simulated {
		t.Error("simulated session not marked simulated")
	}
	if s.SamplesEmitted < 10 || s.SamplesEmitted%10 != 0 {
		t.Errorf("SamplesEmitted = %d, want a positive multiple of the batch size", s.SamplesEmitted)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	recorder := &captureRecorder{}
	loop, err := NewLoop(LoopConfig{
		Sink:        NewBlockRing(8),
		Recorder:    recorder,
		Format:      testFormat(),
		SampleRate:  1000,
		Simulate:    true,
		SimInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	// Stop before any session is a no-op.
	loop.Stop()
	if got := len(recorder.recorded()); got != 0 {
		t.Fatalf("recorded %d sessions before any run, want 0", got)
	}

	if err := loop.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := loop.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	loop.Stop()
	loop.Stop()

	if got := len(recorder.recorded()); got != 1 {
		t.Errorf("recorded %d sessions after double Stop, want 1", got)
	}
}

// wedgedTransport opens fine but never returns from Read until released,
// standing in for hardware that stops responding mid-session.
type wedgedTransport struct {
	release chan struct{}
	once    sync.Once
}

func newWedgedTransport() *wedgedTransport {
	return &wedgedTransport{release: make(chan struct{})}
}

func (w *wedgedTransport) Open(string, serialport.Options) error { return nil }
func (w *wedgedTransport) Close() error                          { return nil }
func (w *wedgedTransport) IsOpen() bool                          { return true }
func (w *wedgedTransport) Write(p []byte) (int, error)           { return len(p), nil }
func (w *wedgedTransport) Available() int                        { return 0 }
func (w *wedgedTransport) Flush() error                          { return nil }

func (w *wedgedTransport) Read(p []byte) (int, error) {
	<-w.release
	return 0, nil
}

func (w *wedgedTransport) Release() {
	w.once.Do(func() { close(w.release) })
}

func TestStopProceedsWhenWorkerWedged(t *testing.T) {
	transport := newWedgedTransport()
	defer transport.Release()

	loop, err := NewLoop(LoopConfig{
		Transport:   transport,
		Sink:        NewBlockRing(8),
		PortPath:    "/dev/ttyTEST0",
		Format:      testFormat(),
		SampleRate:  1000,
		StopTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if err := loop.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := loop.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return with a wedged worker")
	}
	if got := loop.State(); got != StateIdle {
		t.Errorf("state after timed-out Stop = %s, want idle", got)
	}
}

func TestDisconnectStopsRunningLoop(t *testing.T) {
	port := serialport.NewTestablePort()
	loop, err := NewLoop(LoopConfig{
		Transport:  port,
		Sink:       NewBlockRing(8),
		Clock:      timeutil.NewMockClock(time.Unix(1700000000, 0)),
		PortPath:   "/dev/ttyTEST0",
		Format:     testFormat(),
		SampleRate: 1000,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if err := loop.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := loop.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := loop.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := loop.State(); got != StateIdle {
		t.Errorf("state after Disconnect = %s, want idle", got)
	}
	if port.IsOpen() {
		t.Error("transport still open after Disconnect")
	}
}

func TestStatusReflectsReconfiguration(t *testing.T) {
	loop, err := NewLoop(LoopConfig{
		Sink:       NewBlockRing(8),
		Format:     testFormat(),
		SampleRate: 1000,
		Simulate:   true,
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	status := loop.Status()
	if status.State != "idle" {
		t.Errorf("State = %q, want idle", status.State)
	}
	if status.Session != nil {
		t.Error("idle loop reports a session")
	}
	if status.ChannelCount != 2 {
		t.Errorf("ChannelCount = %d, want 2", status.ChannelCount)
	}

	loop.Configure(16, 3, 0.025)
	loop.SetSyncMarker(0xC3, 0x3C)

	status = loop.Status()
	if status.ChannelCount != 16 {
		t.Errorf("ChannelCount after Configure = %d, want 16", status.ChannelCount)
	}
}
