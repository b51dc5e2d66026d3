// Package acquire drives the framing engine from a serial transport or a
// synthetic generator into a bounded block ring.
//
// One worker goroutine owns the hot path. Control calls (Connect, Start,
// Stop, Configure) come from a separate goroutine; a mutex serialises their
// access to the parser and session so reconfiguration never races a decode
// in progress.
package acquire

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/biostream/internal/framing"
	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/serialport"
	"github.com/banshee-data/biostream/internal/timeutil"
)

const (
	// DefaultReadChunkBytes is the per-poll serial read size.
	DefaultReadChunkBytes = 4096

	// DefaultIdleSleep paces the worker when a poll yields no bytes.
	DefaultIdleSleep = time.Millisecond

	// DefaultSimInterval paces simulated batches to real time (~10 ms of
	// samples per batch).
	DefaultSimInterval = 10 * time.Millisecond

	// DefaultStopTimeout bounds how long Stop waits for the worker before
	// proceeding with teardown anyway.
	DefaultStopTimeout = 500 * time.Millisecond
)

// LoopConfig assembles everything the acquisition loop needs.
type LoopConfig struct {
	// Transport is the byte source in hardware mode. Ignored when
	// Simulate is set.
	Transport serialport.Transport

	// Sink receives one SampleBlock per worker iteration that produced
	// frames.
	Sink *BlockRing

	// Clock paces the worker. Nil means the real clock.
	Clock timeutil.Clock

	// Recorder persists session summaries on Stop. Nil disables.
	Recorder SessionRecorder

	// PortPath is the serial device identifier, e.g. /dev/ttyUSB0.
	PortPath string

	// PortOptions carries baud rate and framing for the serial open.
	PortOptions serialport.Options

	// Format describes the wire frames to decode.
	Format framing.Config

	// SampleRate in Hz drives timestamp synthesis and simulator pacing.
	SampleRate float64

	// Simulate selects the synthetic generator instead of the transport.
	Simulate bool

	// SimSeed fixes the simulator noise sequence; 0 seeds from the clock.
	SimSeed int64

	ReadChunkBytes int
	IdleSleep      time.Duration
	SimInterval    time.Duration
	StopTimeout    time.Duration
}

// Loop orchestrates {Transport + FrameParser} or the signal generator
// through the Idle/Connected/Running lifecycle and publishes decoded
// blocks to the sink.
type Loop struct {
	cfg   LoopConfig
	clock timeutil.Clock

	state atomic.Int32
	stop  atomic.Bool

	// mu guards the parser, generator, and session against concurrent
	// access from the worker and the control goroutine.
	mu     sync.Mutex
	parser *framing.Parser
	gen    *SignalGenerator
	sess   *session

	done    chan struct{}
	readBuf []byte

	// lastOverflow tracks the parser overflow counter so the worker can
	// warn once per loss burst instead of per byte.
	lastOverflow uint64
}

// NewLoop validates cfg and returns an idle loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame format: %w", err)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", cfg.SampleRate)
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if !cfg.Simulate && cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required unless simulating")
	}

	if cfg.ReadChunkBytes <= 0 {
		cfg.ReadChunkBytes = DefaultReadChunkBytes
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = DefaultIdleSleep
	}
	if cfg.SimInterval <= 0 {
		cfg.SimInterval = DefaultSimInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	seed := cfg.SimSeed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	l := &Loop{
		cfg:     cfg,
		clock:   clock,
		parser:  framing.NewParser(cfg.Format),
		gen:     NewSignalGenerator(cfg.Format.ChannelCount, cfg.SampleRate, seed),
		readBuf: make([]byte, cfg.ReadChunkBytes),
	}
	l.state.Store(int32(StateIdle))
	return l, nil
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Connect establishes the data source. In simulation mode it succeeds
// immediately; otherwise it opens the serial transport. Failure is
// non-fatal and leaves the loop Idle for a retry.
func (l *Loop) Connect() error {
	switch l.State() {
	case StateIdle, StateConnected:
	default:
		return fmt.Errorf("cannot connect while %s", l.State())
	}
	l.state.Store(int32(StateConnecting))

	if l.cfg.Simulate {
		l.state.Store(int32(StateConnected))
		monitoring.Logf("acquisition connected (simulation mode, %d channels @ %g Hz)",
			l.cfg.Format.ChannelCount, l.cfg.SampleRate)
		return nil
	}

	if l.cfg.PortPath == "" {
		l.state.Store(int32(StateIdle))
		return fmt.Errorf("no serial port configured")
	}
	if err := l.cfg.Transport.Open(l.cfg.PortPath, l.cfg.PortOptions); err != nil {
		l.state.Store(int32(StateIdle))
		return fmt.Errorf("connect failed: %w", err)
	}

	if err := l.cfg.Transport.Flush(); err != nil {
		monitoring.Logf("flush after open failed: %v", err)
	}
	l.mu.Lock()
	l.parser.Reset()
	l.mu.Unlock()

	l.state.Store(int32(StateConnected))
	monitoring.Logf("acquisition connected on %s", l.cfg.PortPath)
	return nil
}

// Disconnect stops acquisition if running and releases the transport.
func (l *Loop) Disconnect() error {
	if l.State() == StateRunning {
		l.Stop()
	}
	if l.State() != StateConnected {
		return nil
	}
	if !l.cfg.Simulate {
		if err := l.cfg.Transport.Close(); err != nil {
			monitoring.Logf("transport close failed: %v", err)
		}
	}
	l.mu.Lock()
	l.parser.Reset()
	l.mu.Unlock()
	l.state.Store(int32(StateIdle))
	return nil
}

// Start spawns the worker. It requires a Connected loop, resets the
// per-session counters, and flushes any stale transport bytes so the
// session starts on a frame boundary.
func (l *Loop) Start() error {
	if l.State() != StateConnected {
		return fmt.Errorf("cannot start while %s", l.State())
	}

	l.mu.Lock()
	l.sess = newSession(l.cfg.Simulate, l.clock.Now(),
		l.parser.Metrics().Snapshot(), l.cfg.Sink.Stats().Dropped)
	l.gen.Reset()
	l.parser.Reset()
	l.mu.Unlock()

	if !l.cfg.Simulate {
		if err := l.cfg.Transport.Flush(); err != nil {
			monitoring.Logf("flush before start failed: %v", err)
		}
	}

	l.stop.Store(false)
	l.done = make(chan struct{})
	l.state.Store(int32(StateRunning))
	go l.run(l.done)

	monitoring.Logf("acquisition started (session %s)", l.sessionID())
	return nil
}

// Stop requests cooperative worker exit, waits up to StopTimeout, then
// tears down regardless. Stop is idempotent; calling it while not Running
// is a no-op.
func (l *Loop) Stop() {
	if l.State() != StateRunning {
		return
	}
	l.state.Store(int32(StateStopping))
	l.stop.Store(true)

	select {
	case <-l.done:
	case <-time.After(l.cfg.StopTimeout):
		monitoring.Logf("worker did not exit within %v; proceeding with teardown", l.cfg.StopTimeout)
	}

	if !l.cfg.Simulate {
		if err := l.cfg.Transport.Close(); err != nil {
			monitoring.Logf("transport close failed: %v", err)
		}
	}
	l.cfg.Sink.Clear()

	summary := l.summarize(l.clock.Now())
	if l.cfg.Recorder != nil {
		if err := l.cfg.Recorder.RecordSession(summary); err != nil {
			monitoring.Logf("failed to record session %s: %v", summary.ID, err)
		}
	}

	l.state.Store(int32(StateIdle))
	monitoring.Logf("acquisition stopped (session %s, %d samples)", summary.ID, summary.SamplesEmitted)
}

// Configure updates the decode parameters. Takes effect on the worker's
// next ingest; callers changing the frame size must Stop/Start around it.
func (l *Loop) Configure(channelCount, sampleWidth int, scaleFactor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parser.Configure(channelCount, sampleWidth, scaleFactor)
	l.cfg.Format.ChannelCount = channelCount
	l.cfg.Format.SampleWidth = sampleWidth
	l.cfg.Format.ScaleFactor = scaleFactor
}

// SetSyncMarker updates the frame alignment pattern.
func (l *Loop) SetSyncMarker(b1, b2 byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parser.SetSyncMarker(b1, b2)
	l.cfg.Format.SyncByte1 = b1
	l.cfg.Format.SyncByte2 = b2
}

// Status is the loop's externally visible condition.
type Status struct {
	State        string                  `json:"state"`
	PortPath     string                  `json:"port,omitempty"`
	Simulate     bool                    `json:"simulate"`
	ChannelCount int                     `json:"channel_count"`
	SampleRate   float64                 `json:"sample_rate"`
	Session      *SessionSummary         `json:"session,omitempty"`
	Parser       framing.MetricsSnapshot `json:"parser"`
	Ring         RingStats               `json:"ring"`
}

// Status returns a snapshot of state, session counters, and metrics.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	status := Status{
		State:        l.State().String(),
		PortPath:     l.cfg.PortPath,
		Simulate:     l.cfg.Simulate,
		ChannelCount: l.cfg.Format.ChannelCount,
		SampleRate:   l.cfg.SampleRate,
		Parser:       l.parser.Metrics().Snapshot(),
		Ring:         l.cfg.Sink.Stats(),
	}
	if l.sess != nil {
		summary := l.summarizeLocked(time.Time{})
		status.Session = &summary
	}
	return status
}

// run is the worker loop. It checks the exit flag once per iteration and
// returns promptly when Stop is requested.
func (l *Loop) run(done chan struct{}) {
	defer close(done)
	for !l.stop.Load() {
		if l.cfg.Simulate {
			l.simIteration()
		} else {
			l.serialIteration()
		}
	}
}

// serialIteration polls the transport once, feeds the parser, and pushes a
// block when at least one frame decoded. No bytes means a brief sleep so
// the loop never busy-spins.
func (l *Loop) serialIteration() {
	n, err := l.cfg.Transport.Read(l.readBuf)
	if err != nil {
		monitoring.Logf("serial read failed: %v", err)
		l.clock.Sleep(l.cfg.IdleSleep)
		return
	}
	if n == 0 {
		l.clock.Sleep(l.cfg.IdleSleep)
		return
	}

	l.mu.Lock()
	frames := l.parser.Ingest(l.readBuf[:n])
	if overflow := l.parser.Metrics().OverflowBytes.Load(); overflow > l.lastOverflow {
		monitoring.Logf("warning: rolling buffer overflow, %d bytes lost", overflow-l.lastOverflow)
		l.lastOverflow = overflow
	}
	if len(frames) == 0 {
		l.mu.Unlock()
		return
	}
	block := l.blockFromFrames(frames)
	l.mu.Unlock()

	l.cfg.Sink.Push(block)
	monitoring.Debugf("pushed block of %d frames", block.FrameCount)
}

// simIteration synthesises ~10 ms of samples, pushes one block, and sleeps
// to pace the stream to real time.
func (l *Loop) simIteration() {
	l.mu.Lock()
	samples := l.gen.NextBatch()
	n := len(samples[0])
	block := SampleBlock{
		Samples:    samples,
		Indices:    make([]int64, n),
		Timestamps: make([]float64, n),
		TTLWords:   make([]uint64, n),
		FrameCount: n,
	}
	l.sess.stamp(n, l.cfg.SampleRate, block.Indices, block.Timestamps)
	l.mu.Unlock()

	l.cfg.Sink.Push(block)
	l.clock.Sleep(l.cfg.SimInterval)
}

// blockFromFrames converts decoded frames into a channel-major block with
// synthesized indices and session-relative timestamps. Caller holds mu.
func (l *Loop) blockFromFrames(frames []framing.Frame) SampleBlock {
	n := len(frames)
	channels := len(frames[0].Samples)

	samples := make([][]float64, channels)
	for ch := range samples {
		samples[ch] = make([]float64, n)
	}
	for i, frame := range frames {
		for ch := 0; ch < channels; ch++ {
			samples[ch][i] = frame.Samples[ch]
		}
	}

	block := SampleBlock{
		Samples:    samples,
		Indices:    make([]int64, n),
		Timestamps: make([]float64, n),
		TTLWords:   make([]uint64, n),
		FrameCount: n,
	}
	l.sess.stamp(n, l.cfg.SampleRate, block.Indices, block.Timestamps)
	return block
}

func (l *Loop) sessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess == nil {
		return ""
	}
	return l.sess.id
}

func (l *Loop) summarize(stoppedAt time.Time) SessionSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summarizeLocked(stoppedAt)
}

// summarizeLocked builds a summary from the live session, with parser and
// ring counters rebased to the session start. Caller holds mu.
func (l *Loop) summarizeLocked(stoppedAt time.Time) SessionSummary {
	parser := l.parser.Metrics().Snapshot()
	summary := SessionSummary{
		ChannelCount: l.cfg.Format.ChannelCount,
		SampleRate:   l.cfg.SampleRate,
		StoppedAt:    stoppedAt,
	}
	if l.sess != nil {
		summary.ID = l.sess.id
		summary.Simulated = l.sess.simulated
		summary.StartedAt = l.sess.startedAt
		summary.SamplesEmitted = l.sess.samplesEmitted
		summary.FramesDecoded = parser.FramesDecoded - l.sess.parserBase.FramesDecoded
		summary.ChecksumFailures = parser.ChecksumFailures - l.sess.parserBase.ChecksumFailures
		summary.BlocksDropped = l.cfg.Sink.Stats().Dropped - l.sess.droppedBase
	}
	return summary
}
