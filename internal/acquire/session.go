package acquire

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/biostream/internal/framing"
)

// session tracks per-run counters. A fresh session is created on every
// Start so counters and the origin timestamp never leak across runs.
type session struct {
	id        string
	simulated bool
	startedAt time.Time

	samplesEmitted int64

	// origin is subtracted from every emitted timestamp so the stream is
	// reported in session-relative time. originSet distinguishes "no
	// sample emitted yet" from an origin of zero.
	origin    float64
	originSet bool

	// parserBase and droppedBase snapshot the lifetime counters at Start
	// so summaries report per-session deltas.
	parserBase  framing.MetricsSnapshot
	droppedBase uint64
}

func newSession(simulated bool, now time.Time, parserBase framing.MetricsSnapshot, droppedBase uint64) *session {
	return &session{
		id:          uuid.NewString(),
		simulated:   simulated,
		startedAt:   now,
		parserBase:  parserBase,
		droppedBase: droppedBase,
	}
}

// stamp assigns indices and session-relative timestamps for a batch of n
// frames at the given sample rate, advancing the emitted-sample counter.
func (s *session) stamp(n int, sampleRate float64, indices []int64, timestamps []float64) {
	for i := 0; i < n; i++ {
		idx := s.samplesEmitted + int64(i)
		indices[i] = idx
		ts := float64(idx) / sampleRate
		if !s.originSet {
			s.origin = ts
			s.originSet = true
		}
		timestamps[i] = ts - s.origin
	}
	s.samplesEmitted += int64(n)
}

// SessionSummary is the immutable record of a finished (or running)
// session, suitable for the status API and the session log.
type SessionSummary struct {
	ID               string    `json:"id"`
	Simulated        bool      `json:"simulated"`
	ChannelCount     int       `json:"channel_count"`
	SampleRate       float64   `json:"sample_rate"`
	StartedAt        time.Time `json:"started_at"`
	StoppedAt        time.Time `json:"stopped_at,omitzero"`
	SamplesEmitted   int64     `json:"samples_emitted"`
	FramesDecoded    uint64    `json:"frames_decoded"`
	ChecksumFailures uint64    `json:"checksum_failures"`
	BlocksDropped    uint64    `json:"blocks_dropped"`
}

// SessionRecorder persists finished sessions. The loop calls it once per
// Stop; a nil recorder disables persistence.
type SessionRecorder interface {
	RecordSession(SessionSummary) error
}
