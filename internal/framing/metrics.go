package framing

import "sync/atomic"

// Metrics counts parser events. All fields are atomic so a status endpoint
// can read them while the worker decodes.
type Metrics struct {
	// FramesDecoded counts frames that passed sync and checksum.
	FramesDecoded atomic.Uint64

	// ChecksumFailures counts frames rejected by the XOR check.
	ChecksumFailures atomic.Uint64

	// ResyncBytes counts bytes discarded while hunting for the sync
	// marker, including the single-byte skips after checksum failures.
	ResyncBytes atomic.Uint64

	// OverflowBytes counts oldest-first drops from the rolling buffer.
	OverflowBytes atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	FramesDecoded    uint64 `json:"frames_decoded"`
	ChecksumFailures uint64 `json:"checksum_failures"`
	ResyncBytes      uint64 `json:"resync_bytes"`
	OverflowBytes    uint64 `json:"overflow_bytes"`
}

// Snapshot returns a consistent-enough copy for reporting. Counters are read
// individually; exactness across fields is not required.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesDecoded:    m.FramesDecoded.Load(),
		ChecksumFailures: m.ChecksumFailures.Load(),
		ResyncBytes:      m.ResyncBytes.Load(),
		OverflowBytes:    m.OverflowBytes.Load(),
	}
}
