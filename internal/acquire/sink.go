package acquire

import (
	"sync"
	"sync/atomic"
)

// SampleBlock is one batch of decoded frames handed to the consumer.
// Samples is channel-major: Samples[ch][i] is channel ch's value for the
// i-th frame in the block. Indices, Timestamps, and TTLWords are frame-major
// and FrameCount long. TTLWords is always zero-filled on the serial path:
// no event lines are derived here.
type SampleBlock struct {
	Samples    [][]float64
	Indices    []int64
	Timestamps []float64
	TTLWords   []uint64
	FrameCount int
}

// BlockRing is the bounded sink between the acquisition worker and the
// consumer. One producer, one consumer. Push never blocks: when the ring is
// full the oldest unread block is overwritten and counted as dropped.
// Freshness beats completeness under backpressure.
type BlockRing struct {
	mu     sync.Mutex
	blocks []SampleBlock
	head   int // index of the oldest unread block
	count  int

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// RingStats is a point-in-time copy of the ring counters.
type RingStats struct {
	Pushed  uint64 `json:"pushed"`
	Dropped uint64 `json:"dropped"`
	Depth   int    `json:"depth"`
}

// NewBlockRing returns a ring holding at most capacity blocks.
// Capacity must be at least 1.
func NewBlockRing(capacity int) *BlockRing {
	if capacity < 1 {
		capacity = 1
	}
	return &BlockRing{blocks: make([]SampleBlock, capacity)}
}

// Push appends block, overwriting the oldest unread block when full.
func (r *BlockRing) Push(block SampleBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % len(r.blocks)
	r.blocks[tail] = block
	if r.count == len(r.blocks) {
		// Full: the slot we just wrote was the oldest unread block.
		r.head = (r.head + 1) % len(r.blocks)
		r.dropped.Add(1)
	} else {
		r.count++
	}
	r.pushed.Add(1)
}

// Pop removes and returns the oldest unread block. The second return is
// false when the ring is empty.
func (r *BlockRing) Pop() (SampleBlock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return SampleBlock{}, false
	}
	block := r.blocks[r.head]
	r.blocks[r.head] = SampleBlock{}
	r.head = (r.head + 1) % len(r.blocks)
	r.count--
	return block, true
}

// Len returns the number of unread blocks.
func (r *BlockRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear drops every unread block. Called on Stop so a new session never
// replays stale data.
func (r *BlockRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.blocks {
		r.blocks[i] = SampleBlock{}
	}
	r.head = 0
	r.count = 0
}

// Stats returns the ring counters.
func (r *BlockRing) Stats() RingStats {
	r.mu.Lock()
	depth := r.count
	r.mu.Unlock()
	return RingStats{
		Pushed:  r.pushed.Load(),
		Dropped: r.dropped.Load(),
		Depth:   depth,
	}
}
