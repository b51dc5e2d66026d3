// Package framing decodes a fixed-size binary frame stream: a two-byte sync
// marker, one big-endian two's complement sample per channel, and an optional
// trailing XOR checksum. The parser keeps a rolling buffer so frames split
// across reads decode once the remainder arrives.
package framing

import "fmt"

const (
	// SyncSize is the length of the frame alignment marker in bytes.
	SyncSize = 2

	// ChecksumSize is the length of the optional trailing checksum.
	ChecksumSize = 1

	// MaxChannels bounds the per-frame channel count.
	MaxChannels = 256

	// MaxBufferLen caps the rolling buffer. When an ingest would exceed it
	// the oldest bytes are dropped first; decoded data stays fresh under
	// sustained overrun.
	MaxBufferLen = 65536

	// DefaultSyncByte1 and DefaultSyncByte2 form the default frame marker.
	DefaultSyncByte1 = 0xA0
	DefaultSyncByte2 = 0x5A
)

// Config describes the wire format of one frame.
type Config struct {
	// ChannelCount is the number of samples per frame.
	ChannelCount int `json:"channel_count"`

	// SampleWidth is the per-sample byte width: 2, 3, or 4.
	SampleWidth int `json:"sample_width"`

	// ScaleFactor converts raw integer samples to physical units
	// (typically microvolts per bit).
	ScaleFactor float64 `json:"scale_factor"`

	// SyncByte1 and SyncByte2 are the frame alignment marker.
	SyncByte1 byte `json:"sync_byte_1"`
	SyncByte2 byte `json:"sync_byte_2"`

	// Checksum enables the trailing XOR byte check.
	Checksum bool `json:"checksum"`
}

// DefaultConfig returns the format most devices ship with: eight 16-bit
// channels at 0.195 uV/bit, no checksum.
func DefaultConfig() Config {
	return Config{
		ChannelCount: 8,
		SampleWidth:  2,
		ScaleFactor:  0.195,
		SyncByte1:    DefaultSyncByte1,
		SyncByte2:    DefaultSyncByte2,
	}
}

// FrameSize returns the total frame length in bytes for this format.
func (c Config) FrameSize() int {
	size := SyncSize + c.ChannelCount*c.SampleWidth
	if c.Checksum {
		size += ChecksumSize
	}
	return size
}

// Validate reports whether the format is decodable.
func (c Config) Validate() error {
	if c.ChannelCount < 1 || c.ChannelCount > MaxChannels {
		return fmt.Errorf("channel count %d out of range [1, %d]", c.ChannelCount, MaxChannels)
	}
	switch c.SampleWidth {
	case 2, 3, 4:
	default:
		return fmt.Errorf("unsupported sample width %d: must be 2, 3, or 4", c.SampleWidth)
	}
	if c.ScaleFactor <= 0 {
		return fmt.Errorf("scale factor must be positive, got %v", c.ScaleFactor)
	}
	if c.FrameSize() > MaxBufferLen {
		return fmt.Errorf("frame size %d exceeds buffer capacity %d", c.FrameSize(), MaxBufferLen)
	}
	return nil
}
