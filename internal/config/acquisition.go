// Package config loads the acquisition settings file. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/biostream/internal/framing"
	"github.com/banshee-data/biostream/internal/serialport"
)

// DefaultConfigPath is the path to the canonical acquisition defaults file.
const DefaultConfigPath = "config/acquisition.defaults.json"

// AcquisitionConfig is the root configuration. The schema matches the
// /api/status response so a captured status can be replayed as a config.
type AcquisitionConfig struct {
	// Serial connection
	Port     *string `json:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`

	// Frame format
	ChannelCount *int     `json:"channel_count,omitempty"`
	SampleRate   *float64 `json:"sample_rate,omitempty"`
	SampleWidth  *int     `json:"sample_width,omitempty"`
	ScaleFactor  *float64 `json:"scale_factor,omitempty"`
	SyncByte1    *string  `json:"sync_byte_1,omitempty"` // hex string like "0xA0"
	SyncByte2    *string  `json:"sync_byte_2,omitempty"`
	Checksum     *bool    `json:"checksum,omitempty"`

	// Acquisition behaviour
	Simulate       *bool  `json:"simulate,omitempty"`
	SimSeed        *int64 `json:"sim_seed,omitempty"`
	ReadChunkBytes *int   `json:"read_chunk_bytes,omitempty"`
	SinkBlocks     *int   `json:"sink_blocks,omitempty"`
}

// EmptyConfig returns an AcquisitionConfig with all fields unset.
func EmptyConfig() *AcquisitionConfig {
	return &AcquisitionConfig{}
}

// LoadConfig loads an AcquisitionConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadConfig(path string) (*AcquisitionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the set fields without applying defaults; the frame
// format as a whole is validated again by the framing package once
// assembled.
func (c *AcquisitionConfig) Validate() error {
	if c.ChannelCount != nil {
		if *c.ChannelCount < 1 || *c.ChannelCount > framing.MaxChannels {
			return fmt.Errorf("channel_count must be between 1 and %d, got %d", framing.MaxChannels, *c.ChannelCount)
		}
	}
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %f", *c.SampleRate)
	}
	if c.SampleWidth != nil {
		switch *c.SampleWidth {
		case 2, 3, 4:
		default:
			return fmt.Errorf("sample_width must be 2, 3, or 4, got %d", *c.SampleWidth)
		}
	}
	if c.ScaleFactor != nil && *c.ScaleFactor <= 0 {
		return fmt.Errorf("scale_factor must be positive, got %f", *c.ScaleFactor)
	}
	if c.SyncByte1 != nil {
		if _, err := parseByte(*c.SyncByte1); err != nil {
			return fmt.Errorf("invalid sync_byte_1: %w", err)
		}
	}
	if c.SyncByte2 != nil {
		if _, err := parseByte(*c.SyncByte2); err != nil {
			return fmt.Errorf("invalid sync_byte_2: %w", err)
		}
	}
	if c.ReadChunkBytes != nil && *c.ReadChunkBytes < 1 {
		return fmt.Errorf("read_chunk_bytes must be positive, got %d", *c.ReadChunkBytes)
	}
	if c.SinkBlocks != nil && *c.SinkBlocks < 1 {
		return fmt.Errorf("sink_blocks must be positive, got %d", *c.SinkBlocks)
	}
	return nil
}

// parseByte parses a one-byte value from decimal or 0x-prefixed hex.
func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%q is not a byte value: %w", s, err)
	}
	return byte(v), nil
}

// GetPort returns the configured serial device path, or empty for none.
func (c *AcquisitionConfig) GetPort() string {
	if c.Port == nil {
		return ""
	}
	return *c.Port
}

// GetSampleRate returns the sample rate or the default.
func (c *AcquisitionConfig) GetSampleRate() float64 {
	if c.SampleRate == nil {
		return 1000.0
	}
	return *c.SampleRate
}

// GetSimulate returns the simulate flag or the default.
func (c *AcquisitionConfig) GetSimulate() bool {
	if c.Simulate == nil {
		return false
	}
	return *c.Simulate
}

// GetSimSeed returns the simulator seed; zero means seed from the clock.
func (c *AcquisitionConfig) GetSimSeed() int64 {
	if c.SimSeed == nil {
		return 0
	}
	return *c.SimSeed
}

// GetReadChunkBytes returns the serial read chunk size or the default.
func (c *AcquisitionConfig) GetReadChunkBytes() int {
	if c.ReadChunkBytes == nil {
		return 4096
	}
	return *c.ReadChunkBytes
}

// GetSinkBlocks returns the block ring capacity or the default.
func (c *AcquisitionConfig) GetSinkBlocks() int {
	if c.SinkBlocks == nil {
		return 256
	}
	return *c.SinkBlocks
}

// FrameFormat assembles the framing configuration, falling back to the
// stock format for unset fields.
func (c *AcquisitionConfig) FrameFormat() framing.Config {
	format := framing.DefaultConfig()
	if c.ChannelCount != nil {
		format.ChannelCount = *c.ChannelCount
	}
	if c.SampleWidth != nil {
		format.SampleWidth = *c.SampleWidth
	}
	if c.ScaleFactor != nil {
		format.ScaleFactor = *c.ScaleFactor
	}
	if c.SyncByte1 != nil {
		if b, err := parseByte(*c.SyncByte1); err == nil {
			format.SyncByte1 = b
		}
	}
	if c.SyncByte2 != nil {
		if b, err := parseByte(*c.SyncByte2); err == nil {
			format.SyncByte2 = b
		}
	}
	if c.Checksum != nil {
		format.Checksum = *c.Checksum
	}
	return format
}

// PortOptions assembles the serial options; unset fields fall through to
// the serialport defaults via Normalize.
func (c *AcquisitionConfig) PortOptions() serialport.Options {
	var opts serialport.Options
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}
