package framing

// Frame is one decoded frame: scaled samples in channel order.
type Frame struct {
	Samples []float64
}

// Parser turns a byte stream into frames. It is not safe for concurrent use;
// callers serialise Ingest against the mutators.
type Parser struct {
	cfg     Config
	buf     []byte
	metrics Metrics
}

// NewParser returns a parser for the given format. The format should be
// validated first; NewParser does not check it.
func NewParser(cfg Config) *Parser {
	return &Parser{
		cfg: cfg,
		buf: make([]byte, 0, MaxBufferLen),
	}
}

// Configure replaces the frame geometry and scale. Buffered bytes survive so
// a mid-stream change only misparses until the next sync marker.
func (p *Parser) Configure(channelCount, sampleWidth int, scaleFactor float64) {
	p.cfg.ChannelCount = channelCount
	p.cfg.SampleWidth = sampleWidth
	p.cfg.ScaleFactor = scaleFactor
}

// SetSyncMarker replaces the two-byte alignment pattern.
func (p *Parser) SetSyncMarker(b1, b2 byte) {
	p.cfg.SyncByte1 = b1
	p.cfg.SyncByte2 = b2
}

// SetChecksum enables or disables the trailing XOR byte.
func (p *Parser) SetChecksum(enabled bool) {
	p.cfg.Checksum = enabled
}

// Config returns the current format.
func (p *Parser) Config() Config {
	return p.cfg
}

// Metrics exposes the parser counters.
func (p *Parser) Metrics() *Metrics {
	return &p.metrics
}

// BufferedBytes returns how many undecoded bytes the parser is holding.
func (p *Parser) BufferedBytes() int {
	return len(p.buf)
}

// Reset discards all buffered bytes. Counters are lifetime and survive.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// Ingest appends data to the rolling buffer and decodes every complete frame
// now available. Incremental feeding yields the same frames as one large
// call; a trailing partial frame stays buffered for the next Ingest.
func (p *Parser) Ingest(data []byte) []Frame {
	p.buf = append(p.buf, data...)
	if excess := len(p.buf) - MaxBufferLen; excess > 0 {
		p.discard(excess)
		p.metrics.OverflowBytes.Add(uint64(excess))
	}

	frameSize := p.cfg.FrameSize()
	var frames []Frame

	for len(p.buf) >= frameSize {
		start := p.findSync()
		if start < 0 {
			// No marker anywhere. Keep the final byte: it may be the
			// first half of a marker split across reads.
			n := len(p.buf) - 1
			p.discard(n)
			p.metrics.ResyncBytes.Add(uint64(n))
			break
		}
		if start > 0 {
			p.discard(start)
			p.metrics.ResyncBytes.Add(uint64(start))
		}
		if len(p.buf) < frameSize {
			break
		}

		if p.cfg.Checksum && !p.validChecksum(p.buf[:frameSize]) {
			p.metrics.ChecksumFailures.Add(1)
			// Skip one byte only. The real frame boundary may sit
			// inside the bytes we just rejected.
			p.discard(1)
			p.metrics.ResyncBytes.Add(1)
			continue
		}

		frames = append(frames, p.decodeFrame(p.buf[:frameSize]))
		p.metrics.FramesDecoded.Add(1)
		p.discard(frameSize)
	}

	return frames
}

// findSync returns the offset of the first sync marker, or -1.
func (p *Parser) findSync() int {
	for i := 0; i+1 < len(p.buf); i++ {
		if p.buf[i] == p.cfg.SyncByte1 && p.buf[i+1] == p.cfg.SyncByte2 {
			return i
		}
	}
	return -1
}

// validChecksum checks the trailing byte against the XOR of everything
// before it, sync marker included.
func (p *Parser) validChecksum(frame []byte) bool {
	var sum byte
	for _, b := range frame[:len(frame)-1] {
		sum ^= b
	}
	return sum == frame[len(frame)-1]
}

// decodeFrame extracts and scales every channel from one complete frame.
func (p *Parser) decodeFrame(frame []byte) Frame {
	samples := make([]float64, p.cfg.ChannelCount)
	for ch := 0; ch < p.cfg.ChannelCount; ch++ {
		offset := SyncSize + ch*p.cfg.SampleWidth
		samples[ch] = p.decodeSample(frame[offset:offset+p.cfg.SampleWidth]) * p.cfg.ScaleFactor
	}
	return Frame{Samples: samples}
}

// decodeSample interprets raw as a big-endian two's complement integer.
func (p *Parser) decodeSample(raw []byte) float64 {
	switch len(raw) {
	case 2:
		return float64(int16(uint16(raw[0])<<8 | uint16(raw[1])))
	case 3:
		v := int32(raw[0])<<16 | int32(raw[1])<<8 | int32(raw[2])
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float64(v)
	case 4:
		return float64(int32(uint32(raw[0])<<24 | uint32(raw[1])<<16 |
			uint32(raw[2])<<8 | uint32(raw[3])))
	default:
		return 0
	}
}

// discard drops the first n buffered bytes.
func (p *Parser) discard(n int) {
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
}
