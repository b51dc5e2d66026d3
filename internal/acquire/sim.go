package acquire

import (
	"math"
	"math/rand"
)

// Synthetic waveform parameters: a 10 Hz alpha band at 50 uV and a 20 Hz
// beta band at 20 uV, phase-shifted per channel, plus bounded noise.
const (
	simAlphaHz  = 10.0
	simAlphaAmp = 50.0
	simBetaHz   = 20.0
	simBetaAmp  = 20.0

	// simNoiseRange bounds the additive noise to [-10, +10).
	simNoiseRange = 10.0

	// simChannelPhaseStep is the per-channel phase offset in radians.
	simChannelPhaseStep = 0.1
)

// SignalGenerator produces synthetic multi-channel EEG-like batches when no
// hardware is attached. Phase carries across batches so the waveform is
// continuous for the life of a session.
type SignalGenerator struct {
	channelCount int
	sampleRate   float64
	phase        float64
	rng          *rand.Rand
}

// NewSignalGenerator returns a generator for the given geometry. The seed
// fixes the noise sequence so tests are reproducible.
func NewSignalGenerator(channelCount int, sampleRate float64, seed int64) *SignalGenerator {
	return &SignalGenerator{
		channelCount: channelCount,
		sampleRate:   sampleRate,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// BatchSize returns the number of samples per batch: ~10 ms of data, never
// fewer than one sample.
func (g *SignalGenerator) BatchSize() int {
	n := int(math.Round(g.sampleRate / 100.0))
	if n < 1 {
		n = 1
	}
	return n
}

// Reset rewinds the phase accumulator for a new session.
func (g *SignalGenerator) Reset() {
	g.phase = 0
}

// NextBatch synthesises one channel-major batch and advances the phase.
// The returned slice is freshly allocated; callers own it.
func (g *SignalGenerator) NextBatch() [][]float64 {
	n := g.BatchSize()
	dt := 1.0 / g.sampleRate

	samples := make([][]float64, g.channelCount)
	for ch := range samples {
		samples[ch] = make([]float64, n)
	}

	for s := 0; s < n; s++ {
		alpha := simAlphaAmp * math.Sin(2.0*math.Pi*simAlphaHz*g.phase)
		beta := simBetaAmp * math.Sin(2.0*math.Pi*simBetaHz*g.phase)
		for ch := 0; ch < g.channelCount; ch++ {
			offset := float64(ch) * simChannelPhaseStep
			noise := (g.rng.Float64()*2 - 1) * simNoiseRange
			samples[ch][s] = alpha*math.Cos(offset) + beta*math.Sin(offset) + noise
		}
		g.phase += dt
	}

	return samples
}
