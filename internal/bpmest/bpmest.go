// Package bpmest implements the activation ring buffer and FFT-based
// autocorrelation BPM estimator described in spec §4.8: a fixed-size
// history of (beat, downbeat) activations that periodically recomputes a
// cached tempo estimate via autocorrelation with octave correction.
package bpmest

import (
	"math"

	"github.com/nzoschke/djcore/internal/dsp"
)

const (
	bufferSize = 512
	fps        = 50.0
	minBPM     = 60.0
	maxBPM     = 180.0

	// minCount and recomputeCadence gate the recompute, per spec §4.8.
	minCount        = 100
	recomputeCadence = 25
)

// Buffer is a fixed-capacity ring of (beat, downbeat) activation pairs
// with a cached, periodically recomputed BPM estimate.
type Buffer struct {
	beats     [bufferSize]float32
	downbeats [bufferSize]float32
	writePos  int
	count     int

	framesSinceCompute int
	cachedBPM          float64
}

// New constructs an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Push inserts one (beat, downbeat) pair and, if the buffer has at least
// minCount entries and recomputeCadence frames have accumulated since the
// last recompute, refreshes the cached BPM. It reports whether a
// recompute occurred.
func (b *Buffer) Push(beat, downbeat float32) bool {
	b.beats[b.writePos] = beat
	b.downbeats[b.writePos] = downbeat
	b.writePos = (b.writePos + 1) % bufferSize
	if b.count < bufferSize {
		b.count++
	}
	b.framesSinceCompute++

	if b.count >= minCount && b.framesSinceCompute >= recomputeCadence {
		b.cachedBPM = b.recompute()
		b.framesSinceCompute = 0
		return true
	}
	return false
}

// BPM returns the most recently cached estimate, or 0 if fewer than
// minCount frames have ever been accumulated.
func (b *Buffer) BPM() float64 {
	return b.cachedBPM
}

// Count returns the number of activation pairs currently held.
func (b *Buffer) Count() int {
	return b.count
}

// Reset clears the ring, count, cache, and compute counter.
func (b *Buffer) Reset() {
	*b = Buffer{}
}

// ordered returns the stored pairs in insertion (oldest-first) order.
func (b *Buffer) ordered() (beats, downbeats []float32) {
	beats = make([]float32, b.count)
	downbeats = make([]float32, b.count)

	start := 0
	if b.count == bufferSize {
		start = b.writePos
	}
	for i := 0; i < b.count; i++ {
		idx := (start + i) % bufferSize
		beats[i] = b.beats[idx]
		downbeats[i] = b.downbeats[idx]
	}
	return beats, downbeats
}

func (b *Buffer) recompute() float64 {
	beats, downbeats := b.ordered()
	n := len(beats)

	signal := make([]float64, n)
	for i := range signal {
		signal[i] = float64(beats[i] + downbeats[i])
	}

	fftLen := dsp.NextPowerOfTwo(2 * n)
	corr := dsp.Autocorrelate(signal, fftLen)

	lag0 := corr[0] + 1e-8
	for i := range corr {
		corr[i] /= lag0
	}

	minLag := int(math.Floor(fps * 60 / maxBPM))
	maxLag := int(math.Floor(fps * 60 / minBPM))
	if maxLag >= len(corr) {
		maxLag = len(corr) - 1
	}
	if minLag < 1 {
		minLag = 1
	}
	if minLag > maxLag {
		return b.cachedBPM
	}

	bestLag := minLag
	for lag := minLag + 1; lag <= maxLag; lag++ {
		if corr[lag] > corr[bestLag] {
			bestLag = lag
		}
	}

	refined := float64(bestLag) + dsp.ParabolicPeak(corr, bestLag)
	if refined <= 0 {
		refined = float64(bestLag)
	}

	bpm := math.Round(60 * fps / refined)
	return octaveCorrect(bpm)
}

// octaveCorrect implements spec §4.8 step 7: nudge a tempo estimate that
// fell into the wrong octave of the DJ-typical [75, 165] BPM range.
func octaveCorrect(bpm float64) float64 {
	switch {
	case bpm < 75 && bpm*2 >= 75 && bpm*2 <= 165:
		return bpm * 2
	case bpm > 165 && bpm/2 >= 75 && bpm/2 <= 165:
		return bpm / 2
	default:
		return bpm
	}
}
