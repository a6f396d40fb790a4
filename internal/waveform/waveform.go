// Package waveform computes the coarse visualization view behind the
// onWaveform event (spec §6): a 128-point downsampled peak view plus
// overall peak/RMS and a three-band (low/mid/high) energy split,
// generalizing the teacher's GenerateWaveform peak/trough downsampling
// loop with a pair of cheap first-order IIR band splitters.
package waveform

import "math"

const numSamples = 128

// Frame is one onWaveform payload.
type Frame struct {
	Samples [numSamples]float32
	Peak    float32
	RMS     float32
	Low     float32
	Mid     float32
	High    float32
}

// Extractor carries the low-pass/high-pass filter state for the band
// splitters across calls so chunk boundaries don't introduce audible
// discontinuities in the reported band energies.
type Extractor struct {
	sampleRate float64
	lpState    float64
	hpPrev     float64
	hpState    float64
}

// New constructs an Extractor for the given input sample rate.
func New(sampleRate int) *Extractor {
	return &Extractor{sampleRate: float64(sampleRate)}
}

// Compute downsamples samples to a fixed 128-point peak view and derives
// peak, RMS, and low/mid/high band energies (summing to 1 when the chunk
// is non-silent). It is a no-op-safe zero Frame for an empty chunk.
func (e *Extractor) Compute(samples []float32) Frame {
	var f Frame
	if len(samples) == 0 {
		return f
	}

	bucketSize := len(samples) / numSamples
	if bucketSize < 1 {
		bucketSize = 1
	}
	for b := 0; b < numSamples; b++ {
		start := b * bucketSize
		if start >= len(samples) {
			break
		}
		end := start + bucketSize
		if end > len(samples) {
			end = len(samples)
		}
		var peak float32
		for _, s := range samples[start:end] {
			if a := abs32(s); a > peak {
				peak = a
			}
		}
		f.Samples[b] = peak
	}

	var sumSquares float64
	var overallPeak float32
	for _, s := range samples {
		if a := abs32(s); a > overallPeak {
			overallPeak = a
		}
		sumSquares += float64(s) * float64(s)
	}
	f.Peak = overallPeak
	f.RMS = float32(math.Sqrt(sumSquares / float64(len(samples))))

	lowEnergy, midEnergy, highEnergy := e.bandEnergies(samples)
	total := lowEnergy + midEnergy + highEnergy
	if total > 0 {
		f.Low = float32(lowEnergy / total)
		f.Mid = float32(midEnergy / total)
		f.High = float32(highEnergy / total)
	}

	return f
}

// bandEnergies splits samples into low (<250Hz), high (>4000Hz), and mid
// (the remainder) energy via one-pole filters, carrying filter state
// across calls.
func (e *Extractor) bandEnergies(samples []float32) (low, mid, high float64) {
	const lowCutoffHz = 250.0
	const highCutoffHz = 4000.0

	lowAlpha := onePoleAlpha(lowCutoffHz, e.sampleRate)
	// The high-pass form below takes RC/(RC+dt), the complement of the
	// low-pass coefficient.
	highAlpha := 1 - onePoleAlpha(highCutoffHz, e.sampleRate)

	var totalEnergy float64
	for _, sf := range samples {
		s := float64(sf)
		totalEnergy += s * s

		e.lpState += lowAlpha * (s - e.lpState)
		low += e.lpState * e.lpState

		// One-pole high-pass: y[n] = alpha*(y[n-1] + x[n] - x[n-1]).
		e.hpState = highAlpha * (e.hpState + s - e.hpPrev)
		e.hpPrev = s
		high += e.hpState * e.hpState
	}

	mid = totalEnergy - low - high
	if mid < 0 {
		mid = 0
	}
	return low, mid, high
}

func onePoleAlpha(cutoffHz, sampleRate float64) float64 {
	dt := 1 / sampleRate
	rc := 1 / (2 * math.Pi * cutoffHz)
	return dt / (rc + dt)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
