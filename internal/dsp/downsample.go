package dsp

import "math"

// downsampleTaps is the length of the windowed-sinc low-pass FIR used to
// halve the sample rate (44100 -> 22050 Hz) ahead of the mel path.
const downsampleTaps = 127

// downsampleCutoff is the normalized cutoff (fraction of input Nyquist).
const downsampleCutoff = 0.45

// Downsampler halves the sample rate with a windowed-sinc FIR (Blackman
// window, cutoff 0.45 of input Nyquist) followed by 2:1 decimation. It
// retains the filter's trailing history between Process calls so that
// feature output is independent of how the caller chunks its input.
type Downsampler struct {
	taps    []float64
	history []float32 // last len(taps)-1 input samples from the previous call
	consumed uint64    // total input samples consumed since construction/reset
}

// NewDownsampler builds a 127-tap FIR downsampler with zeroed history.
func NewDownsampler() *Downsampler {
	taps := designLowpassFIR(downsampleTaps, downsampleCutoff)
	return &Downsampler{
		taps:    taps,
		history: make([]float32, downsampleTaps-1),
	}
}

// designLowpassFIR builds a windowed-sinc low-pass filter of the given
// length and normalized cutoff (fraction of Nyquist), Blackman-windowed
// and normalized to unity DC gain.
func designLowpassFIR(numTaps int, cutoff float64) []float64 {
	taps := make([]float64, numTaps)
	window := Blackman(numTaps)
	m := float64(numTaps-1) / 2
	var sum float64
	for n := 0; n < numTaps; n++ {
		x := float64(n) - m
		var sinc float64
		if x == 0 {
			sinc = cutoff
		} else {
			sinc = math.Sin(math.Pi*cutoff*x) / (math.Pi * x)
		}
		taps[n] = sinc * window[n]
		sum += taps[n]
	}
	for n := range taps {
		taps[n] /= sum
	}
	return taps
}

// Process filters and decimates an arbitrarily sized chunk of 44.1kHz
// samples, returning the 22.05kHz output. One output is produced for each
// even absolute input sample, so a chunk of length N yields N/2 outputs
// for even N, and N/2 rounded up or down (by the stream's current phase)
// for odd N; the very first chunk is padded on the left by the zeroed
// initial history, matching the ring buffers' leading-zero convention.
func (d *Downsampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}

	// extended = history ++ in; local index numTaps-1 holds the first
	// sample of `in`, which is absolute sample d.consumed in the overall
	// stream.
	numTaps := len(d.taps)
	extended := make([]float32, len(d.history)+len(in))
	copy(extended, d.history)
	copy(extended[len(d.history):], in)

	// Decimation phase is anchored to absolute sample 0 so that output
	// picks land on the same absolute samples regardless of how the caller
	// chunks the input: skip one sample here if the first new sample in
	// this chunk falls on an odd absolute index.
	start := numTaps - 1
	if d.consumed%2 != 0 {
		start++
	}

	out := make([]float32, 0, len(in)/2+1)
	for i := start; i < len(extended); i += 2 {
		var acc float64
		for t := 0; t < numTaps; t++ {
			acc += d.taps[t] * float64(extended[i-t])
		}
		out = append(out, float32(acc))
	}

	d.consumed += uint64(len(in))

	// Retain the trailing numTaps-1 samples of the extended stream as the
	// next call's history.
	newHistory := make([]float32, numTaps-1)
	copy(newHistory, extended[len(extended)-(numTaps-1):])
	d.history = newHistory

	return out
}

// Reset zeroes the retained filter history and phase.
func (d *Downsampler) Reset() {
	for i := range d.history {
		d.history[i] = 0
	}
	d.consumed = 0
}
