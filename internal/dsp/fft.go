// Package dsp provides the arbitrary-length FFT primitive, windowing
// functions, the streaming 2:1 downsampler, and small numerical helpers
// (softmax, parabolic peak interpolation) shared by the mel, CQT, and
// autocorrelation components.
package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// FFT wraps a gonum real-to-complex FFT instance for a fixed length. Each
// extractor owns one instance per window size it needs; there is no global
// FFT cache.
type FFT struct {
	n   int
	fft *fourier.FFT
}

// NewFFT creates an FFT primitive for real input of length n. n need not be
// a power of two.
func NewFFT(n int) *FFT {
	return &FFT{n: n, fft: fourier.NewFFT(n)}
}

// Len returns the transform length this instance was built for.
func (f *FFT) Len() int {
	return f.n
}

// Forward computes the real-to-complex DFT of in (len(in) must equal Len()),
// returning n/2+1 complex coefficients.
func (f *FFT) Forward(in []float64) []complex128 {
	return f.fft.Coefficients(nil, in)
}

// Inverse computes the inverse real DFT from n/2+1 complex coefficients,
// returning n real samples.
func (f *FFT) Inverse(coeffs []complex128) []float64 {
	out := f.fft.Sequence(nil, coeffs)
	// gonum's inverse is unnormalized; scale by 1/n so Inverse(Forward(x)) == x.
	scale := 1 / float64(f.n)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Autocorrelate computes the autocorrelation of a real signal via
// FFT(signal) * conj(FFT(signal)), zero-padded to fftLen, then an inverse
// transform. Returns fftLen real values; index 0 is the zero-lag energy.
func Autocorrelate(signal []float64, fftLen int) []float64 {
	f := NewFFT(fftLen)
	padded := make([]float64, fftLen)
	copy(padded, signal)

	coeffs := f.Forward(padded)
	power := make([]complex128, len(coeffs))
	for i, c := range coeffs {
		power[i] = complex(cmplx.Abs(c)*cmplx.Abs(c), 0)
	}
	return f.Inverse(power)
}

// ParabolicPeak refines an integer-lag peak at index i within ys using
// parabolic interpolation over ys[i-1], ys[i], ys[i+1]. Returns the
// fractional offset to add to i; falls back to 0 (the integer lag) if the
// denominator is degenerate.
func ParabolicPeak(ys []float64, i int) float64 {
	if i <= 0 || i >= len(ys)-1 {
		return 0
	}
	left, center, right := ys[i-1], ys[i], ys[i+1]
	denom := left - 2*center + right
	if math.Abs(denom) < 1e-12 {
		return 0
	}
	return 0.5 * (left - right) / denom
}

// Softmax converts logits to a probability distribution using the
// numerically stable max-subtraction formula.
func Softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - max)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax returns the index of the largest element in xs.
func ArgMax(xs []float64) int {
	return floats.MaxIdx(xs)
}
