package dsp

import "math"

// Hann returns a symmetric Hann window of the given size:
// w[n] = 0.5 * (1 - cos(2*pi*n/(N-1))).
func Hann(size int) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}
	for n := range w {
		w[n] = 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(size-1)))
	}
	return w
}

// PeriodicHann returns a periodic (DFT-even) Hann window of the given
// length, used by the CQT kernels where true periodicity avoids spectral
// leakage at the kernel boundary: w[n] = 0.5 * (1 - cos(2*pi*n/N)).
func PeriodicHann(size int) []float64 {
	w := make([]float64, size)
	for n := range w {
		w[n] = 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(size)))
	}
	return w
}

// Blackman returns a Blackman window of the given size, used by the
// downsampling FIR design.
func Blackman(size int) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}
	for n := range w {
		x := 2 * math.Pi * float64(n) / float64(size-1)
		w[n] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return w
}
