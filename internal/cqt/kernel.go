package cqt

import (
	"math"

	"github.com/nzoschke/djcore/internal/dsp"
)

// kernel is one bin's precomputed windowed complex exponential: a periodic
// Hann window of length n multiplied by exp(+2*pi*i*freq*t/sampleRate).
type kernel struct {
	freq   float64
	values []complex128 // length n
}

// buildKernels precomputes one kernel per bin, logarithmically spaced at
// binsPerOctave steps starting at fMin, with length derived from the
// constant-Q quality factor Q = 1/(2^(1/binsPerOctave)-1).
func buildKernels(numBins int, binsPerOctave, fMin, sampleRate float64) []kernel {
	q := 1 / (math.Exp2(1/binsPerOctave) - 1)

	kernels := make([]kernel, numBins)
	for k := 0; k < numBins; k++ {
		freq := fMin * math.Exp2(float64(k)/binsPerOctave)
		n := int(math.Round(q * sampleRate / freq))
		if n < 1 {
			n = 1
		}

		window := dsp.PeriodicHann(n)
		values := make([]complex128, n)
		for t := 0; t < n; t++ {
			phase := 2 * math.Pi * freq * float64(t) / sampleRate
			values[t] = complex(window[t]*math.Cos(phase), window[t]*math.Sin(phase))
		}
		kernels[k] = kernel{freq: freq, values: values}
	}
	return kernels
}

// maxLen returns the longest kernel length across bins (the lowest-
// frequency bin, by construction).
func maxLen(kernels []kernel) int {
	max := 0
	for _, k := range kernels {
		if len(k.values) > max {
			max = len(k.values)
		}
	}
	return max
}
