package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	out := Softmax([]float64{1, 2, 3})
	var sum float64
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, 2, ArgMax(out))
}

func TestParabolicPeakOnSymmetricPeak(t *testing.T) {
	ys := []float64{0, 1, 0}
	assert.Equal(t, 0.0, ParabolicPeak(ys, 1))
}

func TestParabolicPeakOffsetsTowardLargerNeighbor(t *testing.T) {
	ys := []float64{0, 2, 1.5}
	off := ParabolicPeak(ys, 1)
	assert.Greater(t, off, 0.0) // right neighbor (1.5) exceeds left (0), so the true peak sits past index 1
}

func TestHannWindowEndpointsZero(t *testing.T) {
	w := Hann(8)
	assert.InDelta(t, 0, w[0], 1e-9)
	assert.InDelta(t, 0, w[len(w)-1], 1e-9)
}

func TestFFTRoundTrip(t *testing.T) {
	n := 1411
	f := NewFFT(n)
	in := make([]float64, n)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * float64(i) / 64)
	}
	coeffs := f.Forward(in)
	out := f.Inverse(coeffs)
	require.Len(t, out, n)
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-6)
	}
}

func TestDownsamplerChunkInvariance(t *testing.T) {
	n := 4410
	signal := make([]float32, n)
	for i := range signal {
		signal[i] = float32(math.Sin(2 * math.Pi * float64(i) * 1000 / 44100))
	}

	whole := NewDownsampler().Process(signal)

	chunked := NewDownsampler()
	var out []float32
	for i := 0; i < n; i += 777 {
		end := i + 777
		if end > n {
			end = n
		}
		out = append(out, chunked.Process(signal[i:end])...)
	}

	require.Equal(t, len(whole), len(out))
	for i := range whole {
		assert.InDelta(t, whole[i], out[i], 1e-5)
	}
}
