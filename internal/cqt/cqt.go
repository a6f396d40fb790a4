// Package cqt implements the streaming constant-Q transform feature
// extractor described in spec §4.5: a 105-bin log-magnitude vector
// produced roughly every 200ms by correlating the raw 44.1kHz signal
// against precomputed per-bin windowed complex exponentials.
package cqt

import (
	"math"
	"math/cmplx"

	"github.com/nzoschke/djcore/internal/ring"
)

const (
	sampleRate    = 44100.0
	hopLen        = 8820
	numBins       = 105
	binsPerOctave = 24.0
	fMin          = 65.0

	FrameLen = numBins
)

// Frame is one 105-bin CQT log-magnitude vector.
type Frame []float64

// Extractor streams raw mono 44.1kHz PCM and emits one Frame roughly every
// 8820-sample hop (~200ms), centered on the hop boundary with leading
// zero-padding before sample 0 so frame 0 is centered on the stream's
// first sample.
type Extractor struct {
	buf     *ring.Buffer
	kernels []kernel
	nMax    int

	frameIdx  uint64
	halfLeft  int
	halfRight int
}

// New constructs a CQT Extractor with freshly primed (zeroed) state.
func New() *Extractor {
	kernels := buildKernels(numBins, binsPerOctave, fMin, sampleRate)
	nMax := maxLen(kernels)
	return &Extractor{
		buf:       ring.New(nMax + hopLen),
		kernels:   kernels,
		nMax:      nMax,
		halfLeft:  nMax / 2,
		halfRight: nMax - nMax/2,
	}
}

// Process appends samples and returns zero or more newly completed frames.
//
// The ring buffer only holds nMax+hopLen samples, so a single call
// writing more than hopLen samples without draining would lap the oldest
// unread frame before it's ever extracted. Samples are therefore written
// in hopLen-sized (or smaller) increments, draining every frame that
// completes after each increment, so a caller handing in one enormous
// chunk behaves identically to one handing in many small ones.
func (e *Extractor) Process(samples []float32) []Frame {
	var frames []Frame
	segment := make([]float32, e.nMax)

	for len(samples) > 0 {
		step := len(samples)
		if step > hopLen {
			step = hopLen
		}
		e.buf.Write(samples[:step])
		samples = samples[step:]

		for {
			frameEnd := int64(e.frameIdx)*hopLen + int64(e.halfRight)
			if int64(e.buf.Written()) < frameEnd {
				break
			}
			offset := int(int64(e.buf.Written()) - frameEnd)
			e.buf.Frame(segment, e.nMax, offset)

			frame := make(Frame, numBins)
			for k, kern := range e.kernels {
				n := len(kern.values)
				start := (e.nMax - n) / 2

				var acc complex128
				for t := 0; t < n; t++ {
					acc += complex(float64(segment[start+t]), 0) * kern.values[t]
				}
				mag := cmplx.Abs(acc)
				frame[k] = math.Log1p(mag / (math.Sqrt(float64(n)) * 0.5))
			}

			frames = append(frames, frame)
			e.frameIdx++
		}
	}

	return frames
}

// Reset clears all streaming state so the next frame after Reset behaves
// exactly like the first frame after New.
func (e *Extractor) Reset() {
	e.buf.Reset()
	e.frameIdx = 0
}
