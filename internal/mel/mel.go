// Package mel implements the streaming log-mel feature extractor described
// in spec §4.4: a 272-dimensional frame (136 log-magnitude mel bands plus
// their 136 half-wave-rectified first differences) computed every hop at a
// fixed 22.05kHz rate, independent of how the caller chunks its input.
package mel

import (
	"math"

	"github.com/nzoschke/djcore/internal/dsp"
	"github.com/nzoschke/djcore/internal/ring"
)

const (
	sampleRate = 22050.0
	windowLen  = 1411
	hopLen     = 441
	numBands   = 136
	numBins    = 705 // first 705 FFT bins, Nyquist excluded
	fMin       = 30.0
	fMax       = 17000.0
	fRef       = 440.0

	// Frame.length is 2*numBands: the log-mel half followed by the
	// rectified-difference half.
	FrameLen = 2 * numBands
)

// Frame is one 272-dim mel feature vector: Frame[:136] is log10(1+energy)
// per band, Frame[136:] is max(0, current-previous) per band.
type Frame []float64

// Extractor streams mono 22.05kHz PCM and emits one Frame per 441-sample
// hop, centered on the hop boundary with leading zero-padding before
// sample 0 so frame 0 is centered on the stream's first sample.
type Extractor struct {
	buf     *ring.Buffer
	fft     *dsp.FFT
	window  []float64
	filters [][]float64

	frameIdx   uint64
	prevLog    []float64
	havePrev   bool
	halfLeft   int
	halfRight  int
}

// New constructs a mel Extractor with freshly primed (zeroed) state.
func New() *Extractor {
	e := &Extractor{
		buf:       ring.New(windowLen + hopLen),
		fft:       dsp.NewFFT(windowLen),
		window:    dsp.Hann(windowLen),
		filters:   filterbank(numBands, numBins, sampleRate, windowLen, fMin, fRef),
		prevLog:   make([]float64, numBands),
		halfLeft:  windowLen / 2,
		halfRight: windowLen - windowLen/2,
	}
	return e
}

// Process appends samples and returns zero or more newly completed frames.
// Output is bit-identical regardless of how the input stream is chunked.
//
// The ring buffer only holds windowLen+hopLen samples, so a single call
// writing more than hopLen samples without draining would lap the oldest
// unread frame before it's ever extracted. Samples are therefore written
// in hopLen-sized (or smaller) increments, draining every frame that
// completes after each increment, so a caller handing in one enormous
// chunk behaves identically to one handing in many small ones.
func (e *Extractor) Process(samples []float32) []Frame {
	var frames []Frame
	windowed := make([]float64, windowLen)
	raw := make([]float32, windowLen)

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
			e.buf.Frame(raw, windowLen, offset)

			for i, s := range raw {
				windowed[i] = float64(s) * e.window[i]
			}

			coeffs := e.fft.Forward(windowed)
			mags := make([]float64, numBins)
			for i := 0; i < numBins; i++ {
				mags[i] = abs(coeffs[i])
			}

			frame := make(Frame, FrameLen)
			for b := 0; b < numBands; b++ {
				var energy float64
				row := e.filters[b]
				for i, w := range row {
					if w != 0 {
						energy += w * mags[i]
					}
				}
				logVal := math.Log10(1 + energy)
				frame[b] = logVal

				if e.havePrev {
					diff := logVal - e.prevLog[b]
					if diff < 0 {
						diff = 0
					}
					frame[numBands+b] = diff
				} else {
					frame[numBands+b] = 0
				}
				e.prevLog[b] = logVal
			}
			e.havePrev = true

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
	e.havePrev = false
	for i := range e.prevLog {
		e.prevLog[i] = 0
	}
}

func abs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}
