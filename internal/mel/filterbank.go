package mel

import "math"

// filterbank builds the triangular log-frequency filterbank described in
// spec §4.4: centers at fRef*2^(k/24) anchored so the first of numBands
// bands sits at fMin, each covering [prevCenter, nextCenter) rising 0->1
// to its own center and falling 1->0 to the next, L1-normalized so each
// row sums to 1. A band whose edges span fewer than two bins is replaced
// by a single-bin filter at its rounded midpoint.
func filterbank(numBands, numBins int, sampleRate, fftLen, fMin, fRef float64) [][]float64 {
	bandsPerOctave := 24.0
	kMin := math.Round(bandsPerOctave * math.Log2(fMin/fRef))

	// points holds numBands centers plus one extrapolated edge on each
	// side, all in the same log-frequency grid.
	points := make([]float64, numBands+2)
	for i := range points {
		k := kMin - 1 + float64(i)
		points[i] = fRef * math.Exp2(k/bandsPerOctave)
	}

	freqPerBin := sampleRate / fftLen
	toBin := func(freq float64) float64 {
		return freq / freqPerBin
	}

	filters := make([][]float64, numBands)
	for i := 0; i < numBands; i++ {
		left := toBin(points[i])
		center := toBin(points[i+1])
		right := toBin(points[i+2])

		// Widen degenerate bands so at least one bin is non-zero.
		if right-left < 2 {
			center = math.Round((left + right) / 2)
			left = center - 1
			right = center + 1
		}

		row := make([]float64, numBins)
		var sum float64
		for b := 0; b < numBins; b++ {
			fb := float64(b)
			var w float64
			switch {
			case fb <= left || fb >= right:
				w = 0
			case fb <= center:
				if center > left {
					w = (fb - left) / (center - left)
				} else {
					w = 1
				}
			default:
				if right > center {
					w = (right - fb) / (right - center)
				} else {
					w = 1
				}
			}
			row[b] = w
			sum += w
		}
		if sum > 0 {
			for b := range row {
				row[b] /= sum
			}
		}
		filters[i] = row
	}
	return filters
}
