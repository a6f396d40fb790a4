// Package audioio loads a demo audio file into mono float32 PCM for the
// CLI's offline "listen" subcommand, which feeds the resulting samples
// into the engine as if they arrived live. It is not part of the
// real-time core itself.
package audioio

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"github.com/nzoschke/djcore/internal/engineerr"
)

// goMP3DecoderDelay compensates for the extra samples go-mp3 emits
// relative to the LAME encoder delay recorded in the file's header.
const goMP3DecoderDelay = 924

// defaultEncoderDelay is used when no LAME header is present to report
// the encoder's own delay.
const defaultEncoderDelay = 576

// LoadMono decodes an audio file to mono float32 PCM at its native sample
// rate. Only MP3 is currently supported; any failure is an
// *engineerr.LoadFailedError so callers can classify it the same way
// they classify a failed model load.
func LoadMono(path string) ([]float32, int, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		samples, sampleRate, err := decodeMP3Mono(path)
		if err != nil {
			return nil, 0, &engineerr.LoadFailedError{Path: path, Cause: err}
		}
		return samples, sampleRate, nil
	default:
		return nil, 0, &engineerr.LoadFailedError{Path: path, Cause: errUnsupportedFormat(ext)}
	}
}

type errUnsupportedFormat string

func (e errUnsupportedFormat) Error() string {
	return "unsupported audio format: " + string(e)
}

func decodeMP3Mono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	delay := readLAMEEncoderDelay(path) + goMP3DecoderDelay

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, err
	}

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, err
	}

	samples := interleavedStereoToMono(pcmData)
	if len(samples) > delay {
		samples = samples[delay:]
	}

	return samples, decoder.SampleRate(), nil
}

// interleavedStereoToMono averages 16-bit little-endian interleaved
// stereo PCM into normalized mono float32 samples in [-1, 1].
func interleavedStereoToMono(pcmData []byte) []float32 {
	numSamplePairs := len(pcmData) / 4
	samples := make([]float32, numSamplePairs)
	for i := range numSamplePairs {
		offset := i * 4
		left := int16(binary.LittleEndian.Uint16(pcmData[offset:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2:]))
		samples[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}
	return samples
}

// readLAMEEncoderDelay parses the LAME extension of the Xing/Info header
// to recover the exact encoder delay in samples, falling back to the
// typical default when the header is absent or malformed.
func readLAMEEncoderDelay(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return defaultEncoderDelay
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil || n < 200 {
		return defaultEncoderDelay
	}
	buf = buf[:n]

	lameIdx := bytes.Index(buf, []byte("LAME"))
	if lameIdx == -1 {
		return defaultEncoderDelay
	}

	delayOffset := lameIdx + 21
	if delayOffset+3 > len(buf) {
		return defaultEncoderDelay
	}

	b := buf[delayOffset : delayOffset+3]
	delay := (int(b[0]) << 4) | (int(b[1]) >> 4)
	if delay < 0 || delay > 4096 {
		return defaultEncoderDelay
	}

	return delay
}
