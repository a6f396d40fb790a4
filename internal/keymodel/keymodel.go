// Package keymodel wraps the convolutional key-classification ONNX model
// described in spec §4.7: a 24-class classifier over a variable-length
// CQT spectrogram, built in the same ONNX Runtime session style as the
// recurrent beat model.
package keymodel

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nzoschke/djcore/internal/dsp"
	"github.com/nzoschke/djcore/internal/engineerr"
	"github.com/nzoschke/djcore/internal/onnxrt"
)

const numBins = 105
const numClasses = 24

// MinFrames is the minimum number of accumulated CQT frames before a key
// can be published (spec §4.7).
const MinFrames = 100

// RecomputeInterval is how many new CQT frames must accumulate between
// re-inferences once the minimum has been reached (spec §4.7).
const RecomputeInterval = 25

// Result is one key inference outcome.
type Result struct {
	Camelot    string
	Notation   string
	Confidence float64
}

// Model wraps the key classifier ONNX session. Unlike the recurrent beat
// model it carries no state across calls; each Infer is a fresh forward
// pass over the full accumulated spectrogram.
type Model struct {
	session *ort.DynamicAdvancedSession
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Load opens the ONNX model at path.
func Load(path string) (*Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &engineerr.LoadFailedError{Path: path, Cause: err}
	}

	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(onnxrt.LibraryPath())
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, &engineerr.LoadFailedError{Path: path, Cause: ortInitErr}
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{"spectrogram"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, &engineerr.LoadFailedError{Path: path, Cause: err}
	}

	return &Model{session: session}, nil
}

// WarmUp runs a single dummy inference over a minimal-length spectrogram
// to trigger backend JIT/compilation.
func (m *Model) WarmUp() error {
	dummy := make([][]float64, 1)
	dummy[0] = make([]float64, numBins)
	_, err := m.Infer(dummy)
	return err
}

// Infer runs the classifier over frames, a [time][freq] sequence of CQT
// frames as accumulated by the engine; it transposes to [freq][time]
// before building the [1, 1, 105, T] input tensor, per spec §4.7.
func (m *Model) Infer(frames [][]float64) (Result, error) {
	t := len(frames)
	if t == 0 {
		return Result{}, fmt.Errorf("keymodel: no frames")
	}

	flat := make([]float32, numBins*t)
	for f := 0; f < numBins; f++ {
		for ti := 0; ti < t; ti++ {
			flat[f*t+ti] = float32(frames[ti][f])
		}
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 1, int64(numBins), int64(t)), flat)
	if err != nil {
		return Result{}, fmt.Errorf("keymodel: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return Result{}, fmt.Errorf("keymodel: inference: %w", err)
	}
	if outputs[0] == nil {
		return Result{}, fmt.Errorf("keymodel: output was nil")
	}
	defer outputs[0].Destroy()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Result{}, fmt.Errorf("keymodel: unexpected output tensor type")
	}
	logits32 := outTensor.GetData()
	if len(logits32) != numClasses {
		return Result{}, fmt.Errorf("keymodel: expected %d classes, got %d", numClasses, len(logits32))
	}

	logits := make([]float64, numClasses)
	for i, v := range logits32 {
		logits[i] = float64(v)
	}

	probs := dsp.Softmax(logits)
	class := dsp.ArgMax(probs)
	camelot, notation := classToResult(class)

	return Result{Camelot: camelot, Notation: notation, Confidence: probs[class]}, nil
}

// Close releases the underlying ONNX Runtime session.
func (m *Model) Close() error {
	if m.session != nil {
		m.session.Destroy()
	}
	return nil
}
