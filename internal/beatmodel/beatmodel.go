// Package beatmodel wraps the recurrent beat/downbeat ONNX model described
// in spec §4.6: a stateful two-layer recurrent network that consumes one
// 272-dim mel feature frame at a time and carries hidden/cell state across
// calls, in the style of the teacher's BeatThisAnalyzer ONNX session
// wrapper.
package beatmodel

import (
	"fmt"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nzoschke/djcore/internal/dsp"
	"github.com/nzoschke/djcore/internal/engineerr"
	"github.com/nzoschke/djcore/internal/onnxrt"
)

const (
	featureDim  = 272
	hiddenLayers = 2
	hiddenSize  = 150

	// maxConsecutiveFailures is the number of consecutive per-frame
	// inference failures that escalate the model to NotReady (spec §7).
	maxConsecutiveFailures = 5
)

// Activation is the published (beat, downbeat) pair for one recurrent
// frame; the model's third output class (non-beat) is discarded.
type Activation struct {
	Beat     float32
	Downbeat float32
}

// Model wraps the recurrent beat/downbeat ONNX session along with its
// carried hidden/cell state.
type Model struct {
	session *ort.DynamicAdvancedSession

	hidden []float32 // [2, 1, 150] flattened
	cell   []float32 // [2, 1, 150] flattened

	consecutiveFailures int
	notReady            bool
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Load opens the ONNX model at path and returns a Model with zeroed
// recurrent state. Each call opens a fresh session; it does not touch any
// previously returned Model.
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
		[]string{"input", "hidden_in", "cell_in"},
		[]string{"output", "hidden_out", "cell_out"},
		nil,
	)
	if err != nil {
		return nil, &engineerr.LoadFailedError{Path: path, Cause: err}
	}

	m := &Model{session: session}
	m.ResetState()
	return m, nil
}

// ResetState zeros the hidden and cell state and clears the failure
// counter, matching reset_state from spec §4.6.
func (m *Model) ResetState() {
	m.hidden = make([]float32, hiddenLayers*hiddenSize)
	m.cell = make([]float32, hiddenLayers*hiddenSize)
	m.consecutiveFailures = 0
	m.notReady = false
}

// Ready reports whether the model can currently accept frames; it becomes
// false after five consecutive inference failures and stays false until
// ResetState is called.
func (m *Model) Ready() bool {
	return m != nil && !m.notReady
}

// WarmUp runs a single dummy inference to trigger backend JIT/compilation,
// then re-zeros recurrent state so the warm-up frame leaves no residue.
func (m *Model) WarmUp() error {
	_, err := m.Infer(make([]float64, featureDim))
	m.ResetState()
	return err
}

// Infer runs one recurrent step on a 272-dim feature frame, returning the
// published (beat, downbeat) activations. On a transient failure the
// caller must skip the frame entirely (no state advance); Infer reports
// whether the model has escalated to NotReady via Ready() after return.
func (m *Model) Infer(features []float64) (Activation, error) {
	if m.notReady {
		return Activation{}, &engineerr.NotReadyError{Reason: "five consecutive inference failures"}
	}
	if len(features) != featureDim {
		return Activation{}, fmt.Errorf("beatmodel: expected %d features, got %d", featureDim, len(features))
	}

	act, err := m.infer(features)
	if err != nil {
		m.consecutiveFailures++
		if m.consecutiveFailures >= maxConsecutiveFailures {
			m.notReady = true
		}
		return Activation{}, err
	}
	m.consecutiveFailures = 0
	return act, nil
}

func (m *Model) infer(features []float64) (Activation, error) {
	input := make([]float32, featureDim)
	for i, v := range features {
		input[i] = float32(v)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 1, featureDim), input)
	if err != nil {
		return Activation{}, fmt.Errorf("beatmodel: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	hiddenTensor, err := ort.NewTensor(ort.NewShape(hiddenLayers, 1, hiddenSize), m.hidden)
	if err != nil {
		return Activation{}, fmt.Errorf("beatmodel: hidden tensor: %w", err)
	}
	defer hiddenTensor.Destroy()

	cellTensor, err := ort.NewTensor(ort.NewShape(hiddenLayers, 1, hiddenSize), m.cell)
	if err != nil {
		return Activation{}, fmt.Errorf("beatmodel: cell tensor: %w", err)
	}
	defer cellTensor.Destroy()

	outputs := []ort.Value{nil, nil, nil}
	if err := m.session.Run([]ort.Value{inputTensor, hiddenTensor, cellTensor}, outputs); err != nil {
		return Activation{}, fmt.Errorf("beatmodel: inference: %w", err)
	}
	for i, out := range outputs {
		if out == nil {
			return Activation{}, fmt.Errorf("beatmodel: output %d was nil", i)
		}
		defer out.Destroy()
	}

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Activation{}, fmt.Errorf("beatmodel: unexpected output tensor type")
	}
	classes := outTensor.GetData()
	if len(classes) != 3 {
		return Activation{}, fmt.Errorf("beatmodel: expected 3 output classes, got %d", len(classes))
	}

	probs := normalizeClasses(classes)

	hiddenOut, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return Activation{}, fmt.Errorf("beatmodel: unexpected hidden_out tensor type")
	}
	cellOut, ok := outputs[2].(*ort.Tensor[float32])
	if !ok {
		return Activation{}, fmt.Errorf("beatmodel: unexpected cell_out tensor type")
	}

	copy(m.hidden, hiddenOut.GetData())
	copy(m.cell, cellOut.GetData())

	return Activation{Beat: probs[0], Downbeat: probs[1]}, nil
}

// normalizeClasses applies numerically stable softmax when the raw output
// sum deviates from 1 by more than 1%, per spec §4.6.
func normalizeClasses(classes []float32) []float32 {
	var sum float64
	for _, c := range classes {
		sum += float64(c)
	}
	if math.Abs(sum-1) <= 0.01 {
		out := make([]float32, len(classes))
		copy(out, classes)
		return out
	}

	logits := make([]float64, len(classes))
	for i, c := range classes {
		logits[i] = float64(c)
	}
	softmaxed := dsp.Softmax(logits)
	out := make([]float32, len(softmaxed))
	for i, v := range softmaxed {
		out[i] = float32(v)
	}
	return out
}

// Close releases the underlying ONNX Runtime session.
func (m *Model) Close() error {
	if m.session != nil {
		m.session.Destroy()
	}
	return nil
}
