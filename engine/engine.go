// Package engine implements the orchestrator described in spec §4.1: it
// fans incoming 44.1kHz mono PCM to the CQT path (key detection) and,
// through the downsampler and mel extractor, to the recurrent beat model
// and the autocorrelation BPM estimator. It is single-threaded
// cooperative — PushSamples is the only mutator, and queries publish a
// consistent snapshot for safe cross-thread reads.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/nzoschke/djcore/internal/beatmodel"
	"github.com/nzoschke/djcore/internal/bpmest"
	"github.com/nzoschke/djcore/internal/cqt"
	"github.com/nzoschke/djcore/internal/dsp"
	"github.com/nzoschke/djcore/internal/engineerr"
	"github.com/nzoschke/djcore/internal/keymodel"
	"github.com/nzoschke/djcore/internal/mel"
	"github.com/nzoschke/djcore/internal/waveform"
)

const (
	frameRateMel = 50.0

	// cqtAccumulatorCeiling is the spectrogram history pre-allocated at
	// construction; append grows past it geometrically like any Go slice,
	// matching the "grows geometrically past the ceiling" requirement of
	// spec §5 without any bespoke growth logic.
	cqtAccumulatorCeiling = 600

	keyConfidenceEpsilon = 0.01
)

// beatInferer is the seam the recurrent beat model is accessed through,
// satisfied by *beatmodel.Model; tests substitute a fake.
type beatInferer interface {
	Ready() bool
	Infer(features []float64) (beatmodel.Activation, error)
	ResetState()
	Close() error
}

// keyInferer is the seam the key classifier is accessed through,
// satisfied by *keymodel.Model; tests substitute a fake.
type keyInferer interface {
	Infer(frames [][]float64) (keymodel.Result, error)
	Close() error
}

// warmer is implemented by models that support a dummy-inference warm-up
// pass; both beatmodel.Model and keymodel.Model do.
type warmer interface {
	WarmUp() error
}

// FrameResult is one published (beat, downbeat) activation from
// PushSamples, per spec §4.1.
type FrameResult struct {
	Beat     float32
	Downbeat float32
}

// KeyResult is the engine's published key state; Valid is false until the
// first successful inference after reset.
type KeyResult struct {
	Camelot    string
	Notation   string
	Confidence float32
	Valid      bool
}

type snapshot struct {
	bpm           float64
	frameCount    uint64
	keyFrameCount uint64
	key           KeyResult
}

// Engine is the stateful orchestrator. Construct with New.
type Engine struct {
	downsampler       *dsp.Downsampler
	melExtractor      *mel.Extractor
	cqtExtractor      *cqt.Extractor
	activationBuffer  *bpmest.Buffer
	waveformExtractor *waveform.Extractor

	beatModel beatInferer
	keyModel  keyInferer

	sink   EventSink
	logger *slog.Logger

	cqtFrames             [][]float64
	lastKeyInferenceCount int
	currentKey            KeyResult

	frameCount        uint64
	invalidInputCount uint64

	recording       bool
	waveformEnabled bool

	mu       sync.RWMutex
	snapshot snapshot
}

// New constructs an Engine with freshly primed state and no models
// loaded. A nil sink discards every event.
func New(sink EventSink) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		downsampler:       dsp.NewDownsampler(),
		melExtractor:      mel.New(),
		cqtExtractor:      cqt.New(),
		activationBuffer:  bpmest.New(),
		waveformExtractor: waveform.New(44100),
		sink:              sink,
		logger:            slog.Default().With("component", "engine"),
		cqtFrames:         make([][]float64, 0, cqtAccumulatorCeiling),
	}
}

// LoadBPMModel loads the recurrent beat/downbeat model. It is idempotent
// for a repeat call with the same path (reloads) and leaves the prior
// model state untouched on failure.
func (e *Engine) LoadBPMModel(path string) error {
	m, err := beatmodel.Load(path)
	if err != nil {
		e.emit(ErrorEvent{Kind: ErrorKindLoadFailed, Message: err.Error()})
		return err
	}
	if e.beatModel != nil {
		_ = e.beatModel.Close()
	}
	e.beatModel = m
	return nil
}

// LoadKeyModel loads the convolutional key classifier.
func (e *Engine) LoadKeyModel(path string) error {
	m, err := keymodel.Load(path)
	if err != nil {
		e.emit(ErrorEvent{Kind: ErrorKindLoadFailed, Message: err.Error()})
		return err
	}
	if e.keyModel != nil {
		_ = e.keyModel.Close()
	}
	e.keyModel = m
	return nil
}

// WarmUpBPM runs a dummy inference on the loaded beat model, if any.
func (e *Engine) WarmUpBPM() error {
	if e.beatModel == nil {
		return engineerr.ErrNotReady
	}
	if w, ok := e.beatModel.(warmer); ok {
		return w.WarmUp()
	}
	return nil
}

// WarmUpKey runs a dummy inference on the loaded key model, if any.
func (e *Engine) WarmUpKey() error {
	if e.keyModel == nil {
		return engineerr.ErrNotReady
	}
	if w, ok := e.keyModel.(warmer); ok {
		return w.WarmUp()
	}
	return nil
}

// SetSink replaces the engine's event sink. Safe to call before the
// engine has started receiving samples; typical for wiring a monitor
// server that itself needs the engine to exist before it can be built.
func (e *Engine) SetSink(sink EventSink) {
	if sink == nil {
		sink = NopSink{}
	}
	e.sink = sink
}

// RequestPermission is a pass-through stub for the host's actual
// microphone-permission collaborator, which lives outside the core (spec
// §1's non-goals exclude audio acquisition). It always succeeds; a real
// host binding surfaces PermissionDeniedError itself before ever calling
// PushSamples.
func (e *Engine) RequestPermission() error {
	return nil
}

// StartRecording marks the engine ready to receive samples for a new
// session and configures whether onWaveform events are emitted.
func (e *Engine) StartRecording(enableWaveform bool) {
	e.recording = true
	e.waveformEnabled = enableWaveform
}

// StopRecording stops onWaveform emission; PushSamples itself keeps
// working regardless (the host decides when to stop calling it).
func (e *Engine) StopRecording() {
	e.recording = false
}

// PushSamples processes an arbitrarily sized chunk of mono 44.1kHz PCM,
// per the ordered steps in spec §4.1: the CQT/key path first, then the
// downsample/mel/beat/BPM path. Both are no-ops if their model is not
// loaded.
func (e *Engine) PushSamples(samples []float32) []FrameResult {
	if len(samples) == 0 {
		return nil
	}
	samples = e.sanitize(samples)

	if e.keyModel != nil {
		for _, frame := range e.cqtExtractor.Process(samples) {
			e.cqtFrames = append(e.cqtFrames, []float64(frame))
			e.maybeInferKey()
		}
	}

	var results []FrameResult
	if e.beatModel != nil {
		resampled := e.downsampler.Process(samples)
		for _, mframe := range e.melExtractor.Process(resampled) {
			act, err := e.beatModel.Infer(mframe)
			if err != nil {
				e.logger.Warn("beat inference failed, skipping frame", "err", err)
				if !e.beatModel.Ready() {
					e.emit(ErrorEvent{Kind: ErrorKindNotReady, Message: err.Error()})
				}
				continue
			}

			e.activationBuffer.Push(act.Beat, act.Downbeat)
			e.frameCount++
			results = append(results, FrameResult{Beat: act.Beat, Downbeat: act.Downbeat})

			timestamp := float64(e.frameCount-1) / frameRateMel
			e.emit(StateEvent{
				BeatActivation:     act.Beat,
				DownbeatActivation: act.Downbeat,
				TimestampSeconds:   timestamp,
			})
		}
	}

	if e.recording && e.waveformEnabled {
		wf := e.waveformExtractor.Compute(samples)
		e.emit(WaveformEvent{
			Samples: wf.Samples,
			Peak:    wf.Peak,
			RMS:     wf.RMS,
			Low:     wf.Low,
			Mid:     wf.Mid,
			High:    wf.High,
		})
	}

	e.publishSnapshot()
	return results
}

// maybeInferKey runs the key model over the full accumulated spectrogram
// once enough CQT frames have built up, then every RecomputeInterval
// frames thereafter (spec §4.7).
func (e *Engine) maybeInferKey() {
	n := len(e.cqtFrames)
	if n < keymodel.MinFrames {
		return
	}
	if e.lastKeyInferenceCount != 0 && n-e.lastKeyInferenceCount < keymodel.RecomputeInterval {
		return
	}

	result, err := e.keyModel.Infer(e.cqtFrames)
	if err != nil {
		e.logger.Warn("key inference failed, skipping", "err", err)
		return
	}
	e.lastKeyInferenceCount = n

	updated := KeyResult{
		Camelot:    result.Camelot,
		Notation:   result.Notation,
		Confidence: float32(result.Confidence),
		Valid:      true,
	}
	if e.keyMateriallyChanged(updated) {
		e.emit(KeyEvent{Camelot: updated.Camelot, Notation: updated.Notation, Confidence: updated.Confidence})
	}
	e.currentKey = updated
}

func (e *Engine) keyMateriallyChanged(updated KeyResult) bool {
	if !e.currentKey.Valid {
		return true
	}
	if updated.Camelot != e.currentKey.Camelot || updated.Notation != e.currentKey.Notation {
		return true
	}
	return math.Abs(float64(updated.Confidence-e.currentKey.Confidence)) > keyConfidenceEpsilon
}

// sanitize clamps non-finite samples to zero and counts them (spec §7's
// InvalidInput), copying the input only if a non-finite sample is found.
func (e *Engine) sanitize(samples []float32) []float32 {
	var cleaned []float32
	clamped := 0
	for i, s := range samples {
		if isFinite32(s) {
			continue
		}
		if cleaned == nil {
			cleaned = make([]float32, len(samples))
			copy(cleaned, samples)
		}
		cleaned[i] = 0
		clamped++
		e.invalidInputCount++
	}
	if cleaned != nil {
		e.logger.Warn("clamped non-finite input samples to zero", "count", clamped)
		return cleaned
	}
	return samples
}

func isFinite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Reset clears every piece of mutable state to its post-construction
// value while retaining loaded models, per spec §4.1.
func (e *Engine) Reset() {
	e.downsampler.Reset()
	e.melExtractor.Reset()
	e.cqtExtractor.Reset()
	e.activationBuffer.Reset()
	if e.beatModel != nil {
		e.beatModel.ResetState()
	}

	e.cqtFrames = e.cqtFrames[:0]
	e.lastKeyInferenceCount = 0
	e.currentKey = KeyResult{}
	e.frameCount = 0
	e.invalidInputCount = 0

	e.publishSnapshot()
}

func (e *Engine) publishSnapshot() {
	e.mu.Lock()
	e.snapshot = snapshot{
		bpm:           e.activationBuffer.BPM(),
		frameCount:    e.frameCount,
		keyFrameCount: uint64(len(e.cqtFrames)),
		key:           e.currentKey,
	}
	e.mu.Unlock()
}

// CurrentBPM returns 0 until at least 100 recurrent frames have been
// processed since construction or the last reset.
func (e *Engine) CurrentBPM() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot.frameCount < 100 {
		return 0
	}
	return e.snapshot.bpm
}

// FrameCount returns the number of recurrent frames processed since the
// last reset.
func (e *Engine) FrameCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.frameCount
}

// CurrentKey returns the most recently published key result; Valid is
// false until the first successful inference.
func (e *Engine) CurrentKey() KeyResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.key
}

// KeyFrameCount returns the number of CQT frames accumulated since the
// last reset.
func (e *Engine) KeyFrameCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.keyFrameCount
}

func (e *Engine) emit(ev Event) {
	e.sink.Emit(ev)
}

// Close releases any loaded model resources.
func (e *Engine) Close() error {
	var err error
	if e.beatModel != nil {
		if cerr := e.beatModel.Close(); cerr != nil {
			err = fmt.Errorf("engine: closing beat model: %w", cerr)
		}
	}
	if e.keyModel != nil {
		if cerr := e.keyModel.Close(); cerr != nil {
			err = fmt.Errorf("engine: closing key model: %w", cerr)
		}
	}
	return err
}
