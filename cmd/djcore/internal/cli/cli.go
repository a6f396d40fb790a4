// Package cli implements the djcore command-line subcommands, kept
// separate from package main so the subcommand logic is testable
// without invoking cobra.
package cli

import (
	"fmt"
	"time"

	"github.com/nzoschke/djcore/engine"
	"github.com/nzoschke/djcore/internal/audioio"
	"github.com/nzoschke/djcore/pkg/monitor"
)

const expectedSampleRate = 44100

// printSink prints key changes and structural errors to stdout as they
// arrive; per-frame StateEvent/WaveformEvent traffic is left unprinted
// since it fires at 50Hz and would flood a terminal.
type printSink struct{}

func (printSink) Emit(ev engine.Event) {
	switch v := ev.(type) {
	case engine.KeyEvent:
		fmt.Printf("key: %s (%s) confidence=%.2f\n", v.Camelot, v.Notation, v.Confidence)
	case engine.ErrorEvent:
		fmt.Printf("error: %s: %s\n", v.Kind, v.Message)
	}
}

// Listen decodes path, feeds it through a fresh engine in chunks sized
// to mimic a live microphone callback, prints key changes as they
// arrive, and prints the final tempo and key once the file is consumed.
func Listen(path, bpmModelPath, keyModelPath string, chunkMillis int) error {
	samples, sampleRate, err := audioio.LoadMono(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if sampleRate != expectedSampleRate {
		return fmt.Errorf("listen: %s is %dHz, the engine requires %dHz mono input", path, sampleRate, expectedSampleRate)
	}

	eng := engine.New(printSink{})
	loadModels(eng, bpmModelPath, keyModelPath)
	eng.StartRecording(false)

	chunkSize := expectedSampleRate * chunkMillis / 1000
	if chunkSize < 1 {
		chunkSize = expectedSampleRate / 10
	}

	for offset := 0; offset < len(samples); offset += chunkSize {
		end := offset + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		eng.PushSamples(samples[offset:end])
	}

	fmt.Printf("frames=%d bpm=%.1f key_frames=%d\n", eng.FrameCount(), eng.CurrentBPM(), eng.KeyFrameCount())
	key := eng.CurrentKey()
	if key.Valid {
		fmt.Printf("final key: %s (%s) confidence=%.2f\n", key.Camelot, key.Notation, key.Confidence)
	} else {
		fmt.Println("final key: not enough audio to determine key")
	}
	return eng.Close()
}

// Serve constructs an engine wired to a monitor server and hosts it on
// addr until interrupted.
func Serve(addr, bpmModelPath, keyModelPath string) error {
	eng := engine.New(nil)
	srv := monitor.New(eng)
	eng.SetSink(srv)

	loadModels(eng, bpmModelPath, keyModelPath)
	eng.StartRecording(true)

	fmt.Printf("djcore monitor listening on %s at %s\n", addr, time.Now().Format(time.RFC3339))
	return srv.Start(addr)
}

func loadModels(eng *engine.Engine, bpmModelPath, keyModelPath string) {
	if bpmModelPath != "" {
		if err := eng.LoadBPMModel(bpmModelPath); err != nil {
			fmt.Printf("warning: bpm model not loaded: %s\n", err)
		} else if err := eng.WarmUpBPM(); err != nil {
			fmt.Printf("warning: bpm model warm-up failed: %s\n", err)
		}
	}
	if keyModelPath != "" {
		if err := eng.LoadKeyModel(keyModelPath); err != nil {
			fmt.Printf("warning: key model not loaded: %s\n", err)
		} else if err := eng.WarmUpKey(); err != nil {
			fmt.Printf("warning: key model warm-up failed: %s\n", err)
		}
	}
}
