package monitor

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzoschke/djcore/engine"
)

func TestHandleStateReturnsZeroSnapshotForFreshEngine(t *testing.T) {
	srv := New(engine.New(nil))
	e := srv.Echo()

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.0, resp.BPM)
	assert.Equal(t, uint64(0), resp.FrameCount)
	assert.False(t, resp.KeyValid)
	assert.Empty(t, resp.Camelot)
}

func TestEmitFansOutToSubscribers(t *testing.T) {
	srv := New(engine.New(nil))
	ch := srv.subscribe()
	defer srv.unsubscribe(ch)

	srv.Emit(engine.StateEvent{BeatActivation: 0.5, DownbeatActivation: 0.1, TimestampSeconds: 1.5})

	select {
	case ev := <-ch:
		se, ok := ev.(engine.StateEvent)
		require.True(t, ok)
		assert.Equal(t, float32(0.5), se.BeatActivation)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fanned-out event")
	}
}

func TestEmitNeverBlocksOnSlowSubscriber(t *testing.T) {
	srv := New(engine.New(nil))
	ch := srv.subscribe()
	defer srv.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			srv.Emit(engine.StateEvent{TimestampSeconds: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber channel")
	}
}

func TestEventPayloadNamesEachEventKind(t *testing.T) {
	cases := []struct {
		event engine.Event
		name  string
	}{
		{engine.StateEvent{}, "state"},
		{engine.WaveformEvent{}, "waveform"},
		{engine.KeyEvent{}, "key"},
		{engine.ErrorEvent{}, "error"},
	}
	for _, tc := range cases {
		name, _ := eventPayload(tc.event)
		assert.Equal(t, tc.name, name)
	}
}

func TestHandleStreamDeliversEmittedEvents(t *testing.T) {
	srv := New(engine.New(nil))
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				srv.Emit(engine.KeyEvent{Camelot: "8B", Notation: "C", Confidence: 0.9})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var sawEventLine, sawDataLine bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: key") {
			sawEventLine = true
			continue
		}
		if sawEventLine && strings.HasPrefix(line, "data: ") {
			sawDataLine = true
			break
		}
	}

	assert.True(t, sawEventLine, "expected an SSE event: line for the key event")
	assert.True(t, sawDataLine, "expected a data: line following the event")
}
