// Package monitor provides the Echo web server that exposes the engine's
// published state and event stream to a companion UI, generalizing the
// teacher's pkg/server music-library routes into the host-facing
// surface named in spec §6 (the "mobile UI" collaborator boundary).
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nzoschke/djcore/engine"
)

// Server fans engine events out to any number of SSE subscribers and
// answers polling requests for the current published snapshot. It
// implements engine.EventSink, so it's wired in directly via
// engine.SetSink.
type Server struct {
	eng    *engine.Engine
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[chan engine.Event]struct{}
}

// New constructs a Server for the given engine. The returned Server must
// be installed with eng.SetSink in order to receive events;
// CurrentBPM/CurrentKey/etc. are polled directly, so
// /api/state works even with no sink wired up.
func New(eng *engine.Engine) *Server {
	return &Server{
		eng:         eng,
		logger:      slog.Default().With("component", "monitor"),
		subscribers: make(map[chan engine.Event]struct{}),
	}
}

// Emit implements engine.EventSink, fanning the event out to every
// current subscriber without blocking on a slow or stalled one.
func (s *Server) Emit(ev engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("dropping event for slow subscriber")
		}
	}
}

func (s *Server) subscribe() chan engine.Event {
	ch := make(chan engine.Event, 32)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan engine.Event) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
	close(ch)
}

// Echo builds the Echo instance with the monitor's routes registered.
// Callers that want to run it standalone can call Start instead.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/api/state", s.handleState)
	e.GET("/api/stream", s.handleStream)

	return e
}

// Start runs the monitor server on addr (e.g. ":8080"), blocking until
// the server stops or errors.
func (s *Server) Start(addr string) error {
	return s.Echo().Start(addr)
}

// stateResponse is the /api/state payload: the engine's full published
// snapshot per spec §6's query surface.
type stateResponse struct {
	BPM           float64 `json:"current_bpm"`
	FrameCount    uint64  `json:"frame_count"`
	KeyFrameCount uint64  `json:"key_frame_count"`
	KeyValid      bool    `json:"key_valid"`
	Camelot       string  `json:"camelot,omitempty"`
	Notation      string  `json:"notation,omitempty"`
	Confidence    float32 `json:"confidence,omitempty"`
}

func (s *Server) handleState(c echo.Context) error {
	key := s.eng.CurrentKey()
	resp := stateResponse{
		BPM:           s.eng.CurrentBPM(),
		FrameCount:    s.eng.FrameCount(),
		KeyFrameCount: s.eng.KeyFrameCount(),
		KeyValid:      key.Valid,
	}
	if key.Valid {
		resp.Camelot = key.Camelot
		resp.Notation = key.Notation
		resp.Confidence = key.Confidence
	}
	return c.JSON(http.StatusOK, resp)
}

// handleStream serves Server-Sent Events: one "state"/"waveform"/"key"/
// "error" event per engine.Event emitted while the client is connected.
func (s *Server) handleStream(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	flusher, canFlush := res.Writer.(http.Flusher)
	ctx := c.Request().Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			name, payload := eventPayload(ev)
			data, err := json.Marshal(payload)
			if err != nil {
				s.logger.Warn("dropping unencodable event", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data); err != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

// eventPayload maps an engine.Event to its SSE event name and JSON body.
func eventPayload(ev engine.Event) (string, any) {
	switch v := ev.(type) {
	case engine.StateEvent:
		return "state", v
	case engine.WaveformEvent:
		return "waveform", v
	case engine.KeyEvent:
		return "key", v
	case engine.ErrorEvent:
		return "error", v
	default:
		return "unknown", v
	}
}
