// Package stream writes Server-Sent Events
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Streamer writes events to a response, flushing after each one
type Streamer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// Event is one Server-Sent Event
type Event struct {
	ID    string
	Event string
	Data  string
	Retry int // reconnect delay in milliseconds
}

// NewSSE sends the event stream headers. It fails when the response
// cannot be flushed, in which case nothing has been written.
func NewSSE(w http.ResponseWriter) (*Streamer, error) {
	rc := http.NewResponseController(w)
	if !canFlush(w) {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Streams outlive the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &Streamer{w: w, rc: rc}
	return s, s.flush()
}

// canFlush reports whether w or any writer it wraps is an http.Flusher
func canFlush(w http.ResponseWriter) bool {
	for {
		if _, ok := w.(http.Flusher); ok {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
}

// WriteEvent writes one event. Multi-line data is sent as one data field
// per line.
func (s *Streamer) WriteEvent(e *Event) error {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Event)
	}
	if e.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", e.Retry)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	return s.flush()
}

// WriteJSON writes an event whose data is v encoded as JSON
func (s *Streamer) WriteJSON(id, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.WriteEvent(&Event{ID: id, Event: event, Data: string(data)})
}

// Comment writes a comment line, which clients ignore. Used as a keepalive.
func (s *Streamer) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.flush()
}

func (s *Streamer) flush() error {
	return s.rc.Flush()
}
