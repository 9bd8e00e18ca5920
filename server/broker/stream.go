package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultHeartbeat = 25 * time.Second

// Stream writes broker events to an HTTP client as Server-Sent Events.
type Stream struct {
	w         io.Writer
	flush     func()
	heartbeat time.Duration
	mu        sync.Mutex
}

// NewStream prepares w for SSE and returns a Stream over it.
func NewStream(w http.ResponseWriter) *Stream {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")

	var flushFn func()
	if f, ok := w.(http.Flusher); ok {
		flushFn = f.Flush
	}
	return &Stream{w: w, flush: flushFn, heartbeat: defaultHeartbeat}
}

// NewStreamWriter wraps a plain writer, for tests.
func NewStreamWriter(w io.Writer) *Stream {
	return &Stream{w: w}
}

// StreamEvents forwards events until the channel closes or ctx is done,
// sending comment heartbeats to keep intermediaries from timing out.
func (s *Stream) StreamEvents(ctx context.Context, events <-chan Event) error {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker = time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Send(evt); err != nil {
				return err
			}
		case <-tick:
			if err := s.write([]byte(fmt.Sprintf(": ping %d\n\n", time.Now().Unix()))); err != nil {
				return err
			}
		}
	}
}

// Send writes a single event frame.
func (s *Stream) Send(evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.write([]byte(fmt.Sprintf("event: %s\ndata: %s\n\n", evt.Type, body)))
}

func (s *Stream) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}
