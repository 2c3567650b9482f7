package trellis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Stream is a typed sender for Server-Sent Events. Handlers obtain one
// with NewStream after declaring ResponseWriter and Request arguments,
// and return a Handled result when the stream ends.
type Stream[T any] interface {
	// Send sends a data-only event.
	Send(data T) error
	// SendEvent sends a named event with data.
	SendEvent(event string, data T) error
	// SendComment sends a comment (useful for keep-alive).
	SendComment(comment string) error
	// Done returns a channel closed when the client disconnects.
	Done() <-chan struct{}
}

// NewStream switches the response to text/event-stream and returns the
// typed stream. The SSE headers and the 200 status are written
// immediately; nothing else may write to w afterward.
func NewStream[T any](w http.ResponseWriter, r *http.Request) (Stream[T], error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrInternal.WithMessage("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	return &sseStream[T]{
		w:       w,
		flusher: flusher,
		done:    r.Context().Done(),
	}, nil
}

// sseStream implements Stream[T] over an http.Flusher.
type sseStream[T any] struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
	mu      sync.Mutex
	closed  bool
}

// Send sends a data-only event.
func (s *sseStream[T]) Send(data T) error {
	return s.SendEvent("", data)
}

// SendEvent sends a named event with data.
func (s *sseStream[T]) SendEvent(event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	var frame string
	if event != "" {
		frame = fmt.Sprintf("event: %s\n", event)
	}
	frame += fmt.Sprintf("data: %s\n\n", jsonData)
	return s.writeFrame(frame)
}

// SendComment sends a comment (useful for keep-alive).
func (s *sseStream[T]) SendComment(comment string) error {
	return s.writeFrame(fmt.Sprintf(": %s\n\n", comment))
}

// Done returns a channel closed when the client disconnects.
func (s *sseStream[T]) Done() <-chan struct{} {
	return s.done
}

// writeFrame writes one wire frame and flushes it. Frames serialize
// through the mutex so concurrent senders cannot interleave.
func (s *sseStream[T]) writeFrame(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}

	// Check if client disconnected
	select {
	case <-s.done:
		s.closed = true
		return errors.New("client disconnected")
	default:
	}

	if _, err := io.WriteString(s.w, frame); err != nil {
		s.closed = true
		return fmt.Errorf("failed to write event: %w", err)
	}

	s.flusher.Flush()
	return nil
}
