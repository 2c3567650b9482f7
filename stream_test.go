package trellis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type streamPayload struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// noFlushWriter hides the recorder's Flush method.
type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewStream_SetsSSEHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil)

	_, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected no-cache, got %q", cc)
	}
	if conn := w.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("expected keep-alive, got %q", conn)
	}
}

func TestNewStream_RequiresFlusher(t *testing.T) {
	w := noFlushWriter{httptest.NewRecorder()}
	r := httptest.NewRequest("GET", "/events", nil)

	_, err := NewStream[streamPayload](w, r)
	if err == nil {
		t.Fatal("expected an error for a writer that cannot flush")
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("expected 500 classification, got %d", StatusOf(err))
	}
	if !strings.Contains(err.Error(), "streaming not supported") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestStream_Send(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil)

	stream, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}

	if err := stream.Send(streamPayload{Message: "hello", Count: 1}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, `data: {"message":"hello","count":1}`) {
		t.Errorf("unexpected frame: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("expected a blank line terminator, got %q", body)
	}
	if strings.Contains(body, "event:") {
		t.Error("expected no event name on a plain send")
	}
	if !w.Flushed {
		t.Error("expected the frame flushed")
	}
}

func TestStream_SendEvent(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil)

	stream, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}

	if err := stream.SendEvent("update", streamPayload{Message: "changed", Count: 2}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: update\n") {
		t.Errorf("expected the event name line, got %q", body)
	}
	if !strings.Contains(body, `data: {"message":"changed","count":2}`) {
		t.Errorf("unexpected data line: %q", body)
	}
}

func TestStream_SendComment(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil)

	stream, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}

	if err := stream.SendComment("keep-alive"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if body := w.Body.String(); body != ": keep-alive\n\n" {
		t.Errorf("unexpected comment frame: %q", body)
	}
}

func TestStream_SequentialFrames(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil)

	stream, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := stream.Send(streamPayload{Message: "tick", Count: i}); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	frames := strings.Count(w.Body.String(), "\n\n")
	if frames != 3 {
		t.Errorf("expected 3 frames, got %d in %q", frames, w.Body.String())
	}
}

func TestStream_DoneFollowsRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)

	stream, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}

	select {
	case <-stream.Done():
		t.Fatal("expected the stream open")
	default:
	}

	cancel()

	select {
	case <-stream.Done():
	default:
		t.Fatal("expected the stream done after cancellation")
	}
}

func TestStream_SendAfterDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)

	stream, err := NewStream[streamPayload](w, r)
	if err != nil {
		t.Fatalf("expected a stream, got %v", err)
	}
	cancel()

	err = stream.Send(streamPayload{Message: "too late"})
	if err == nil || !strings.Contains(err.Error(), "client disconnected") {
		t.Errorf("expected a disconnect error, got %v", err)
	}

	// The stream latches closed after a disconnect.
	err = stream.Send(streamPayload{Message: "still too late"})
	if err == nil || !strings.Contains(err.Error(), "stream closed") {
		t.Errorf("expected a closed error, got %v", err)
	}

	if strings.Contains(w.Body.String(), "too late") {
		t.Error("expected nothing written after the disconnect")
	}
}
