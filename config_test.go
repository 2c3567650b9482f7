package trellis

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Host != "" {
		t.Errorf("expected all interfaces by default, got %q", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("expected port 8080, got %d", config.Port)
	}
	if config.ReadTimeout != 10*time.Second {
		t.Errorf("expected 10s read timeout, got %v", config.ReadTimeout)
	}
	if config.WriteTimeout != 10*time.Second {
		t.Errorf("expected 10s write timeout, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 120*time.Second {
		t.Errorf("expected 120s idle timeout, got %v", config.IdleTimeout)
	}
	if config.MaxBodyBytes != 10*1024*1024 {
		t.Errorf("expected a 10MB body cap, got %d", config.MaxBodyBytes)
	}
	if config.ErrorResponder != nil {
		t.Error("expected no custom responder by default")
	}
}

func TestConfig_Chaining(t *testing.T) {
	responder := func(http.ResponseWriter, *http.Request, error) {}

	config := DefaultConfig().
		WithHost("localhost").
		WithPort(9090).
		WithMaxBodyBytes(1024).
		WithErrorResponder(responder)

	if config.Host != "localhost" {
		t.Errorf("expected localhost, got %q", config.Host)
	}
	if config.Port != 9090 {
		t.Errorf("expected 9090, got %d", config.Port)
	}
	if config.MaxBodyBytes != 1024 {
		t.Errorf("expected 1024, got %d", config.MaxBodyBytes)
	}
	if config.ErrorResponder == nil {
		t.Error("expected the responder set")
	}
}
