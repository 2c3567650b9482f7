package trellis

import (
	"net/http"
	"time"
)

// EngineConfig holds configuration for the Engine.
type EngineConfig struct {
	// Server settings
	Host         string        // Host to bind to (e.g., "localhost", "0.0.0.0", or empty for all interfaces)
	Port         int           // Port to listen on (e.g., 8080)
	ReadTimeout  time.Duration // Maximum duration for reading entire request
	WriteTimeout time.Duration // Maximum duration for writing response
	IdleTimeout  time.Duration // Maximum time to wait for next request on keep-alive

	// MaxBodyBytes caps the request body size read by the JSON body
	// middleware (0 = unlimited).
	MaxBodyBytes int64

	// ErrorResponder renders dispatch failures. Nil selects the default
	// responder, which writes the standard JSON error body unless a
	// response is already in flight.
	ErrorResponder func(http.ResponseWriter, *http.Request, error)
}

// DefaultConfig returns an EngineConfig with sensible defaults.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Host:         "", // Empty string binds to all interfaces
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		MaxBodyBytes: 10 * 1024 * 1024, // 10MB
	}
}

// WithHost sets the host to bind to.
func (c *EngineConfig) WithHost(host string) *EngineConfig {
	c.Host = host
	return c
}

// WithPort sets the port to listen on.
func (c *EngineConfig) WithPort(port int) *EngineConfig {
	c.Port = port
	return c
}

// WithMaxBodyBytes sets the request body size cap.
func (c *EngineConfig) WithMaxBodyBytes(limit int64) *EngineConfig {
	c.MaxBodyBytes = limit
	return c
}

// WithErrorResponder sets a custom renderer for dispatch failures.
func (c *EngineConfig) WithErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) *EngineConfig {
	c.ErrorResponder = responder
	return c
}
