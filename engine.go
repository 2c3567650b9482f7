package trellis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/zoobzio/capitan"
)

// registration pairs a declared endpoint with its frozen pipeline.
type registration struct {
	endpoint *Endpoint
	pipeline *pipeline
}

// Engine binds endpoint definitions to an HTTP router and serves them.
// Registration freezes each endpoint; the frozen pipeline handles every
// request to the route and reports failures to the engine's error
// responder.
type Engine struct {
	config              *EngineConfig
	server              *http.Server
	chiRouter           chi.Router
	registrations       []registration
	ctx                 context.Context
	cancel              context.CancelFunc
	defaultHandlersOnce sync.Once
}

// NewEngine creates a new Engine with the given configuration.
// If config is nil, uses DefaultConfig.
func NewEngine(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Create Chi router with the body parser ahead of every route.
	r := chi.NewRouter()
	r.Use(ParseJSONBody(config.MaxBodyBytes))

	e := &Engine{
		config:    config,
		chiRouter: r,
		ctx:       ctx,
		cancel:    cancel,
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	e.server = &http.Server{
		Addr:         addr,
		Handler:      e.chiRouter,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	capitan.Emit(ctx, EngineCreated,
		HostKey.Field(config.Host),
		PortKey.Field(config.Port),
	)

	return e
}

// WithMiddleware adds global middleware and returns the engine for
// chaining. Call it before Register or Mount; the router rejects
// middleware added after routes exist.
func (e *Engine) WithMiddleware(middleware ...func(http.Handler) http.Handler) *Engine {
	for _, mw := range middleware {
		e.chiRouter.Use(mw)
	}
	return e
}

// Register freezes and binds endpoints at their own paths. The first
// invalid definition aborts registration with an error naming it.
func (e *Engine) Register(endpoints ...*Endpoint) error {
	return e.mount("", endpoints)
}

// Mount freezes and binds a controller's endpoints under its prefix.
func (e *Engine) Mount(ctrl Controller) error {
	return e.mount(ctrl.Prefix(), ctrl.Endpoints())
}

func (e *Engine) mount(prefix string, endpoints []*Endpoint) error {
	e.ensureDefaultHandlers()

	for _, endpoint := range endpoints {
		p, err := endpoint.freeze(prefix)
		if err != nil {
			return err
		}

		e.registrations = append(e.registrations, registration{
			endpoint: endpoint,
			pipeline: p,
		})

		httpHandler := e.adaptPipeline(p)
		route := bracedPath(p.path)
		if mw := endpoint.middleware; len(mw) > 0 {
			e.chiRouter.With(mw...).Method(p.method, route, httpHandler)
		} else {
			e.chiRouter.Method(p.method, route, httpHandler)
		}

		capitan.Emit(e.ctx, EndpointRegistered,
			EndpointNameKey.Field(p.name),
			MethodKey.Field(p.method),
			PathKey.Field(route),
		)
	}
	return nil
}

// ensureDefaultHandlers sets up documentation handlers at /openapi and /docs (once).
func (e *Engine) ensureDefaultHandlers() {
	e.defaultHandlersOnce.Do(func() {
		e.registerDefaultHandlers()
	})
}

// registerDefaultHandlers sets up documentation handlers at /openapi and /docs.
func (e *Engine) registerDefaultHandlers() {
	// OpenAPI document at /openapi
	e.chiRouter.Get("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		doc := e.GenerateDocs(&openapi3.Info{
			Title:   "API",
			Version: "1.0.0",
		})

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			http.Error(w, "failed to generate OpenAPI document", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})

	// Docs viewer at /docs
	e.chiRouter.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		html := `<!DOCTYPE html>
<html>
<head>
    <title>API Documentation</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body>
    <script id="api-reference" data-url="/openapi"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`

		w.Write([]byte(html))
	})
}

// responseTracker records whether the response has started so the error
// responder never writes over a partial response.
type responseTracker struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (t *responseTracker) WriteHeader(status int) {
	if !t.wrote {
		t.status = status
		t.wrote = true
	}
	t.ResponseWriter.WriteHeader(status)
}

func (t *responseTracker) Write(b []byte) (int, error) {
	if !t.wrote {
		t.status = http.StatusOK
		t.wrote = true
	}
	return t.ResponseWriter.Write(b)
}

// Flush passes through so handlers writing directly can stream.
func (t *responseTracker) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.wrote = true
		f.Flush()
	}
}

// adaptPipeline converts a frozen pipeline to http.HandlerFunc, wiring the
// engine's error responder as the failure channel.
func (e *Engine) adaptPipeline(p *pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		startTime := time.Now()

		capitan.Emit(ctx, RequestReceived,
			MethodKey.Field(r.Method),
			PathKey.Field(r.URL.Path),
			EndpointNameKey.Field(p.name),
		)

		tracker := &responseTracker{ResponseWriter: w}
		var failure error
		p.Handle(tracker, r, func(err error) {
			failure = err
		})

		durationMs := time.Since(startTime).Milliseconds()

		if failure != nil {
			e.respondError(tracker, r, failure)
			capitan.Emit(ctx, RequestFailed,
				MethodKey.Field(r.Method),
				PathKey.Field(r.URL.Path),
				EndpointNameKey.Field(p.name),
				StatusCodeKey.Field(StatusOf(failure)),
				DurationMsKey.Field(durationMs),
				ErrorKey.Field(failure.Error()),
			)
			return
		}

		status := tracker.status
		if !tracker.wrote {
			status = http.StatusOK
		}
		capitan.Emit(ctx, RequestCompleted,
			MethodKey.Field(r.Method),
			PathKey.Field(r.URL.Path),
			EndpointNameKey.Field(p.name),
			StatusCodeKey.Field(status),
			DurationMsKey.Field(durationMs),
		)
	}
}

// respondError renders a dispatch failure. A custom responder sees every
// failure; the default one writes the standard JSON error body unless the
// response already started.
func (e *Engine) respondError(t *responseTracker, r *http.Request, err error) {
	if e.config.ErrorResponder != nil {
		e.config.ErrorResponder(t, r, err)
		return
	}
	if t.wrote {
		return
	}
	WriteError(t, err)
}

// Router exposes the underlying chi router, mainly for tests and for
// embedding the engine in a larger server.
func (e *Engine) Router() chi.Router {
	return e.chiRouter
}

// Start begins listening for HTTP requests.
// This method blocks until the server is shutdown.
func (e *Engine) Start() error {
	capitan.Emit(e.ctx, EngineStarting,
		HostKey.Field(e.config.Host),
		PortKey.Field(e.config.Port),
		AddressKey.Field(e.server.Addr),
	)

	err := e.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown performs a graceful shutdown of the engine.
func (e *Engine) Shutdown(ctx context.Context) error {
	capitan.Emit(ctx, EngineShutdownStarted)

	// Shutdown HTTP server (waits for active connections to finish)
	err := e.server.Shutdown(ctx)

	// Cancel engine context
	e.cancel()

	if err != nil {
		capitan.Emit(context.Background(), EngineShutdownComplete,
			GracefulKey.Field(false),
			ErrorKey.Field(err.Error()),
		)
	} else {
		capitan.Emit(context.Background(), EngineShutdownComplete,
			GracefulKey.Field(true),
		)
	}

	// Shutdown event system
	capitan.Shutdown()

	return err
}
