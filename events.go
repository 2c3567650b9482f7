package trellis

import "github.com/zoobzio/capitan"

// Engine lifecycle signals.
var (
	// EngineCreated is emitted when an Engine instance is created.
	// Fields: HostKey, PortKey.
	EngineCreated = capitan.NewSignal("http.engine.created", "HTTP engine instance created with configured host and port")

	// EngineStarting is emitted when the server starts listening for requests.
	// Fields: HostKey, PortKey, AddressKey.
	EngineStarting = capitan.NewSignal("http.engine.starting", "HTTP server starting to listen for requests on configured address")

	// EngineShutdownStarted is emitted when graceful shutdown is initiated.
	// Fields: none.
	EngineShutdownStarted = capitan.NewSignal("http.engine.shutdown.started", "HTTP engine graceful shutdown initiated")

	// EngineShutdownComplete is emitted when shutdown finishes.
	// Fields: GracefulKey, ErrorKey (if failed).
	EngineShutdownComplete = capitan.NewSignal("http.engine.shutdown.complete", "HTTP engine shutdown completed, graceful or with error")
)

// Registration signals.
var (
	// EndpointRegistered is emitted when an endpoint is bound to a route.
	// Fields: EndpointNameKey, MethodKey, PathKey.
	EndpointRegistered = capitan.NewSignal("http.endpoint.registered", "Endpoint definition frozen and bound to engine route")
)

// Request lifecycle signals.
var (
	// RequestReceived is emitted when a request reaches a bound endpoint.
	// Fields: MethodKey, PathKey, EndpointNameKey.
	RequestReceived = capitan.NewSignal("http.request.received", "HTTP request received by engine and routed to endpoint")

	// RequestCompleted is emitted when a request completes successfully.
	// Fields: MethodKey, PathKey, EndpointNameKey, StatusCodeKey, DurationMsKey.
	RequestCompleted = capitan.NewSignal("http.request.completed", "HTTP request completed successfully with response sent")

	// RequestFailed is emitted when a request fails during dispatch.
	// Fields: MethodKey, PathKey, EndpointNameKey, StatusCodeKey, DurationMsKey, ErrorKey.
	RequestFailed = capitan.NewSignal("http.request.failed", "HTTP request failed during dispatch with error")
)

// Dispatch pipeline signals.
var (
	// DispatchStarted is emitted when the pipeline begins processing.
	// Fields: EndpointNameKey.
	DispatchStarted = capitan.NewSignal("http.dispatch.started", "Dispatch pipeline started for incoming request")

	// DispatchCompleted is emitted when the pipeline finishes cleanly.
	// Fields: EndpointNameKey, StatusCodeKey or HandledKey.
	DispatchCompleted = capitan.NewSignal("http.dispatch.completed", "Dispatch pipeline completed and response transmitted")

	// DispatchFailed is emitted when any pipeline stage fails.
	// Fields: EndpointNameKey, StageKey, StatusCodeKey, ErrorKey.
	DispatchFailed = capitan.NewSignal("http.dispatch.failed", "Dispatch pipeline stage failed with classified error")
)

// Event field keys (primitive types only).
var (
	// Engine fields.
	HostKey    = capitan.NewStringKey("host")
	PortKey    = capitan.NewIntKey("port")
	AddressKey = capitan.NewStringKey("address")

	// Request/Response fields.
	MethodKey       = capitan.NewStringKey("method")
	PathKey         = capitan.NewStringKey("path")
	EndpointNameKey = capitan.NewStringKey("endpoint_name")
	StatusCodeKey   = capitan.NewIntKey("status_code")
	DurationMsKey   = capitan.NewInt64Key("duration_ms")
	ErrorKey        = capitan.NewStringKey("error")
	GracefulKey     = capitan.NewBoolKey("graceful")

	// Dispatch fields.
	StageKey   = capitan.NewStringKey("stage")
	HandledKey = capitan.NewBoolKey("handled")
)
