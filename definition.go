package trellis

import (
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-playground/validator/v10"
)

// BodySpec describes the request body contract.
type BodySpec struct {
	Required bool
	Schema   *openapi3.Schema
}

// ParamSpec describes one declared path or query parameter. Required lives
// here rather than inside the schema; path parameters are always required.
type ParamSpec struct {
	Required bool
	Schema   *openapi3.Schema
}

// ResponseSpec documents one declared response status.
type ResponseSpec struct {
	Description string
	Schema      *openapi3.Schema
}

// Endpoint is the declarative description of one HTTP operation: method,
// path, parameter and body contracts, response contracts, and the ordered
// argument sources for the handler. Routing, validation, and documentation
// all derive from this one definition.
//
// Build an Endpoint with NewEndpoint and the With* methods, then register
// it with an Engine. Registration freezes the definition into an immutable
// compiled pipeline; builder calls after that do not affect the bound
// route.
type Endpoint struct {
	name        string
	method      string
	path        string
	summary     string
	description string
	tags        []string
	body        *BodySpec
	pathParams  map[string]ParamSpec
	queryParams map[string]ParamSpec
	responses   map[int]ResponseSpec
	args        []Arg
	handler     any
	middleware  []func(http.Handler) http.Handler
	docOverride *openapi3.Operation
}

// NewEndpoint creates an endpoint definition. Path parameters use ":name"
// segments, e.g. "/widgets/:id". The handler is any non-variadic func; its
// positional parameters are described with WithArgs, and it may return
// nothing to declare, a value, an error, or a value and an error.
func NewEndpoint(name, method, path string, handler any) *Endpoint {
	return &Endpoint{
		name:        name,
		method:      method,
		path:        path,
		pathParams:  make(map[string]ParamSpec),
		queryParams: make(map[string]ParamSpec),
		responses:   make(map[int]ResponseSpec),
		handler:     handler,
	}
}

// Name returns the operation id.
func (e *Endpoint) Name() string {
	return e.name
}

// Method returns the HTTP method.
func (e *Endpoint) Method() string {
	return e.method
}

// Path returns the ":name"-style path template, unprefixed.
func (e *Endpoint) Path() string {
	return e.path
}

// WithSummary sets the documentation summary.
func (e *Endpoint) WithSummary(summary string) *Endpoint {
	e.summary = summary
	return e
}

// WithDescription sets the documentation description.
func (e *Endpoint) WithDescription(description string) *Endpoint {
	e.description = description
	return e
}

// WithTags sets the documentation tags.
func (e *Endpoint) WithTags(tags ...string) *Endpoint {
	e.tags = tags
	return e
}

// WithRequestBody declares the request body contract. A nil schema means
// the body is accepted without validation.
func (e *Endpoint) WithRequestBody(required bool, schema *openapi3.Schema) *Endpoint {
	e.body = &BodySpec{Required: required, Schema: schema}
	return e
}

// WithPathParam declares a path parameter's schema. Path parameters are
// always required; a parameter used in the path but never declared passes
// through unvalidated.
func (e *Endpoint) WithPathParam(name string, schema *openapi3.Schema) *Endpoint {
	e.pathParams[name] = ParamSpec{Required: true, Schema: schema}
	return e
}

// WithQueryParam declares a query parameter. A nil schema means the raw
// value passes through; the required check still applies.
func (e *Endpoint) WithQueryParam(name string, required bool, schema *openapi3.Schema) *Endpoint {
	e.queryParams[name] = ParamSpec{Required: required, Schema: schema}
	return e
}

// WithResponse declares a response for one status code. Response bodies
// for undeclared statuses transmit without validation.
func (e *Endpoint) WithResponse(status int, description string, schema *openapi3.Schema) *Endpoint {
	e.responses[status] = ResponseSpec{Description: description, Schema: schema}
	return e
}

// WithArgs declares the handler's positional arguments in order.
func (e *Endpoint) WithArgs(args ...Arg) *Endpoint {
	e.args = args
	return e
}

// WithMiddleware adds route middleware applied around the dispatch
// pipeline for this endpoint only.
func (e *Endpoint) WithMiddleware(middleware ...func(http.Handler) http.Handler) *Endpoint {
	e.middleware = append(e.middleware, middleware...)
	return e
}

// WithDocOverride replaces the generated documentation operation for this
// endpoint wholesale.
func (e *Endpoint) WithDocOverride(operation *openapi3.Operation) *Endpoint {
	e.docOverride = operation
	return e
}

// Controller supplies an ordered set of endpoints mounted under a shared
// path prefix.
type Controller interface {
	Prefix() string
	Endpoints() []*Endpoint
}

// Group is a Controller built by accumulation.
type Group struct {
	prefix    string
	endpoints []*Endpoint
}

// NewGroup creates a group mounted at prefix.
func NewGroup(prefix string) *Group {
	return &Group{prefix: prefix}
}

// Add appends endpoints to the group and returns the group for chaining.
func (g *Group) Add(endpoints ...*Endpoint) *Group {
	g.endpoints = append(g.endpoints, endpoints...)
	return g
}

// Prefix implements Controller.
func (g *Group) Prefix() string {
	return g.prefix
}

// Endpoints implements Controller.
func (g *Group) Endpoints() []*Endpoint {
	return g.endpoints
}

var (
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
	requestType        = reflect.TypeOf((*http.Request)(nil))
	responseWriterType = reflect.TypeOf((*http.ResponseWriter)(nil)).Elem()
)

// endpointValidator checks the validatable projection of a definition.
var endpointValidator = validator.New()

// endpointCheck is the struct-tag-validatable slice of an endpoint.
type endpointCheck struct {
	Name   string `validate:"required"`
	Method string `validate:"required,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS TRACE CONNECT"`
	Path   string `validate:"required,startswith=/"`
}

// freeze validates the definition and compiles it into the immutable
// pipeline the router binds. Definition mistakes surface here, at
// registration, never during a request.
func (e *Endpoint) freeze(prefix string) (*pipeline, error) {
	fullPath := joinPath(prefix, e.path)

	check := endpointCheck{Name: e.name, Method: e.method, Path: fullPath}
	if err := endpointValidator.Struct(check); err != nil {
		return nil, fmt.Errorf("endpoint %q: invalid definition: %w", e.name, err)
	}

	if e.handler == nil {
		return nil, fmt.Errorf("endpoint %q: nil handler", e.name)
	}
	handlerValue := reflect.ValueOf(e.handler)
	handlerType := handlerValue.Type()
	if handlerType.Kind() != reflect.Func {
		return nil, fmt.Errorf("endpoint %q: handler must be a func, got %T", e.name, e.handler)
	}
	if handlerType.IsVariadic() {
		return nil, fmt.Errorf("endpoint %q: variadic handlers are not supported", e.name)
	}
	if handlerType.NumIn() != len(e.args) {
		return nil, fmt.Errorf("endpoint %q: handler takes %d arguments but %d are declared",
			e.name, handlerType.NumIn(), len(e.args))
	}

	returnsErr := false
	switch handlerType.NumOut() {
	case 0:
		// Freezes fine; every dispatch reports the no-result contract
		// violation.
	case 1:
		returnsErr = handlerType.Out(0) == errorType
	case 2:
		if handlerType.Out(1) != errorType {
			return nil, fmt.Errorf("endpoint %q: second return must be error, got %s",
				e.name, handlerType.Out(1))
		}
		returnsErr = true
	default:
		return nil, fmt.Errorf("endpoint %q: handler returns %d values, want at most 2",
			e.name, handlerType.NumOut())
	}

	templateParams := pathParamNames(fullPath)
	for name := range e.pathParams {
		if !containsString(templateParams, name) {
			return nil, fmt.Errorf("endpoint %q: declared path parameter %q is not in path %q",
				e.name, name, fullPath)
		}
	}

	// Fixed-source arguments are type-checked here so mismatches fail at
	// registration.
	for i, arg := range e.args {
		switch arg.kind {
		case ArgPathParam:
			if !containsString(templateParams, arg.name) {
				return nil, fmt.Errorf("endpoint %q: argument %d references path parameter %q missing from path %q",
					e.name, i, arg.name, fullPath)
			}
		case ArgProvider:
			if arg.provider == nil {
				return nil, fmt.Errorf("endpoint %q: argument %d has no provider func", e.name, i)
			}
		case ArgRequest:
			if !requestType.AssignableTo(handlerType.In(i)) {
				return nil, fmt.Errorf("endpoint %q: argument %d carries *http.Request but the handler wants %s",
					e.name, i, handlerType.In(i))
			}
		case ArgResponseWriter:
			if !responseWriterType.AssignableTo(handlerType.In(i)) {
				return nil, fmt.Errorf("endpoint %q: argument %d carries http.ResponseWriter but the handler wants %s",
					e.name, i, handlerType.In(i))
			}
		}
	}

	var bodyRequired bool
	var bodySchema *openapi3.Schema
	if e.body != nil {
		bodyRequired = e.body.Required
		bodySchema = e.body.Schema
	}
	bodyValidator, err := Compile(bodySchema)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: request body schema: %w", e.name, err)
	}

	bindings := make([]argBinding, len(e.args))
	for i, arg := range e.args {
		binding := argBinding{arg: arg}
		switch arg.kind {
		case ArgPathParam:
			validate, err := buildPathValidator(arg.name, e.pathParams[arg.name])
			if err != nil {
				return nil, fmt.Errorf("endpoint %q: path parameter %q: %w", e.name, arg.name, err)
			}
			binding.validate = validate
		case ArgQueryParam:
			validate, err := buildQueryValidator(arg.name, e.queryParams[arg.name])
			if err != nil {
				return nil, fmt.Errorf("endpoint %q: query parameter %q: %w", e.name, arg.name, err)
			}
			binding.validate = validate
		}
		bindings[i] = binding
	}

	responses := make(map[int]*Validator, len(e.responses))
	for status, decl := range e.responses {
		check, err := Compile(decl.Schema)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: response %d schema: %w", e.name, status, err)
		}
		responses[status] = check
	}

	return &pipeline{
		name:          e.name,
		method:        e.method,
		path:          fullPath,
		handler:       handlerValue,
		handlerType:   handlerType,
		args:          bindings,
		bodyRequired:  bodyRequired,
		bodyValidator: bodyValidator,
		responses:     responses,
		returnsErr:    returnsErr,
	}, nil
}

var pathParamPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// pathParamNames lists the ":name" parameters in a path template.
func pathParamNames(path string) []string {
	matches := pathParamPattern.FindAllStringSubmatch(path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// bracedPath converts ":name" segments to the "{name}" syntax that chi
// routes and OpenAPI path templates share.
func bracedPath(path string) string {
	return pathParamPattern.ReplaceAllString(path, "{$1}")
}

// joinPath joins a mount prefix and an endpoint path without doubling
// slashes.
func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "" || path == "/":
		return prefix
	default:
		return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(path, "/")
	}
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
