package trellis

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/zoobzio/capitan"
)

// dispatchState names the stage a dispatch is in, for events and panic
// reports.
type dispatchState int

const (
	stateIdle dispatchState = iota
	stateValidatingRequest
	stateCollectingArguments
	stateInvoking
	stateInterpretingResult
	stateValidatingResponse
	stateTransmittingResponse
	stateDone
)

func (s dispatchState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateValidatingRequest:
		return "validating request"
	case stateCollectingArguments:
		return "collecting arguments"
	case stateInvoking:
		return "invoking handler"
	case stateInterpretingResult:
		return "interpreting result"
	case stateValidatingResponse:
		return "validating response"
	case stateTransmittingResponse:
		return "transmitting response"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// pipeline is the frozen, compiled form of one endpoint. It is immutable
// after freeze and shared by every request to the route.
type pipeline struct {
	name          string
	method        string
	path          string // full ":name" template, prefix resolved
	handler       reflect.Value
	handlerType   reflect.Type
	args          []argBinding
	bodyRequired  bool
	bodyValidator *Validator
	responses     map[int]*Validator
	returnsErr    bool
}

// response is a handler result flattened for transmission.
type response struct {
	status      int
	headers     map[string]string
	cookies     map[string]cookie
	contentType string
	raw         bool
	handled     bool
	body        any
	hasBody     bool
}

// Handle runs the dispatch pipeline for one request. Failures of any stage
// are classified and delivered through next, unmodified; handler errors
// pass through exactly as returned. Handle itself never panics and never
// writes an error response.
func (p *pipeline) Handle(w http.ResponseWriter, r *http.Request, next func(error)) {
	state := stateIdle
	defer func() {
		if rec := recover(); rec != nil {
			err := ErrInternal.WithMessage("endpoint %q: panic while %s: %v", p.name, state, rec)
			p.emitFailure(r, state, err)
			next(err)
		}
	}()

	capitan.Debug(r.Context(), DispatchStarted,
		EndpointNameKey.Field(p.name),
	)

	state = stateValidatingRequest
	if err := p.validateRequest(r); err != nil {
		p.fail(r, state, err, next)
		return
	}

	state = stateCollectingArguments
	args, err := p.collectArgs(w, r)
	if err != nil {
		p.fail(r, state, err, next)
		return
	}

	state = stateInvoking
	out, err := p.invoke(args)
	if err != nil {
		p.fail(r, state, err, next)
		return
	}

	state = stateInterpretingResult
	resp, err := p.interpret(out)
	if err != nil {
		p.fail(r, state, err, next)
		return
	}
	if resp.handled {
		state = stateDone
		capitan.Info(r.Context(), DispatchCompleted,
			EndpointNameKey.Field(p.name),
			HandledKey.Field(true),
		)
		return
	}

	state = stateValidatingResponse
	if err := p.validateResponse(resp); err != nil {
		p.fail(r, state, err, next)
		return
	}

	state = stateTransmittingResponse
	if err := p.transmit(w, resp); err != nil {
		p.fail(r, state, err, next)
		return
	}

	state = stateDone
	capitan.Info(r.Context(), DispatchCompleted,
		EndpointNameKey.Field(p.name),
		StatusCodeKey.Field(resp.status),
	)
}

// fail emits the failure event and hands the error to next verbatim.
func (p *pipeline) fail(r *http.Request, state dispatchState, err error, next func(error)) {
	p.emitFailure(r, state, err)
	next(err)
}

func (p *pipeline) emitFailure(r *http.Request, state dispatchState, err error) {
	if StatusOf(err) >= http.StatusInternalServerError {
		capitan.Error(r.Context(), DispatchFailed,
			EndpointNameKey.Field(p.name),
			StageKey.Field(state.String()),
			StatusCodeKey.Field(StatusOf(err)),
			ErrorKey.Field(err.Error()),
		)
		return
	}
	capitan.Warn(r.Context(), DispatchFailed,
		EndpointNameKey.Field(p.name),
		StageKey.Field(state.String()),
		StatusCodeKey.Field(StatusOf(err)),
		ErrorKey.Field(err.Error()),
	)
}

// validateRequest checks the parsed body against the declared contract.
func (p *pipeline) validateRequest(r *http.Request) error {
	body := ParsedBody(r.Context())
	if body == nil {
		if p.bodyRequired {
			return ErrBadRequest.WithMessage("A body is required.")
		}
		return nil
	}
	if issues := p.bodyValidator.Validate(body); len(issues) > 0 {
		return ErrBadRequest.WithMessage("request body is invalid: %s", ErrorMessage(issues))
	}
	return nil
}

// invoke calls the handler exactly once. A declared error return comes
// back verbatim; the value return, when present, comes back as-is.
func (p *pipeline) invoke(args []reflect.Value) (any, error) {
	results := p.handler.Call(args)

	if p.returnsErr {
		last := results[len(results)-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		results = results[:len(results)-1]
	}

	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Interface(), nil
}

// interpret splits the handler's return into transmission parts. A handler
// that produced nothing violated its contract: an endpoint either returns
// a result or reports an error, never neither.
func (p *pipeline) interpret(out any) (*response, error) {
	if out == nil {
		return nil, ErrContract.WithMessage("endpoint %q: handler returned no result", p.name)
	}

	if built, ok := out.(*Result); ok {
		if built == nil {
			return nil, ErrContract.WithMessage("endpoint %q: handler returned no result", p.name)
		}
		return &response{
			status:      built.status,
			headers:     built.headers,
			cookies:     built.cookies,
			contentType: built.contentType,
			raw:         built.raw,
			handled:     built.handled,
			body:        built.body,
			hasBody:     built.hasBody,
		}, nil
	}

	return &response{
		status:  http.StatusOK,
		body:    out,
		hasBody: true,
	}, nil
}

// validateResponse checks the user-supplied body against the schema
// declared for the resolved status. Statuses without a declaration skip
// validation; a mismatch is the server's bug and classifies as 500.
func (p *pipeline) validateResponse(resp *response) error {
	if !resp.hasBody {
		return nil
	}
	check, declared := p.responses[resp.status]
	if !declared {
		return nil
	}

	shaped, err := jsonShape(resp.body)
	if err != nil {
		return ErrInternal.WithMessage("endpoint %q: response for status %d is not serializable", p.name, resp.status).WithCause(err)
	}
	if issues := check.Validate(shaped); len(issues) > 0 {
		return ErrInternal.WithMessage("endpoint %q: response for status %d does not match its declared schema: %s",
			p.name, resp.status, ErrorMessage(issues))
	}
	return nil
}

// transmit writes the response. The payload is prepared before any header
// is written so a serialization failure can still fail the dispatch.
//
// Content type resolves as: explicit builder content type, then an
// explicit Content-Type header, then application/json on the JSON path.
// Bare string bodies with no explicit content type transmit as-is with
// none set.
func (p *pipeline) transmit(w http.ResponseWriter, resp *response) error {
	contentType := resp.contentType
	if contentType == "" {
		contentType = resp.headers["Content-Type"]
	}

	var payload []byte
	if resp.hasBody {
		str, isString := resp.body.(string)
		switch {
		case resp.raw:
			data, err := rawPayload(resp.body)
			if err != nil {
				return ErrContract.WithMessage("endpoint %q: %v", p.name, err)
			}
			payload = data
		case isString && !isJSONContentType(contentType):
			payload = []byte(str)
		default:
			data, err := json.Marshal(resp.body)
			if err != nil {
				return ErrInternal.WithMessage("endpoint %q: marshaling response body", p.name).WithCause(err)
			}
			payload = data
			if contentType == "" {
				contentType = "application/json"
			}
		}
	}

	header := w.Header()
	for name, value := range resp.headers {
		header.Set(name, value)
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	for name, c := range resp.cookies {
		http.SetCookie(w, c.httpCookie(name))
	}

	w.WriteHeader(resp.status)
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return ErrInternal.WithMessage("endpoint %q: writing response body", p.name).WithCause(err)
		}
	}
	return nil
}

// rawPayload returns the byte form of a raw-flagged body.
func rawPayload(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("raw body must be string or []byte, got %T", body)
	}
}

// isJSONContentType reports whether the media type carries JSON.
func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx != -1 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
