package trellis

import (
	"net/http"
	"reflect"
	"sync"
)

// ArgKind enumerates handler argument sources.
type ArgKind int

const (
	// ArgBody is the parsed request body.
	ArgBody ArgKind = iota
	// ArgPathParam is a validated path parameter.
	ArgPathParam
	// ArgQueryParam is a validated query parameter.
	ArgQueryParam
	// ArgRequest is the raw *http.Request.
	ArgRequest
	// ArgResponseWriter is the raw http.ResponseWriter.
	ArgResponseWriter
	// ArgProvider is a value produced by a ProviderFunc.
	ArgProvider
)

// ProviderFunc produces a handler argument from the live request. Options
// carries the declaration-time configuration verbatim.
type ProviderFunc func(r *http.Request, options map[string]any) (any, error)

// Arg declares one positional handler argument and where its value comes
// from. The order of args matches the order of the handler's parameters.
type Arg struct {
	kind     ArgKind
	name     string
	options  map[string]any
	provider ProviderFunc
}

// Body routes the parsed request body into an argument slot. The slot is
// nil when the request carries no body.
func Body() Arg {
	return Arg{kind: ArgBody}
}

// PathParam routes the named path parameter, validated and coerced, into
// an argument slot.
func PathParam(name string) Arg {
	return Arg{kind: ArgPathParam, name: name}
}

// QueryParam routes the named query parameter, validated and coerced, into
// an argument slot.
func QueryParam(name string) Arg {
	return Arg{kind: ArgQueryParam, name: name}
}

// Request routes the raw *http.Request into an argument slot.
func Request() Arg {
	return Arg{kind: ArgRequest}
}

// ResponseWriter routes the raw http.ResponseWriter into an argument slot.
// Handlers writing to it directly should return a Handled result.
func ResponseWriter() Arg {
	return Arg{kind: ArgResponseWriter}
}

// Provider routes the factory's product into an argument slot. Factories
// are the only argument source that may block, so they run concurrently
// during collection; every slot settles before the handler is invoked.
func Provider(factory ProviderFunc, options map[string]any) Arg {
	return Arg{kind: ArgProvider, provider: factory, options: options}
}

// argBinding pairs a declared argument with its compiled validator. The
// validator is set for path and query arguments only.
type argBinding struct {
	arg      Arg
	validate paramValidator
}

// collectArgs resolves every declared argument for one request into the
// handler's positional values. Slots resolve independently; provider slots
// resolve in their own goroutines. The first failing slot, in declaration
// order, aborts the dispatch before the handler runs.
func (p *pipeline) collectArgs(w http.ResponseWriter, r *http.Request) ([]reflect.Value, error) {
	resolved := make([]any, len(p.args))
	failures := make([]error, len(p.args))

	var wg sync.WaitGroup
	for i, binding := range p.args {
		switch binding.arg.kind {
		case ArgProvider:
			wg.Add(1)
			go func(i int, binding argBinding) {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						failures[i] = ErrInternal.WithMessage("argument %d: provider panicked: %v", i, rec)
					}
				}()
				resolved[i], failures[i] = binding.arg.provider(r, binding.arg.options)
			}(i, binding)
		case ArgBody:
			resolved[i] = ParsedBody(r.Context())
		case ArgPathParam:
			raw, present := routeParam(r, binding.arg.name)
			resolved[i], failures[i] = binding.validate(raw, present)
		case ArgQueryParam:
			raw, present := queryParam(r, binding.arg.name)
			resolved[i], failures[i] = binding.validate(raw, present)
		case ArgRequest:
			resolved[i] = r
		case ArgResponseWriter:
			resolved[i] = w
		}
	}
	wg.Wait()

	for _, failure := range failures {
		if failure != nil {
			return nil, failure
		}
	}

	values := make([]reflect.Value, len(p.args))
	for i, value := range resolved {
		adapted, err := adaptValue(value, p.handlerType.In(i), i)
		if err != nil {
			return nil, err
		}
		values[i] = adapted
	}
	return values, nil
}

// adaptValue converts a resolved argument to the handler's parameter type.
// Numeric kinds convert freely; anything else must be assignable. A nil
// value, such as an absent optional parameter, becomes the zero value.
func adaptValue(value any, target reflect.Type, index int) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if isNumericKind(rv.Kind()) && isNumericKind(target.Kind()) {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, ErrContract.WithMessage("argument %d: cannot use %T as %s", index, value, target)
}

func isNumericKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
