package trellis

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

// paramValidator validates one parameter's raw value and produces the
// coerced value handed to the handler. Compiled once at freeze, called per
// request.
type paramValidator func(raw string, present bool) (any, error)

// compileWrapped builds a coercing validator for the {"value": raw} form.
// Wrapping lets a plain value schema express required-ness the standard
// way: the wrapper is an object with a single "value" property, required
// exactly when the parameter is.
func compileWrapped(schema *openapi3.Schema, required bool) (*Validator, error) {
	property := schema
	if property == nil {
		property = openapi3.NewSchema()
	}

	wrapper := openapi3.NewObjectSchema().WithProperty("value", property)
	if required {
		wrapper.Required = []string{"value"}
	}
	return Compile(wrapper, CoerceStrings())
}

// checkWrapped validates raw inside the wrapper and returns the coerced
// member. Absent optional values come back as the schema default, or nil
// when none is declared.
func (v *Validator) checkWrapped(raw string, present bool) (any, []Issue) {
	m := map[string]any{}
	if present {
		m["value"] = raw
	}
	if issues := v.Validate(m); len(issues) > 0 {
		return nil, issues
	}
	return m["value"], nil
}

// buildQueryValidator compiles the validation step for one query
// parameter. A missing required parameter is the client's omission, so it
// reads as 400; a present value failing its schema reads as 422.
func buildQueryValidator(name string, spec ParamSpec) (paramValidator, error) {
	wrapped, err := compileWrapped(spec.Schema, spec.Required)
	if err != nil {
		return nil, err
	}

	return func(raw string, present bool) (any, error) {
		if !present && spec.Required {
			return nil, ErrBadRequest.WithMessage("query parameter %q is required", name)
		}
		value, issues := wrapped.checkWrapped(raw, present)
		if len(issues) > 0 {
			return nil, ErrUnprocessable.WithMessage("query parameter %q is invalid: %s", name, ErrorMessage(issues))
		}
		return value, nil
	}, nil
}

// buildPathValidator compiles the validation step for one path parameter.
// Path parameters are always required, and any failure means the URL does
// not name an existing resource: the error is 404 with no validation
// detail.
func buildPathValidator(name string, spec ParamSpec) (paramValidator, error) {
	wrapped, err := compileWrapped(spec.Schema, true)
	if err != nil {
		return nil, err
	}

	return func(raw string, present bool) (any, error) {
		if !present {
			return nil, ErrNotFound
		}
		value, issues := wrapped.checkWrapped(raw, present)
		if len(issues) > 0 {
			return nil, ErrNotFound
		}
		return value, nil
	}, nil
}

// routeParam reads one path parameter from the chi route context.
func routeParam(r *http.Request, name string) (string, bool) {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == name {
				return rctx.URLParams.Values[i], true
			}
		}
	}
	return "", false
}

// queryParam reads one query parameter, taking the first value when the
// key repeats.
func queryParam(r *http.Request, name string) (string, bool) {
	values := r.URL.Query()[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}
