package trellis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Issue describes a single schema violation.
type Issue struct {
	Path   string // property path within the validated value, empty for the root
	Reason string
}

// String renders the issue as "path: reason", or just the reason for root
// violations.
func (i Issue) String() string {
	if i.Path != "" {
		return i.Path + ": " + i.Reason
	}
	return i.Reason
}

// fallbackReason is used when the schema engine reports a failure without
// a usable description.
const fallbackReason = "value is invalid"

// ErrorMessage flattens issues into a single line.
func ErrorMessage(issues []Issue) string {
	if len(issues) == 0 {
		return fallbackReason
	}
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.String())
	}
	return strings.Join(parts, "; ")
}

// ValidatorOption configures a Validator at compile time.
type ValidatorOption func(*Validator)

// CoerceStrings makes the validator convert raw string inputs to the
// schema's declared primitive types before validating. Parameter values
// arrive as strings, so parameter validators always compile with this.
func CoerceStrings() ValidatorOption {
	return func(v *Validator) {
		v.coerce = true
	}
}

// Validator checks values against a compiled OpenAPI schema. Compile it
// once at setup; a Validator is immutable and safe for concurrent use.
type Validator struct {
	schema *openapi3.Schema
	coerce bool
}

// Compile prepares a reusable validator for schema. The schema itself is
// validated here so malformed definitions fail at registration, not per
// request; this also precompiles any patterns. A nil schema compiles to a
// validator that accepts every value unchanged.
func Compile(schema *openapi3.Schema, opts ...ValidatorOption) (*Validator, error) {
	if schema != nil {
		if err := schema.Validate(context.Background()); err != nil {
			return nil, err
		}
	}

	v := &Validator{schema: schema}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate checks value against the schema, applying coercion first when
// enabled and writing schema defaults for absent object properties in
// place. A nil return means the value conforms.
func (v *Validator) Validate(value any) []Issue {
	if v.schema == nil {
		return nil
	}

	if v.coerce {
		value = coerceValue(v.schema, value)
	}

	err := v.schema.VisitJSON(value,
		openapi3.MultiErrors(),
		openapi3.DefaultsSet(func() {}),
	)
	if err == nil {
		return nil
	}
	return issuesFrom(err)
}

// coerceValue converts raw strings to the schema's declared type where the
// conversion is unambiguous. Strings that do not convert pass through so
// the type violation surfaces from the schema engine. Object and array
// values are descended so nested raw strings coerce too.
func coerceValue(schema *openapi3.Schema, value any) any {
	if schema == nil {
		return value
	}

	if m, ok := value.(map[string]any); ok && schema.Type.Is(openapi3.TypeObject) {
		for name, ref := range schema.Properties {
			if ref == nil {
				continue
			}
			if raw, exists := m[name]; exists {
				m[name] = coerceValue(ref.Value, raw)
			}
		}
		return m
	}

	if items, ok := value.([]any); ok && schema.Type.Is(openapi3.TypeArray) && schema.Items != nil {
		for i, item := range items {
			items[i] = coerceValue(schema.Items.Value, item)
		}
		return items
	}

	s, ok := value.(string)
	if !ok {
		return value
	}

	switch {
	case schema.Type.Is(openapi3.TypeInteger):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case schema.Type.Is(openapi3.TypeNumber):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case schema.Type.Is(openapi3.TypeBoolean):
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case schema.Type.Is(openapi3.TypeObject), schema.Type.Is(openapi3.TypeArray):
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return coerceValue(schema, parsed)
			}
		}
	}
	return value
}

// issuesFrom converts the schema engine's error values into issues.
func issuesFrom(err error) []Issue {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		issues := make([]Issue, 0, len(multi))
		for _, item := range multi {
			issues = append(issues, issueFrom(item))
		}
		return issues
	}
	return []Issue{issueFrom(err)}
}

func issueFrom(err error) Issue {
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		reason := se.Reason
		if reason == "" {
			reason = fallbackReason
		}
		return Issue{
			Path:   strings.Join(se.JSONPointer(), "/"),
			Reason: reason,
		}
	}

	msg := err.Error()
	if msg == "" {
		msg = fallbackReason
	}
	return Issue{Reason: msg}
}

// jsonShape converts an arbitrary Go value to its JSON-decoded form so the
// schema engine can walk it. Values already in decoded form pass through.
func jsonShape(value any) (any, error) {
	switch value.(type) {
	case nil, bool, string, float64, int, int32, int64, map[string]any, []any:
		return value, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var shaped any
	if err := json.Unmarshal(data, &shaped); err != nil {
		return nil, err
	}
	return shaped, nil
}
