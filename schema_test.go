package trellis

import (
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func TestCompile_NilSchemaAcceptsEverything(t *testing.T) {
	v, err := Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile nil schema: %v", err)
	}

	values := []any{nil, "anything", float64(42), true, map[string]any{"a": 1}, []any{1, 2}}
	for _, value := range values {
		if issues := v.Validate(value); issues != nil {
			t.Errorf("nil schema rejected %v: %v", value, issues)
		}
	}
}

func TestCompile_RejectsMalformedSchema(t *testing.T) {
	schema := openapi3.NewStringSchema().WithPattern("[unclosed")

	if _, err := Compile(schema); err == nil {
		t.Error("expected compile error for invalid pattern")
	}
}

func TestValidate_ObjectSchema(t *testing.T) {
	schema := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("count", openapi3.NewIntegerSchema())
	schema.Required = []string{"name"}

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	tests := []struct {
		name  string
		value any
		valid bool
	}{
		{"valid full", map[string]any{"name": "a", "count": float64(3)}, true},
		{"valid without optional", map[string]any{"name": "a"}, true},
		{"missing required", map[string]any{"count": float64(3)}, false},
		{"wrong type", map[string]any{"name": 42}, false},
		{"not an object", "plain string", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := v.Validate(tt.value)
			if tt.valid && issues != nil {
				t.Errorf("expected valid, got issues: %v", issues)
			}
			if !tt.valid && issues == nil {
				t.Error("expected issues, got none")
			}
		})
	}
}

func TestValidate_RepeatedUseIsStateless(t *testing.T) {
	schema := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema())
	schema.Required = []string{"name"}

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	good := map[string]any{"name": "a"}
	bad := map[string]any{}

	// Alternating verdicts must not bleed into each other: a failing call
	// leaves nothing behind for the next one to report.
	for i := 0; i < 3; i++ {
		if issues := v.Validate(bad); issues == nil {
			t.Fatalf("round %d: expected issues for the invalid value", i)
		}
		if issues := v.Validate(good); issues != nil {
			t.Fatalf("round %d: expected no issues for the valid value, got %v", i, issues)
		}
	}
}

func TestValidate_CollectsMultipleIssues(t *testing.T) {
	schema := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("count", openapi3.NewIntegerSchema())
	schema.Required = []string{"name", "count"}

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	issues := v.Validate(map[string]any{})
	if len(issues) < 2 {
		t.Errorf("expected one issue per missing property, got %v", issues)
	}
}

func TestValidate_NumericBounds(t *testing.T) {
	schema := openapi3.NewIntegerSchema().WithMin(1).WithMax(100)

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	if issues := v.Validate(float64(50)); issues != nil {
		t.Errorf("expected 50 to pass, got %v", issues)
	}
	if issues := v.Validate(float64(0)); issues == nil {
		t.Error("expected 0 to fail the minimum")
	}
	if issues := v.Validate(float64(101)); issues == nil {
		t.Error("expected 101 to fail the maximum")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	schema := openapi3.NewObjectSchema().
		WithProperty("limit", openapi3.NewIntegerSchema().WithDefault(10))

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	value := map[string]any{}
	if issues := v.Validate(value); issues != nil {
		t.Fatalf("expected valid, got %v", issues)
	}
	if value["limit"] == nil {
		t.Error("expected default to be written into the value")
	}
}

func TestValidate_CoerceStrings(t *testing.T) {
	tests := []struct {
		name   string
		schema *openapi3.Schema
		raw    string
		valid  bool
	}{
		{"integer", openapi3.NewIntegerSchema(), "42", true},
		{"integer garbage", openapi3.NewIntegerSchema(), "forty-two", false},
		{"number", openapi3.NewFloat64Schema(), "3.25", true},
		{"boolean true", openapi3.NewBoolSchema(), "true", true},
		{"boolean garbage", openapi3.NewBoolSchema(), "yes please", false},
		{"string stays string", openapi3.NewStringSchema(), "42", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Compile(tt.schema, CoerceStrings())
			if err != nil {
				t.Fatalf("failed to compile: %v", err)
			}
			issues := v.Validate(tt.raw)
			if tt.valid && issues != nil {
				t.Errorf("expected %q to coerce and pass, got %v", tt.raw, issues)
			}
			if !tt.valid && issues == nil {
				t.Errorf("expected %q to fail", tt.raw)
			}
		})
	}
}

func TestValidate_CoerceNestedObjectString(t *testing.T) {
	schema := openapi3.NewObjectSchema().
		WithProperty("count", openapi3.NewIntegerSchema())

	v, err := Compile(schema, CoerceStrings())
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	// A JSON object arriving as a raw string parses, then members coerce.
	if issues := v.Validate(`{"count": 7}`); issues != nil {
		t.Errorf("expected JSON object string to pass, got %v", issues)
	}
}

func TestValidate_WithoutCoercionStringsFail(t *testing.T) {
	v, err := Compile(openapi3.NewIntegerSchema())
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	if issues := v.Validate("42"); issues == nil {
		t.Error("expected raw string to fail an integer schema without coercion")
	}
}

func TestIssue_String(t *testing.T) {
	root := Issue{Reason: "value must be an integer"}
	if root.String() != "value must be an integer" {
		t.Errorf("unexpected rendering: %q", root.String())
	}

	nested := Issue{Path: "widget/count", Reason: "number must be at least 1"}
	if nested.String() != "widget/count: number must be at least 1" {
		t.Errorf("unexpected rendering: %q", nested.String())
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrorMessage(nil); got != "value is invalid" {
		t.Errorf("expected fallback for empty issues, got %q", got)
	}

	issues := []Issue{
		{Path: "a", Reason: "first"},
		{Reason: "second"},
	}
	got := ErrorMessage(issues)
	if !strings.Contains(got, "a: first") || !strings.Contains(got, "second") {
		t.Errorf("expected both issues in message, got %q", got)
	}
	if !strings.Contains(got, "; ") {
		t.Errorf("expected issues joined with semicolons, got %q", got)
	}
}

func TestValidate_IssuesNamePath(t *testing.T) {
	schema := openapi3.NewObjectSchema().
		WithProperty("count", openapi3.NewIntegerSchema())

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	issues := v.Validate(map[string]any{"count": "nope"})
	if len(issues) == 0 {
		t.Fatal("expected issues")
	}
	found := false
	for _, issue := range issues {
		if strings.Contains(issue.Path, "count") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an issue naming the failing property, got %v", issues)
	}
}

func TestValidate_ArraySchema(t *testing.T) {
	schema := openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())

	v, err := Compile(schema)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	if issues := v.Validate([]any{"a", "b"}); issues != nil {
		t.Errorf("expected string array to pass, got %v", issues)
	}
	if issues := v.Validate([]any{"a", float64(1)}); issues == nil {
		t.Error("expected mixed array to fail")
	}
}

func TestJSONShape(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	shaped, err := jsonShape(payload{Name: "x", Count: 2})
	if err != nil {
		t.Fatalf("failed to shape struct: %v", err)
	}
	m, ok := shaped.(map[string]any)
	if !ok {
		t.Fatalf("expected map shape, got %T", shaped)
	}
	if m["name"] != "x" || m["count"] != float64(2) {
		t.Errorf("unexpected shape: %v", m)
	}

	// Already-decoded values pass through untouched.
	original := map[string]any{"k": "v"}
	passed, err := jsonShape(original)
	if err != nil {
		t.Fatalf("failed to shape map: %v", err)
	}
	if p, ok := passed.(map[string]any); !ok || p["k"] != "v" {
		t.Errorf("expected passthrough, got %v", passed)
	}
}
