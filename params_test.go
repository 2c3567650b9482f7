package trellis

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func TestQueryValidator_RequiredMissingIs400(t *testing.T) {
	validate, err := buildQueryValidator("limit", ParamSpec{Required: true, Schema: openapi3.NewIntegerSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	_, verr := validate("", false)
	if !errors.Is(verr, ErrBadRequest) {
		t.Errorf("expected 400 classification, got %v", verr)
	}
	if !strings.Contains(verr.Error(), `query parameter "limit" is required`) {
		t.Errorf("unexpected message: %q", verr.Error())
	}
}

func TestQueryValidator_InvalidValueIs422(t *testing.T) {
	validate, err := buildQueryValidator("limit", ParamSpec{Required: true, Schema: openapi3.NewIntegerSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	_, verr := validate("ten", true)
	if !errors.Is(verr, ErrUnprocessable) {
		t.Errorf("expected 422 classification, got %v", verr)
	}
	if !strings.Contains(verr.Error(), `query parameter "limit" is invalid`) {
		t.Errorf("expected the parameter named in the message, got %q", verr.Error())
	}
}

func TestQueryValidator_CoercesValue(t *testing.T) {
	validate, err := buildQueryValidator("limit", ParamSpec{Required: true, Schema: openapi3.NewIntegerSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	value, verr := validate("5", true)
	if verr != nil {
		t.Fatalf("expected valid, got %v", verr)
	}
	if value != int64(5) {
		t.Errorf("expected int64(5), got %v (%T)", value, value)
	}
}

func TestQueryValidator_OptionalAbsentPassesAsNil(t *testing.T) {
	validate, err := buildQueryValidator("q", ParamSpec{Required: false, Schema: openapi3.NewStringSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	value, verr := validate("", false)
	if verr != nil {
		t.Fatalf("expected valid, got %v", verr)
	}
	if value != nil {
		t.Errorf("expected nil for an absent optional, got %v", value)
	}
}

func TestQueryValidator_OptionalAbsentTakesDefault(t *testing.T) {
	validate, err := buildQueryValidator("limit", ParamSpec{
		Required: false,
		Schema:   openapi3.NewIntegerSchema().WithDefault(10),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	value, verr := validate("", false)
	if verr != nil {
		t.Fatalf("expected valid, got %v", verr)
	}
	if value != 10 {
		t.Errorf("expected declared default 10, got %v (%T)", value, value)
	}
}

func TestQueryValidator_NilSchemaPassesRawThrough(t *testing.T) {
	validate, err := buildQueryValidator("q", ParamSpec{Required: true})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	value, verr := validate("anything", true)
	if verr != nil {
		t.Fatalf("expected valid, got %v", verr)
	}
	if value != "anything" {
		t.Errorf("expected raw string, got %v", value)
	}
}

func TestPathValidator_AbsentIs404(t *testing.T) {
	validate, err := buildPathValidator("id", ParamSpec{Required: true, Schema: openapi3.NewStringSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	_, verr := validate("", false)
	if !errors.Is(verr, ErrNotFound) {
		t.Errorf("expected 404 classification, got %v", verr)
	}
}

func TestPathValidator_InvalidIs404WithoutDetail(t *testing.T) {
	validate, err := buildPathValidator("id", ParamSpec{Required: true, Schema: openapi3.NewIntegerSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	_, verr := validate("abc", true)
	if !errors.Is(verr, ErrNotFound) {
		t.Errorf("expected 404 classification, got %v", verr)
	}
	// A bad URL is a missing resource; no validation detail leaks.
	if verr.Error() != "not found" {
		t.Errorf("expected bare not-found message, got %q", verr.Error())
	}
}

func TestPathValidator_CoercesValue(t *testing.T) {
	validate, err := buildPathValidator("n", ParamSpec{Required: true, Schema: openapi3.NewIntegerSchema()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	value, verr := validate("42", true)
	if verr != nil {
		t.Fatalf("expected valid, got %v", verr)
	}
	if value != int64(42) {
		t.Errorf("expected int64(42), got %v (%T)", value, value)
	}
}

func TestCompileWrapped_RequiredMirrorsParameter(t *testing.T) {
	required, err := compileWrapped(openapi3.NewStringSchema(), true)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if issues := required.Validate(map[string]any{}); issues == nil {
		t.Error("expected the wrapper to require a value")
	}

	optional, err := compileWrapped(openapi3.NewStringSchema(), false)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if issues := optional.Validate(map[string]any{}); issues != nil {
		t.Errorf("expected the optional wrapper to accept absence, got %v", issues)
	}
}

func TestRouteParam(t *testing.T) {
	r := routedRequest("/widgets/w-1", map[string]string{"id": "w-1"})

	value, present := routeParam(r, "id")
	if !present || value != "w-1" {
		t.Errorf("expected (w-1, true), got (%q, %v)", value, present)
	}

	if _, present := routeParam(r, "missing"); present {
		t.Error("expected missing parameter to be absent")
	}

	// No chi route context at all.
	bare := httptest.NewRequest("GET", "/widgets/w-1", nil)
	if _, present := routeParam(bare, "id"); present {
		t.Error("expected absence without a route context")
	}
}

func TestQueryParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?limit=5&limit=9&empty=", nil)

	value, present := queryParam(r, "limit")
	if !present || value != "5" {
		t.Errorf("expected the first value (5, true), got (%q, %v)", value, present)
	}

	value, present = queryParam(r, "empty")
	if !present || value != "" {
		t.Errorf("expected present empty value, got (%q, %v)", value, present)
	}

	if _, present := queryParam(r, "missing"); present {
		t.Error("expected missing parameter to be absent")
	}
}

func TestQueryValidator_EnumSchema(t *testing.T) {
	schema := openapi3.NewStringSchema().WithEnum("asc", "desc")
	validate, err := buildQueryValidator("order", ParamSpec{Required: false, Schema: schema})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if _, verr := validate("asc", true); verr != nil {
		t.Errorf("expected asc to pass, got %v", verr)
	}
	if _, verr := validate("sideways", true); verr == nil {
		t.Error("expected out-of-enum value to fail")
	}
	if _, verr := validate("sideways", true); StatusOf(verr) != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", StatusOf(verr))
	}
}
