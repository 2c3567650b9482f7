package trellis

import (
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/zoobzio/sentinel"
)

// SchemaOf derives an OpenAPI schema for T from its struct tags. Property
// names follow json tags and omitempty marks a property optional; validate
// tags contribute constraints and formats. Use it to declare body and
// response schemas from the Go types the handlers already work with.
func SchemaOf[T any]() *openapi3.Schema {
	meta := sentinel.Scan[T]()
	return structSchema(meta, map[string]bool{})
}

// structSchema converts sentinel metadata to an object schema. Types seen
// before in this derivation flatten to a bare object to stop recursion.
func structSchema(meta sentinel.ModelMetadata, seen map[string]bool) *openapi3.Schema {
	if seen[meta.TypeName] {
		return openapi3.NewObjectSchema()
	}
	seen[meta.TypeName] = true

	schema := openapi3.NewObjectSchema()
	var required []string

	for _, field := range meta.Fields {
		name, isRequired := jsonProperty(field)
		if name == "-" {
			// Skip fields with json:"-"
			continue
		}

		prop := typeSchema(field.Type, seen)
		if tag, exists := field.Tags["validate"]; exists {
			if hasValidateRule(tag, "required") {
				isRequired = true
			}
			applyValidateTag(prop, tag)
		}
		schema.WithProperty(name, prop)

		if isRequired {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema.Required = required
	}
	return schema
}

// jsonProperty extracts the JSON property name and determines if the field
// is required.
func jsonProperty(field sentinel.FieldMetadata) (name string, required bool) {
	jsonTag, exists := field.Tags["json"]
	if !exists {
		// No json tag - use field name lowercased
		return strings.ToLower(field.Name), true
	}

	parts := strings.Split(jsonTag, ",")
	name = parts[0]

	if name == "" {
		// Empty name means use field name
		name = strings.ToLower(field.Name)
	}

	// Check for omitempty
	required = true
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			required = false
			break
		}
	}

	return name, required
}

// typeSchema maps a Go type string to a base schema.
func typeSchema(goType string, seen map[string]bool) *openapi3.Schema {
	// Handle pointers
	goType = strings.TrimPrefix(goType, "*")

	// Handle arrays/slices
	if strings.HasPrefix(goType, "[]") {
		return openapi3.NewArraySchema().WithItems(typeSchema(strings.TrimPrefix(goType, "[]"), seen))
	}

	// Handle maps
	if strings.HasPrefix(goType, "map[") {
		return openapi3.NewObjectSchema().WithAnyAdditionalProperties()
	}

	switch goType {
	case "string":
		return openapi3.NewStringSchema()
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64":
		return openapi3.NewIntegerSchema()
	case "float32", "float64":
		return openapi3.NewFloat64Schema()
	case "bool":
		return openapi3.NewBoolSchema()
	case "time.Time":
		return openapi3.NewStringSchema().WithFormat("date-time")
	default:
		// Named type - inline its scanned metadata when sentinel knows it.
		typeName := goType
		if idx := strings.LastIndex(goType, "."); idx != -1 {
			typeName = goType[idx+1:]
		}
		if meta, found := sentinel.Lookup(typeName); found {
			return structSchema(meta, seen)
		}
		return openapi3.NewObjectSchema()
	}
}

func hasValidateRule(tag, rule string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == rule {
			return true
		}
	}
	return false
}

// applyValidateTag folds go-playground validate rules into the schema.
// Rules that do not translate to OpenAPI are ignored.
func applyValidateTag(schema *openapi3.Schema, tag string) {
	for _, rule := range strings.Split(tag, ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" || rule == "required" || rule == "omitempty" {
			continue
		}

		name := rule
		param := ""
		if idx := strings.Index(rule, "="); idx != -1 {
			name = rule[:idx]
			param = rule[idx+1:]
		}

		switch name {
		case "min", "gte":
			applyMinRule(schema, param)
		case "max", "lte":
			applyMaxRule(schema, param)
		case "gt":
			if f, err := strconv.ParseFloat(param, 64); err == nil {
				schema.Min = &f
				schema.ExclusiveMin = true
			}
		case "lt":
			if f, err := strconv.ParseFloat(param, 64); err == nil {
				schema.Max = &f
				schema.ExclusiveMax = true
			}
		case "len":
			if n, err := strconv.ParseUint(param, 10, 64); err == nil {
				if schema.Type.Is(openapi3.TypeArray) {
					schema.MinItems = n
					schema.MaxItems = &n
				} else {
					schema.MinLength = n
					schema.MaxLength = &n
				}
			}
		case "email":
			schema.Format = "email"
		case "url":
			schema.Format = "uri"
		case "uuid":
			schema.Format = "uuid"
		case "datetime":
			schema.Format = "date-time"
		case "ipv4":
			schema.Format = "ipv4"
		case "ipv6":
			schema.Format = "ipv6"
		case "oneof":
			values := strings.Fields(param)
			enum := make([]any, 0, len(values))
			for _, value := range values {
				enum = append(enum, enumValue(schema, value))
			}
			schema.Enum = enum
		case "unique":
			if schema.Type.Is(openapi3.TypeArray) {
				schema.UniqueItems = true
			}
		}
	}
}

// applyMinRule maps a lower bound onto the right constraint for the type.
func applyMinRule(schema *openapi3.Schema, param string) {
	switch {
	case schema.Type.Is(openapi3.TypeString):
		if n, err := strconv.ParseUint(param, 10, 64); err == nil {
			schema.MinLength = n
		}
	case schema.Type.Is(openapi3.TypeArray):
		if n, err := strconv.ParseUint(param, 10, 64); err == nil {
			schema.MinItems = n
		}
	default:
		if f, err := strconv.ParseFloat(param, 64); err == nil {
			schema.Min = &f
		}
	}
}

// applyMaxRule maps an upper bound onto the right constraint for the type.
func applyMaxRule(schema *openapi3.Schema, param string) {
	switch {
	case schema.Type.Is(openapi3.TypeString):
		if n, err := strconv.ParseUint(param, 10, 64); err == nil {
			schema.MaxLength = &n
		}
	case schema.Type.Is(openapi3.TypeArray):
		if n, err := strconv.ParseUint(param, 10, 64); err == nil {
			schema.MaxItems = &n
		}
	default:
		if f, err := strconv.ParseFloat(param, 64); err == nil {
			schema.Max = &f
		}
	}
}

// enumValue parses an enum literal per the schema's type.
func enumValue(schema *openapi3.Schema, raw string) any {
	switch {
	case schema.Type.Is(openapi3.TypeInteger):
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case schema.Type.Is(openapi3.TypeNumber):
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}
