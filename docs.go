package trellis

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// GenerateDocs builds an OpenAPI 3.0.3 document covering every registered
// endpoint. Paths are keyed by "{name}" templates and each path item
// carries one operation per registered method. The document reflects the
// same definitions the dispatch pipelines were compiled from, so routes,
// validation, and documentation cannot drift apart.
func (e *Engine) GenerateDocs(info *openapi3.Info) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    info,
		Paths:   openapi3.NewPaths(),
	}

	for _, reg := range e.registrations {
		path := bracedPath(reg.pipeline.path)

		item := doc.Paths.Value(path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(path, item)
		}

		item.SetOperation(reg.pipeline.method, reg.endpoint.operation())
	}

	return doc
}

// operation renders one endpoint as an OpenAPI operation. A doc override
// replaces the generated operation wholesale.
func (e *Endpoint) operation() *openapi3.Operation {
	if e.docOverride != nil {
		return e.docOverride
	}

	op := openapi3.NewOperation()
	op.OperationID = e.name
	op.Summary = e.summary
	op.Description = e.description
	op.Tags = e.tags

	for _, name := range sortedParamNames(e.pathParams) {
		param := openapi3.NewPathParameter(name).
			WithSchema(paramSchema(e.pathParams[name]))
		op.AddParameter(param)
	}

	for _, name := range sortedParamNames(e.queryParams) {
		spec := e.queryParams[name]
		param := openapi3.NewQueryParameter(name).
			WithRequired(spec.Required).
			WithSchema(paramSchema(spec))
		op.AddParameter(param)
	}

	if e.body != nil {
		body := openapi3.NewRequestBody().WithRequired(e.body.Required)
		if e.body.Schema != nil {
			body = body.WithJSONSchema(e.body.Schema)
		}
		op.RequestBody = &openapi3.RequestBodyRef{Value: body}
	}

	statuses := sortedStatuses(e.responses)
	op.Responses = openapi3.NewResponsesWithCapacity(len(statuses))
	for _, status := range statuses {
		decl := e.responses[status]
		response := openapi3.NewResponse().WithDescription(decl.Description)
		if decl.Schema != nil {
			response = response.WithJSONSchema(decl.Schema)
		}
		op.AddResponse(status, response)
	}
	if len(statuses) == 0 {
		op.AddResponse(200, openapi3.NewResponse().WithDescription("Success"))
	}

	return op
}

// paramSchema picks the documented schema for a parameter; undeclared
// schemas document as plain strings, which is what the wire carries.
func paramSchema(spec ParamSpec) *openapi3.Schema {
	if spec.Schema != nil {
		return spec.Schema
	}
	return openapi3.NewStringSchema()
}

func sortedParamNames(params map[string]ParamSpec) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedStatuses(responses map[int]ResponseSpec) []int {
	statuses := make([]int, 0, len(responses))
	for status := range responses {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	return statuses
}
