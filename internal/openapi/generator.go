package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/remote"
)

// TokenLocations lists where the server looks for access tokens. Each entry
// becomes a security scheme in the generated document.
type TokenLocations struct {
	Params  []string
	Headers []string
	Cookies []string
}

// standardRoutes maps standard method names to their REST route, relative to
// the model path.
var standardRoutes = []struct {
	method string
	verb   string
	suffix string
	status string
}{
	{"find", "GET", "", "200"},
	{"create", "POST", "", "201"},
	{"count", "GET", "/count", "200"},
	{"findById", "GET", "/{id}", "200"},
	{"exists", "GET", "/{id}/exists", "200"},
	{"updateById", "PATCH", "/{id}", "200"},
	{"deleteById", "DELETE", "/{id}", "200"},
}

// Generate builds an OpenAPI 3.1 document describing every model's REST
// routes and invoke endpoints.
func Generate(models []*remote.Model, baseURL string, locations TokenLocations) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "tokengate API",
			Description: "Remote methods exposed by tokengate. Calls are authorized by access token and per-model ACLs.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	addSecuritySchemes(doc, locations)
	doc.Paths = openapi3.NewPaths()

	// Add shared error response schema
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					},
				},
			},
		},
	}
	doc.Components.Schemas["Record"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	for _, m := range models {
		doc.Tags = append(doc.Tags, &openapi3.Tag{Name: m.Name})
		addModelPaths(doc, m)
	}

	return doc
}

// addSecuritySchemes registers one scheme per token location. Any one of
// them satisfies the requirement.
func addSecuritySchemes(doc *openapi3.T, loc TokenLocations) {
	add := func(name, in, key, desc string) {
		doc.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:        "apiKey",
				In:          in,
				Name:        key,
				Description: desc,
			},
		}
		doc.Security = append(doc.Security, openapi3.SecurityRequirement{name: {}})
	}

	for _, p := range loc.Params {
		add("query_"+sanitizeName(p), "query", p, "Access token id as a query parameter.")
	}
	for _, h := range loc.Headers {
		add("header_"+sanitizeName(h), "header", h, "Access token id, or Bearer followed by the base64-encoded id.")
	}
	for _, c := range loc.Cookies {
		add("cookie_"+sanitizeName(c), "cookie", c, "Signed cookie issued by POST /api/v1/system/session.")
	}
}

func addModelPaths(doc *openapi3.T, m *remote.Model) {
	base := "/api/v1/" + m.Name

	for _, route := range standardRoutes {
		meth, err := m.Method(route.method)
		if err != nil || meth.Name != route.method {
			continue
		}
		path := base + route.suffix
		op := methodOperation(m, meth, route.status)
		if strings.Contains(route.suffix, "{id}") {
			op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
				Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()),
			})
		}
		if route.verb == "POST" || route.verb == "PATCH" {
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().
					WithDescription(fmt.Sprintf("%s attributes", m.Name)).
					WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/Record", nil)),
			}
		}
		setOperation(doc, path, route.verb, op)
	}

	for _, meth := range m.Methods() {
		op := methodOperation(m, meth, "200")
		op.OperationID = fmt.Sprintf("invoke_%s_%s", sanitizeName(m.Name), meth.Name)
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Named arguments of the remote method").
				WithJSONSchema(openapi3.NewObjectSchema()),
		}
		setOperation(doc, fmt.Sprintf("%s/invoke/%s", base, meth.Name), "POST", op)
	}
}

func methodOperation(m *remote.Model, meth *remote.Method, status string) *openapi3.Operation {
	desc := meth.Description
	if desc == "" {
		desc = fmt.Sprintf("Invoke %s.%s", m.Name, meth.Name)
	}
	if len(meth.Aliases) > 0 {
		desc += fmt.Sprintf(" (aliases: %s)", strings.Join(meth.Aliases, ", "))
	}
	op := &openapi3.Operation{
		Tags:        []string{m.Name},
		Summary:     fmt.Sprintf("%s.%s", m.Name, meth.Name),
		Description: desc,
		OperationID: fmt.Sprintf("%s_%s", sanitizeName(m.Name), meth.Name),
		Responses: newResponses(
			status, fmt.Sprintf("%s access granted", meth.AccessType),
			&openapi3.SchemaRef{Value: &openapi3.Schema{}},
		),
		Extensions: map[string]interface{}{
			"x-access-type": string(meth.AccessType),
		},
	}
	if m.Settings.RequiresAuth(meth.AccessType) {
		op.Extensions["x-auth-required"] = true
	}
	deniedStatus := fmt.Sprint(model.ACLErrorStatus(m.Settings, model.AppSettings{}))
	if m.Settings.ACLErrorStatus != nil && op.Responses.Value(deniedStatus) == nil {
		op.Responses.Set(deniedStatus, errorResponse("Denied by ACL"))
	}
	return op
}

func setOperation(doc *openapi3.T, path, verb string, op *openapi3.Operation) {
	item := doc.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(path, item)
	}
	item.SetOperation(verb, op)
}

// ─── Response Helpers ───────────────────────────────────────────────────────

func errorResponse(description string) *openapi3.ResponseRef {
	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	}
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	// Success response
	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	// Standard error responses
	responses.Set("400", errorResponse("Bad request"))
	responses.Set("401", errorResponse("Authorization required"))
	responses.Set("404", errorResponse("Not found"))
	responses.Set("500", errorResponse("Internal server error"))

	return responses
}

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// sanitizeName replaces anything but letters, digits and underscores so the
// result can be used in component and operation names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
