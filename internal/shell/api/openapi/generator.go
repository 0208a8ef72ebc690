// Package openapi generates the OpenAPI 3 document for the service by
// reflecting on the registered tool input and output models.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications from registered tools and routes.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	tools       []tool.Definition
	routes      []Route
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Route describes a non-tool endpoint.
type Route struct {
	Method   string
	Path     string
	Summary  string
	Tag      string
	Secured  bool
	Request  any // nil when the route takes no body
	Response any // nil for an untyped JSON object
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Agent Resource API",
		version:     "1.0.0",
		description: "Tool execution and LLM completion proxy for agents",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterTools adds tool definitions to the document.
func (g *Generator) RegisterTools(defs ...tool.Definition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tools = append(g.tools, defs...)
	g.cachedSpec = nil
}

// RegisterRoute adds a plain endpoint to the document.
func (g *Generator) RegisterRoute(route Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, route)
	g.cachedSpec = nil
}

// Generate produces the complete OpenAPI 3.0 specification.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearerAuth": &openapi3.SecuritySchemeRef{
					Value: openapi3.NewJWTSecurityScheme(),
				},
			},
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	g.addCommonSchemas(spec)
	g.addToolPath(spec)
	for _, route := range g.routes {
		g.addRoute(spec, route)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Schema Generation
// =============================================================================

func (g *Generator) addCommonSchemas(spec *openapi3.T) {
	spec.Components.Schemas["Error"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
				"message": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
				"details": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
				},
			},
			Required: []string{"error"},
		},
	}
}

// addToolPath adds POST /tool with a oneOf over every registered input and output.
func (g *Generator) addToolPath(spec *openapi3.T) {
	inputs := openapi3.SchemaRefs{}
	outputs := openapi3.SchemaRefs{}
	names := make([]any, 0, len(g.tools))
	var examples []tool.Example

	for _, def := range g.tools {
		names = append(names, string(def.Name))
		examples = append(examples, def.Examples...)
		for _, in := range def.Inputs {
			inputs = append(inputs, g.componentRef(spec, in))
		}
		for _, out := range def.Outputs {
			outputs = append(outputs, g.componentRef(spec, out))
		}
	}

	spec.Components.Schemas["ToolRequest"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"tool": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: names},
				},
				"request_id": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
				"timeout": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Min: openapi3.Float64Ptr(1)},
				},
				"tool_input": &openapi3.SchemaRef{
					Value: &openapi3.Schema{OneOf: inputs},
				},
			},
			Required: []string{"tool", "tool_input"},
		},
	}

	spec.Components.Schemas["ToolResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"duration_ms": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"},
				},
				"success": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}},
				},
				"error_message": &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
				"tool_output": &openapi3.SchemaRef{
					Value: &openapi3.Schema{OneOf: outputs, Nullable: true},
				},
			},
			Required: []string{"duration_ms", "success", "tool_output"},
		},
	}

	requestContent := openapi3.NewContentWithJSONSchemaRef(schemaRef("ToolRequest"))
	mediaExamples := openapi3.Examples{}
	for i, ex := range examples {
		mediaExamples[exampleKey(ex, i)] = &openapi3.ExampleRef{Value: openapi3.NewExample(ex)}
	}
	if len(mediaExamples) > 0 {
		requestContent.Get("application/json").Examples = mediaExamples
	}

	responses := openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse("Tool executed; success may be false", schemaRef("ToolResponse"))),
		openapi3.WithStatus(http.StatusNotFound, jsonResponse("Tool not registered", schemaRef("Error"))),
		openapi3.WithStatus(http.StatusUnprocessableEntity, jsonResponse("Invalid tool input", schemaRef("Error"))),
		openapi3.WithStatus(http.StatusInternalServerError, jsonResponse("Tool crashed", schemaRef("ToolResponse"))),
	)

	spec.Paths.Set("/tool", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "runTool",
			Summary:     "Run a tool",
			Tags:        []string{"Tools"},
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{Required: true, Content: requestContent},
			},
			Security:  bearer(),
			Responses: responses,
		},
	})
}

func (g *Generator) addRoute(spec *openapi3.T, route Route) {
	op := &openapi3.Operation{
		OperationID: operationID(route.Method, route.Path),
		Summary:     route.Summary,
		Tags:        []string{route.Tag},
	}
	if route.Secured {
		op.Security = bearer()
	}
	if route.Request != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(g.componentRef(spec, route.Request)),
			},
		}
	}

	var body *openapi3.SchemaRef
	if route.Response != nil {
		body = g.componentRef(spec, route.Response)
	} else {
		body = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse(route.Summary, body)),
		openapi3.WithName("default", jsonResponse("Error", schemaRef("Error")).Value),
	)

	item := spec.Paths.Find(route.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(route.Path, item)
	}
	item.SetOperation(route.Method, op)
}

// componentRef registers model's type under components/schemas and returns a
// reference to it.
func (g *Generator) componentRef(spec *openapi3.T, model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if _, ok := spec.Components.Schemas[name]; !ok {
		spec.Components.Schemas[name] = g.extractSchema(t)
	}
	return schemaRef(name)
}

// extractSchema extracts an OpenAPI schema from a Go struct. Fields without
// omitempty that are not pointers are required.
func (g *Generator) extractSchema(t reflect.Type) *openapi3.SchemaRef {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}
	g.addFields(schema, t)
	return &openapi3.SchemaRef{Value: schema}
}

func (g *Generator) addFields(schema *openapi3.Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			g.addFields(schema, field.Type)
			continue
		}
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		parts := strings.Split(jsonTag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		omitempty := len(parts) > 1 && strings.Contains(jsonTag, "omitempty")

		propSchema := g.goTypeToSchema(field.Type)
		if propSchema == nil {
			continue
		}
		schema.Properties[name] = propSchema
		if !omitempty && field.Type.Kind() != reflect.Ptr {
			schema.Required = append(schema.Required, name)
		}
	}
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	rawMessageType = reflect.TypeOf(json.RawMessage{})
)

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	if t == rawMessageType {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == timeType {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(t)

	case reflect.Interface:
		// Any JSON value.
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}

	default:
		return nil
	}
}

// =============================================================================
// Helpers
// =============================================================================

func schemaRef(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	}
}

func bearer() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate("bearerAuth")}
}

// operationID derives an id like "getV1Pods" from a method and path.
func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' || r == '_' }) {
		b.WriteString(capitalize(seg))
	}
	return b.String()
}

func exampleKey(ex tool.Example, i int) string {
	return string(ex.Tool) + "_" + strconv.Itoa(i)
}

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
