package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

type sampleInput struct {
	Location string   `json:"location"`
	Days     *int     `json:"days,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type sampleOutput struct {
	sampleMeta
	Temperature float64           `json:"temperature"`
	Raw         json.RawMessage   `json:"raw"`
	Labels      map[string]string `json:"labels"`
	internal    string
	Skipped     string `json:"-"`
}

type sampleMeta struct {
	FetchedAt time.Time `json:"fetched_at"`
}

func sampleDefinition() tool.Definition {
	return tool.Definition{
		Name:    tool.Weather,
		Inputs:  []any{sampleInput{}},
		Outputs: []any{sampleOutput{}},
		Examples: []tool.Example{
			{Tool: tool.Weather, ToolInput: map[string]any{"location": "Paris"}},
			{Tool: tool.Weather, ToolInput: map[string]any{"location": "Oslo", "days": 3}},
		},
		Handler: func(ctx context.Context, input any) (any, error) { return nil, nil },
	}
}

func TestGenerate_Info(t *testing.T) {
	g := NewGenerator(WithTitle("Test API"), WithVersion("1.2.3"), WithServer("http://localhost:8008"))

	spec := g.Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Test API", spec.Info.Title)
	assert.Equal(t, "1.2.3", spec.Info.Version)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://localhost:8008", spec.Servers[0].URL)
	assert.Contains(t, spec.Components.SecuritySchemes, "bearerAuth")
	assert.Contains(t, spec.Components.Schemas, "Error")
}

func TestGenerate_DefaultTitle(t *testing.T) {
	spec := NewGenerator().Generate()
	assert.Equal(t, "Agent Resource API", spec.Info.Title)
}

func TestGenerate_ToolPath(t *testing.T) {
	g := NewGenerator()
	g.RegisterTools(sampleDefinition())

	spec := g.Generate()

	item := spec.Paths.Find("/tool")
	require.NotNil(t, item)
	require.NotNil(t, item.Post)
	assert.Equal(t, "runTool", item.Post.OperationID)
	require.NotNil(t, item.Post.Security)

	for _, code := range []int{http.StatusOK, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		assert.NotNil(t, item.Post.Responses.Status(code), "status %d", code)
	}

	media := item.Post.RequestBody.Value.Content.Get("application/json")
	require.NotNil(t, media)
	assert.Contains(t, media.Examples, "weather_tool_0")
	assert.Contains(t, media.Examples, "weather_tool_1")

	req := spec.Components.Schemas["ToolRequest"].Value
	assert.Equal(t, []string{"tool", "tool_input"}, req.Required)
	assert.Equal(t, []any{"weather_tool"}, req.Properties["tool"].Value.Enum)
	require.Len(t, req.Properties["tool_input"].Value.OneOf, 1)
	assert.Equal(t, "#/components/schemas/sampleInput", req.Properties["tool_input"].Value.OneOf[0].Ref)

	resp := spec.Components.Schemas["ToolResponse"].Value
	assert.True(t, resp.Properties["tool_output"].Value.Nullable)
	require.Len(t, resp.Properties["tool_output"].Value.OneOf, 1)
}

func TestExtractSchema_Fields(t *testing.T) {
	g := NewGenerator()
	g.RegisterTools(sampleDefinition())

	schemas := g.Generate().Components.Schemas

	in := schemas["sampleInput"].Value
	assert.Equal(t, []string{"location"}, in.Required)
	assert.True(t, in.Properties["days"].Value.Nullable)
	assert.True(t, in.Properties["tags"].Value.Type.Is("array"))

	out := schemas["sampleOutput"].Value
	assert.Contains(t, out.Properties, "fetched_at", "embedded fields are flattened")
	assert.Equal(t, "date-time", out.Properties["fetched_at"].Value.Format)
	assert.Equal(t, "double", out.Properties["temperature"].Value.Format)
	assert.Nil(t, out.Properties["raw"].Value.Type)
	assert.True(t, out.Properties["labels"].Value.Type.Is("object"))
	assert.NotContains(t, out.Properties, "internal")
	assert.NotContains(t, out.Properties, "Skipped")
	assert.ElementsMatch(t, []string{"fetched_at", "temperature", "raw", "labels"}, out.Required)
}

type podList struct {
	Pods []string `json:"pods"`
}

func TestRegisterRoute(t *testing.T) {
	g := NewGenerator()
	g.RegisterRoute(Route{Method: http.MethodGet, Path: "/v1/pods", Summary: "List pods", Tag: "LLM", Secured: true, Response: podList{}})
	g.RegisterRoute(Route{Method: http.MethodPost, Path: "/v1/completions", Summary: "Complete", Tag: "LLM"})

	spec := g.Generate()

	pods := spec.Paths.Find("/v1/pods")
	require.NotNil(t, pods)
	require.NotNil(t, pods.Get)
	assert.Equal(t, "getV1Pods", pods.Get.OperationID)
	assert.NotNil(t, pods.Get.Security)
	assert.Contains(t, spec.Components.Schemas, "podList")

	completions := spec.Paths.Find("/v1/completions")
	require.NotNil(t, completions)
	require.NotNil(t, completions.Post)
	assert.Nil(t, completions.Post.Security)
	assert.NotNil(t, completions.Post.Responses.Default())
}

func TestOperationID(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/health", "getHealth"},
		{"GET", "/tools/invocations", "getToolsInvocations"},
		{"GET", "/openapi.json", "getOpenapiJson"},
		{"POST", "/v1/completions", "postV1Completions"},
		{"GET", "/tool_list", "getToolList"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, operationID(tt.method, tt.path))
	}
}

func TestGenerate_Cached(t *testing.T) {
	g := NewGenerator()
	assert.Same(t, g.Generate(), g.Generate())
}

func TestHandler(t *testing.T) {
	g := NewGenerator(WithVersion("9"))
	g.RegisterTools(sampleDefinition())

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/tool")
}
