package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kisaanmitra/internal/domain"
)

type fakeCatalog struct {
	results map[string]*domain.ToolResult
	params  []json.RawMessage
}

func (f *fakeCatalog) Call(_ context.Context, name string, params json.RawMessage) (*domain.ToolResult, error) {
	f.params = append(f.params, params)
	res, ok := f.results[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return res, nil
}

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var soilSchema = domain.ToolSchema{
	Name:        "get_soil_properties",
	Description: "Look up soil properties.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "Village or district"},
			"lat": {"type": "number"},
			"depth": {"type": "string", "enum": ["0-5cm", "5-15cm"]},
			"properties": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["location"]
	}`),
}

func TestDeclarations(t *testing.T) {
	tool, err := Declarations([]domain.ToolSchema{soilSchema, {Name: "ping", Description: "no params"}})
	require.NoError(t, err)
	require.Len(t, tool.FunctionDeclarations, 2)

	decl := tool.FunctionDeclarations[0]
	assert.Equal(t, "get_soil_properties", decl.Name)
	assert.Equal(t, "Look up soil properties.", decl.Description)
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"location"}, decl.Parameters.Required)

	props := decl.Parameters.Properties
	assert.Equal(t, genai.TypeString, props["location"].Type)
	assert.Equal(t, "Village or district", props["location"].Description)
	assert.Equal(t, genai.TypeNumber, props["lat"].Type)
	assert.Equal(t, []string{"0-5cm", "5-15cm"}, props["depth"].Enum)
	assert.Equal(t, genai.TypeArray, props["properties"].Type)
	require.NotNil(t, props["properties"].Items)
	assert.Equal(t, genai.TypeString, props["properties"].Items.Type)

	assert.Nil(t, tool.FunctionDeclarations[1].Parameters)
}

func TestDeclarations_Errors(t *testing.T) {
	_, err := Declarations([]domain.ToolSchema{{Name: "bad", Parameters: json.RawMessage(`{"type":`)}})
	assert.Error(t, err)

	_, err = Declarations([]domain.ToolSchema{{
		Name:       "odd",
		Parameters: json.RawMessage(`{"type":"object","properties":{"x":{"type":"tuple"}}}`),
	}})
	assert.ErrorContains(t, err, "property x")
}

func TestDispatch_JSONResult(t *testing.T) {
	catalog := &fakeCatalog{results: map[string]*domain.ToolResult{
		"get_weather": {Content: `{"status":"ok","summary":"Weather in Pune"}`},
	}}
	d := NewDispatcher(catalog, newTestLogger())

	resp := d.Dispatch(context.Background(), genai.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Pune"}})

	assert.Equal(t, "get_weather", resp.Name)
	assert.Equal(t, "ok", resp.Response["status"])
	assert.Equal(t, "Weather in Pune", resp.Response["summary"])
	assert.NotContains(t, resp.Response, "is_error")
	require.Len(t, catalog.params, 1)
	assert.JSONEq(t, `{"city":"Pune"}`, string(catalog.params[0]))
}

func TestDispatch_ErrorResult(t *testing.T) {
	catalog := &fakeCatalog{results: map[string]*domain.ToolResult{
		"get_weather": {Content: `{"status":"error"}`, IsError: true, IsRetryable: true},
		"plain":       {Content: "invalid params: unexpected end of JSON input", IsError: true},
	}}
	d := NewDispatcher(catalog, newTestLogger())

	resp := d.Dispatch(context.Background(), genai.FunctionCall{Name: "get_weather"})
	assert.Equal(t, true, resp.Response["is_error"])
	assert.Equal(t, true, resp.Response["retryable"])
	assert.JSONEq(t, `{}`, string(catalog.params[0]))

	resp = d.Dispatch(context.Background(), genai.FunctionCall{Name: "plain"})
	assert.Equal(t, "invalid params: unexpected end of JSON input", resp.Response["content"])
	assert.Equal(t, false, resp.Response["retryable"])
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := NewDispatcher(&fakeCatalog{}, newTestLogger())
	resp := d.Dispatch(context.Background(), genai.FunctionCall{Name: "get_rainfall"})
	assert.Equal(t, true, resp.Response["is_error"])
	assert.Contains(t, resp.Response["error"], "tool not found")
}

func TestDispatchAll(t *testing.T) {
	catalog := &fakeCatalog{results: map[string]*domain.ToolResult{
		"a": {Content: "first"},
		"b": {Content: "second"},
	}}
	parts := NewDispatcher(catalog, newTestLogger()).DispatchAll(context.Background(), []genai.FunctionCall{{Name: "a"}, {Name: "b"}})

	require.Len(t, parts, 2)
	first, ok := parts[0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "first", first.Response["content"])
	second := parts[1].(genai.FunctionResponse)
	assert.Equal(t, "b", second.Name)
}
