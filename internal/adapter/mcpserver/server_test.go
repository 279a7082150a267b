package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kisaanmitra/internal/domain"
)

type fakeCatalog struct {
	schemas []domain.ToolSchema
	results map[string]*domain.ToolResult
	calls   []string
	params  []json.RawMessage
}

func (f *fakeCatalog) Schemas() []domain.ToolSchema { return f.schemas }

func (f *fakeCatalog) Call(_ context.Context, name string, params json.RawMessage) (*domain.ToolResult, error) {
	f.calls = append(f.calls, name)
	f.params = append(f.params, params)
	res, ok := f.results[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return res, nil
}

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func weatherCatalog() *fakeCatalog {
	return &fakeCatalog{
		schemas: []domain.ToolSchema{{
			Name:        "get_weather",
			Description: "Fetch live weather for a city.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		}},
		results: map[string]*domain.ToolResult{
			"get_weather": {Content: `{"status":"ok","summary":"Weather in Pune"}`},
		},
	}
}

func testOptions() Options {
	return Options{
		Name:    "kisaanmitra",
		Version: "test",
		Root:    domain.AdvisorIdentity{Name: "agents", Instruction: "Delegate to the right advisor."},
		Advisors: []domain.AdvisorIdentity{
			{Name: "weather_agent", Description: "Weather advice", Instruction: "Always call get_weather first."},
		},
	}
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, s *Server, msg string) rpcResponse {
	t.Helper()
	reply := s.MCP().HandleMessage(context.Background(), json.RawMessage(msg))
	data, err := json.Marshal(reply)
	require.NoError(t, err)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	return resp
}

const initialize = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`

func TestServer_ListTools(t *testing.T) {
	s, err := New(testOptions(), weatherCatalog(), newTestLogger())
	require.NoError(t, err)
	call(t, s, initialize)

	resp := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "get_weather", result.Tools[0].Name)
	assert.Equal(t, "Fetch live weather for a city.", result.Tools[0].Description)
	assert.Contains(t, string(result.Tools[0].InputSchema), `"city"`)
}

func TestServer_CallTool(t *testing.T) {
	catalog := weatherCatalog()
	s, err := New(testOptions(), catalog, newTestLogger())
	require.NoError(t, err)
	call(t, s, initialize)

	resp := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_weather","arguments":{"city":"Pune"}}}`)
	require.Nil(t, resp.Error)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "Weather in Pune")

	require.Equal(t, []string{"get_weather"}, catalog.calls)
	assert.JSONEq(t, `{"city":"Pune"}`, string(catalog.params[0]))
}

func TestServer_CallToolErrorResult(t *testing.T) {
	catalog := weatherCatalog()
	catalog.results["get_weather"] = &domain.ToolResult{
		Content:     `{"status":"error","error":{"kind":"TIMEOUT"}}`,
		IsError:     true,
		IsRetryable: true,
	}
	s, err := New(testOptions(), catalog, newTestLogger())
	require.NoError(t, err)
	call(t, s, initialize)

	resp := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"get_weather","arguments":{"city":"Pune"}}}`)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"isError":true`)
	assert.Contains(t, string(resp.Result), "TIMEOUT")
}

func TestServer_HandleToolUnknown(t *testing.T) {
	s, err := New(testOptions(), weatherCatalog(), newTestLogger())
	require.NoError(t, err)

	res, err := s.handleTool(context.Background(), toolRequest("get_rainfall", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_GetPrompt(t *testing.T) {
	s, err := New(testOptions(), weatherCatalog(), newTestLogger())
	require.NoError(t, err)
	call(t, s, initialize)

	resp := call(t, s, `{"jsonrpc":"2.0","id":5,"method":"prompts/get","params":{"name":"weather_agent"}}`)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), "Always call get_weather first.")
	assert.Contains(t, string(resp.Result), "Weather advice")
}

func TestServer_InitializeCarriesInstructions(t *testing.T) {
	s, err := New(testOptions(), weatherCatalog(), newTestLogger())
	require.NoError(t, err)

	resp := call(t, s, initialize)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), "Delegate to the right advisor.")
	assert.Contains(t, string(resp.Result), `"kisaanmitra"`)
}

func TestNew_RejectsToolWithoutSchema(t *testing.T) {
	catalog := &fakeCatalog{schemas: []domain.ToolSchema{{Name: "bare"}}}
	_, err := New(testOptions(), catalog, newTestLogger())
	assert.Error(t, err)
}
