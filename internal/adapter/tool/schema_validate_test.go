package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"kisaanmitra/internal/domain"
)

// stubTool is a minimal tool for testing schema validation.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: s.name, Description: "stub", Parameters: s.schema}
}
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	s.calls++
	return s.result, nil
}

const marketSchema = `{
	"type": "object",
	"properties": {
		"commodity": {"type": "string"},
		"state": {"type": "string"},
		"lat": {"type": "number"}
	},
	"required": ["commodity", "state"]
}`

func TestSchemaValidation_ValidParams(t *testing.T) {
	inner := &stubTool{name: "market", schema: json.RawMessage(marketSchema), result: &domain.ToolResult{Content: "ok"}}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{"commodity":"Onion","state":"Maharashtra"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || result.Content != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestSchemaValidation_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
	}{
		{"wrong type", `{"commodity":"Onion","state":"MH","lat":"north"}`, "schema validation failed"},
		{"invalid json", `{"commodity":`, "invalid JSON"},
		{"not an object", `["Onion"]`, "schema validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &stubTool{name: "market", schema: json.RawMessage(marketSchema)}
			wrapped, err := WithSchemaValidation(inner)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			result, err := wrapped.Execute(context.Background(), json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
			if !strings.Contains(result.Content, tt.want) {
				t.Errorf("content = %q, want %q", result.Content, tt.want)
			}
			if inner.calls != 0 {
				t.Errorf("inner tool should not run, calls = %d", inner.calls)
			}
		})
	}
}

func TestSchemaValidation_MissingRequiredReachesTool(t *testing.T) {
	for _, params := range []string{`{"commodity":"Onion"}`, ``} {
		inner := &stubTool{name: "market", schema: json.RawMessage(marketSchema), result: &domain.ToolResult{Content: "ok"}}
		wrapped, err := WithSchemaValidation(inner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := wrapped.Execute(context.Background(), json.RawMessage(params))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError || inner.calls != 1 {
			t.Errorf("params %q: result %+v, calls %d", params, result, inner.calls)
		}
	}
}

func TestSchemaValidation_AdvertisedSchemaKeepsRequired(t *testing.T) {
	inner := &stubTool{name: "market", schema: json.RawMessage(marketSchema)}
	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(wrapped.Schema().Parameters), `"required"`) {
		t.Error("the advertised schema should still list required parameters")
	}
}

func TestSchemaValidation_NoSchemaPassthrough(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		inner := &stubTool{name: "plain", schema: raw}
		wrapped, err := WithSchemaValidation(inner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if wrapped != inner {
			t.Errorf("expected passthrough for schema %q", raw)
		}
	}
}

func TestSchemaValidation_CompilationError(t *testing.T) {
	inner := &stubTool{name: "broken", schema: json.RawMessage(`{"type":`)}
	if _, err := WithSchemaValidation(inner); err == nil {
		t.Fatal("expected error for malformed schema")
	}
}

func TestSchemaValidation_DelegatesMetadata(t *testing.T) {
	inner := &stubTool{name: "get_weather", schema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrapped.Name() != "get_weather" || wrapped.Description() != "stub" || wrapped.Schema().Name != "get_weather" {
		t.Errorf("metadata not delegated: %q %q %q", wrapped.Name(), wrapped.Description(), wrapped.Schema().Name)
	}
}
