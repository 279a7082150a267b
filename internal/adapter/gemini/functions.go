// Package gemini hands the advisory tools to a Gemini model as function
// declarations and answers the function calls it makes.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
)

// Catalog runs tools by name. *tool.Registry implements it.
type Catalog interface {
	Call(ctx context.Context, name string, params json.RawMessage) (*domain.ToolResult, error)
}

// jsonSchema is the subset of JSON Schema the tool schemas use.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Enum        []string               `json:"enum"`
	Items       *jsonSchema            `json:"items"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
}

var schemaTypes = map[string]genai.Type{
	"":        genai.TypeString,
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// Declarations converts tool schemas into a single genai.Tool.
func Declarations(schemas []domain.ToolSchema) (*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		decl := &genai.FunctionDeclaration{Name: s.Name, Description: s.Description}
		if len(s.Parameters) > 0 {
			var js jsonSchema
			if err := json.Unmarshal(s.Parameters, &js); err != nil {
				return nil, fmt.Errorf("tool %s: parse schema: %w", s.Name, err)
			}
			params, err := convert(&js)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", s.Name, err)
			}
			decl.Parameters = params
		}
		decls = append(decls, decl)
	}
	return &genai.Tool{FunctionDeclarations: decls}, nil
}

func convert(js *jsonSchema) (*genai.Schema, error) {
	typ, ok := schemaTypes[js.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported schema type %q", js.Type)
	}
	out := &genai.Schema{
		Type:        typ,
		Description: js.Description,
		Enum:        js.Enum,
		Required:    js.Required,
	}
	if js.Items != nil {
		items, err := convert(js.Items)
		if err != nil {
			return nil, err
		}
		out.Items = items
	}
	if len(js.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, p := range js.Properties {
			ps, err := convert(p)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = ps
		}
	}
	return out, nil
}

// Dispatcher answers model function calls from a catalog.
type Dispatcher struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(catalog Catalog, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{catalog: catalog, logger: logger}
}

// Dispatch runs the tool named by fc. Failures are reported inside the
// response so the model can react to them; Dispatch never fails the turn.
func (d *Dispatcher) Dispatch(ctx context.Context, fc genai.FunctionCall) genai.FunctionResponse {
	ctx, span := tracer.StartSpan(ctx, "gemini.dispatch")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("tool.name", fc.Name))

	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	resp := genai.FunctionResponse{Name: fc.Name}

	params, err := json.Marshal(args)
	if err != nil {
		tracer.RecordError(span, err)
		resp.Response = map[string]any{"is_error": true, "error": fmt.Sprintf("invalid arguments: %v", err)}
		return resp
	}

	res, err := d.catalog.Call(ctx, fc.Name, params)
	if err != nil {
		tracer.RecordError(span, err)
		d.logger.Warn("gemini function call failed", "tool", fc.Name, "error", err)
		resp.Response = map[string]any{"is_error": true, "error": err.Error()}
		return resp
	}

	resp.Response = responseBody(res)
	tracer.SetOK(span)
	return resp
}

// DispatchAll answers every call in order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []genai.FunctionCall) []genai.Part {
	parts := make([]genai.Part, 0, len(calls))
	for _, fc := range calls {
		parts = append(parts, d.Dispatch(ctx, fc))
	}
	return parts
}

// responseBody embeds JSON tool output as an object, falling back to text.
func responseBody(res *domain.ToolResult) map[string]any {
	body := map[string]any{}
	if err := json.Unmarshal([]byte(res.Content), &body); err != nil || body == nil {
		body = map[string]any{"content": res.Content}
	}
	if res.IsError {
		body["is_error"] = true
		body["retryable"] = res.IsRetryable
	}
	return body
}
