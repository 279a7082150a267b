package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
	"kisaanmitra/internal/usecase/advisory"
	"kisaanmitra/internal/usecase/lookup"
)

// LookupTool exposes one advisor's data lookup as a callable tool.
type LookupTool struct {
	advisor *advisory.Advisor
	schema  json.RawMessage
	logger  *slog.Logger
}

var _ domain.Tool = (*LookupTool)(nil)

// NewLookupTool builds the tool for a, deriving its parameter schema from the source config.
func NewLookupTool(a *advisory.Advisor, logger *slog.Logger) (*LookupTool, error) {
	schema, err := paramSchema(a.Looker.Config().Params)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", a.Tool, err)
	}
	return &LookupTool{advisor: a, schema: schema, logger: logger}, nil
}

// RegisterAdvisors adds a LookupTool for every advisor in reg.
func RegisterAdvisors(r *Registry, reg *advisory.Registry, logger *slog.Logger) error {
	for _, a := range reg.List() {
		t, err := NewLookupTool(a, logger)
		if err != nil {
			return err
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (t *LookupTool) Name() string        { return t.advisor.Tool }
func (t *LookupTool) Description() string { return t.advisor.ToolDescription }

func (t *LookupTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.advisor.Tool,
		Description: t.advisor.ToolDescription,
		Parameters:  t.schema,
	}
}

// lookupOutput is the JSON body handed back to the caller.
type lookupOutput struct {
	domain.ResultEnvelope
	Summary string `json:"summary,omitempty"`
}

func (t *LookupTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+t.advisor.Tool, t.logger, params,
		func(ctx context.Context, span trace.Span, args map[string]any) (any, error) {
			q := domain.NewQuery(args)
			env := t.advisor.Looker.Lookup(ctx, q)
			span.SetAttributes(
				tracer.StringAttr("lookup.id", env.LookupID),
				tracer.StringAttr("lookup.status", string(env.Status)),
			)

			out := lookupOutput{ResultEnvelope: env, Summary: Summarize(env, t.place(q))}
			if env.Error != nil {
				return out, env.Error
			}
			return out, nil
		},
	)
}

// place picks the caller-supplied location name used in summaries.
func (t *LookupTool) place(q domain.Query) string {
	cfg := t.advisor.Looker.Config()
	if cfg.Geocode != nil {
		return q.Get(cfg.Geocode.PlaceParam)
	}
	for _, p := range cfg.Params {
		if p.Required {
			return q.Get(p.Name)
		}
	}
	return ""
}

type propertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type objectSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]propertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// paramSchema renders params as a JSON Schema object.
func paramSchema(params []lookup.ParamSpec) (json.RawMessage, error) {
	s := objectSchema{Type: "object", Properties: make(map[string]propertySchema, len(params))}
	for _, p := range params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		s.Properties[p.Name] = propertySchema{Type: typ, Description: p.Description}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return json.Marshal(s)
}
