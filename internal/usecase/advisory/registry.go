package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/usecase/lookup"
)

// Looker runs lookups against one configured source. *lookup.Adapter implements it.
type Looker interface {
	Lookup(ctx context.Context, q domain.Query) domain.ResultEnvelope
	Config() lookup.SourceConfig
}

var _ Looker = (*lookup.Adapter)(nil)

// Advisor binds a domain, its lookup and its guidance text into one addressable unit.
type Advisor struct {
	Identity domain.AdvisorIdentity
	// Tool is the callable name exposed to the reasoning engine.
	Tool            string
	ToolDescription string
	Looker          Looker
}

// Domain returns the advisor's data domain.
func (a *Advisor) Domain() string { return a.Identity.Domain }

// Guidance returns the natural-language policy for the advisor.
func (a *Advisor) Guidance() string { return a.Identity.Instruction }

// Registry is the static table {domain -> advisor}. It performs no routing.
type Registry struct {
	mu       sync.RWMutex
	advisors map[string]*Advisor
	tools    map[string]string // tool name -> domain
	root     domain.AdvisorIdentity
	logger   *slog.Logger
}

// NewRegistry creates an empty registry under root.
func NewRegistry(root domain.AdvisorIdentity, logger *slog.Logger) *Registry {
	return &Registry{
		advisors: make(map[string]*Advisor),
		tools:    make(map[string]string),
		root:     root,
		logger:   logger,
	}
}

// NewStandardRegistry registers the soil, weather and market advisors.
func NewStandardRegistry(model string, soil, weather, market Looker, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(RootIdentity(model), logger)
	for _, a := range []*Advisor{
		{
			Identity:        SoilIdentity(model),
			Tool:            SoilTool,
			ToolDescription: "Look up soil properties (pH, organic carbon, N, P, K) for a place in India, by name or by lat/lon.",
			Looker:          soil,
		},
		{
			Identity:        WeatherIdentity(model),
			Tool:            WeatherTool,
			ToolDescription: "Fetch live weather (condition, temperature, humidity, wind) for a city.",
			Looker:          weather,
		},
		{
			Identity:        MarketIdentity(model),
			Tool:            MarketTool,
			ToolDescription: "Fetch the latest mandi prices (min, max, modal in Rs/quintal) for a commodity in a state, optionally narrowed to a district or market.",
			Looker:          market,
		},
	} {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an advisor. Domains and tool names must be unique.
func (r *Registry) Register(a *Advisor) error {
	if a == nil || a.Looker == nil || a.Identity.Domain == "" || a.Tool == "" {
		return domain.NewSubSystemError("advisor", "Registry.Register", domain.ErrInvalidInput, "advisor needs a domain, tool name and lookup")
	}
	if got := a.Looker.Config().Domain; got != a.Identity.Domain {
		return domain.NewSubSystemError("advisor", "Registry.Register", domain.ErrInvalidInput,
			fmt.Sprintf("advisor %s is for %q but its source serves %q", a.Identity.Name, a.Identity.Domain, got))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.advisors[a.Identity.Domain]; exists {
		return domain.NewSubSystemError("advisor", "Registry.Register", domain.ErrDuplicate, a.Identity.Domain)
	}
	if _, exists := r.tools[a.Tool]; exists {
		return domain.NewSubSystemError("advisor", "Registry.Register", domain.ErrDuplicate, a.Tool)
	}
	r.advisors[a.Identity.Domain] = a
	r.tools[a.Tool] = a.Identity.Domain
	r.logger.Info("advisor registered",
		"advisor", a.Identity.Name,
		"domain", a.Identity.Domain,
		"tool", a.Tool,
		"source", a.Looker.Config().Source,
	)
	return nil
}

// Get returns the advisor for a domain.
func (r *Registry) Get(domainName string) (*Advisor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.advisors[domainName]
	if !ok {
		return nil, domain.NewSubSystemError("advisor", "Registry.Get", domain.ErrAdvisorNotFound, domainName)
	}
	return a, nil
}

// ByTool returns the advisor exposing the named tool.
func (r *Registry) ByTool(name string) (*Advisor, error) {
	r.mu.RLock()
	d, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewSubSystemError("advisor", "Registry.ByTool", domain.ErrAdvisorNotFound, name)
	}
	return r.Get(d)
}

// List returns the advisors sorted by domain.
func (r *Registry) List() []*Advisor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Advisor, 0, len(r.advisors))
	for _, a := range r.advisors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain() < out[j].Domain() })
	return out
}

// Root returns the coordinator identity.
func (r *Registry) Root() domain.AdvisorIdentity { return r.root }

// Identities returns the root followed by every advisor, for handing to the reasoning engine.
func (r *Registry) Identities() []domain.AdvisorIdentity {
	list := r.List()
	out := make([]domain.AdvisorIdentity, 0, len(list)+1)
	out = append(out, r.root)
	for _, a := range list {
		out = append(out, a.Identity)
	}
	return out
}

// Lookup runs a query against the advisor for domainName.
func (r *Registry) Lookup(ctx context.Context, domainName string, q domain.Query) (domain.ResultEnvelope, error) {
	a, err := r.Get(domainName)
	if err != nil {
		return domain.ResultEnvelope{}, err
	}
	return a.Looker.Lookup(ctx, q), nil
}
