package lookup

import (
	"context"
	"net/url"
	"time"

	"kisaanmitra/internal/domain"
)

// Resolver converts a place name into coordinates.
// Failures are returned as *domain.LookupError carrying the reason kind.
type Resolver interface {
	Resolve(ctx context.Context, place string) (*domain.Coordinates, error)
}

// Request is one outbound HTTP call.
type Request struct {
	Source   string
	Method   string
	Endpoint string
	Query    url.Values
	Timeout  time.Duration
}

// Response is the raw upstream reply.
type Response struct {
	Status int
	Body   []byte
}

// Fetcher performs HTTP calls on behalf of adapters.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Match is one dataset predicate derived from a DatasetFilter and a query value.
type Match struct {
	Columns []string
	Value   string
	Policy  MatchPolicy
}

// Selection asks a dataset for its most recent row satisfying every match.
type Selection struct {
	Matches     []Match
	DateColumns []string
	DateLayouts []string
}

// Dataset is a read-only tabular source.
type Dataset interface {
	// Select returns the matching row with the latest date, or false when nothing matches.
	Select(sel Selection) (domain.RawResponse, bool)
	// Loaded reports whether a table is available. Lookups against an
	// unloaded dataset are source errors, not empty results.
	Loaded() bool
}

// Credentials resolves named secrets at call time.
type Credentials interface {
	Credential(name string) (string, bool)
}

// CredentialFunc adapts a function to Credentials.
type CredentialFunc func(name string) (string, bool)

func (f CredentialFunc) Credential(name string) (string, bool) { return f(name) }
