package lookup

import (
	"net/url"
	"time"

	"kisaanmitra/internal/usecase/normalize"
)

// SourceKind selects how an adapter fetches raw data.
type SourceKind string

const (
	SourceHTTP    SourceKind = "http"
	SourceDataset SourceKind = "dataset"
)

// DefaultTimeout bounds every upstream call that does not declare its own.
const DefaultTimeout = 15 * time.Second

// ParamSpec declares one query parameter accepted by a source.
type ParamSpec struct {
	Name        string
	Description string
	// Type is the JSON schema type advertised to callers; empty means "string".
	Type     string
	Required bool
	// Upstream is the upstream query parameter the value is forwarded as.
	// Empty means the value is not forwarded.
	Upstream string
}

// GeocodeSpec declares that a source needs coordinates. Callers supply either
// a place name or both coordinates; a place name is resolved first.
type GeocodeSpec struct {
	PlaceParam  string
	LatParam    string
	LonParam    string
	UpstreamLat string
	UpstreamLon string
}

// MatchPolicy decides how a dataset column is compared to a query value.
type MatchPolicy string

const (
	// MatchExact compares case-insensitively after trimming.
	MatchExact MatchPolicy = "exact"
	// MatchContains accepts a case-insensitive substring.
	MatchContains MatchPolicy = "contains"
)

// DatasetFilter binds a query parameter to a dataset column.
type DatasetFilter struct {
	Param   string
	Columns []string // column aliases, first present wins
	Policy  MatchPolicy
}

// SourceConfig is the declarative description of one external data source.
type SourceConfig struct {
	Domain string
	// Source is the provenance tag stamped on every record.
	Source string
	Kind   SourceKind

	// HTTP sources.
	Endpoint        string
	Method          string
	Credential      string // required credential name, empty for none
	CredentialParam string // upstream query parameter carrying the credential
	FixedParams     url.Values
	Timeout         time.Duration
	// RecordsPath is the dotted path to the list of records in the body.
	// Empty means the body itself is the record.
	RecordsPath  string
	NoDataStatus []int
	// MessagePaths are tried in order to extract an upstream error message.
	MessagePaths []string

	// Dataset sources.
	Filters     []DatasetFilter
	DateColumns []string
	DateLayouts []string

	Params     []ParamSpec
	Geocode    *GeocodeSpec
	Fields     normalize.FieldMapping
	NoDataHint string
}

// Param returns the declared parameter called name.
func (c SourceConfig) Param(name string) (ParamSpec, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

func (c SourceConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c SourceConfig) isNoData(status int) bool {
	for _, s := range c.NoDataStatus {
		if s == status {
			return true
		}
	}
	return false
}
