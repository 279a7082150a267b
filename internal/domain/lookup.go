package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Query is the set of named parameters supplied by the caller for one lookup.
// Keys are matched case-insensitively; values are trimmed.
type Query map[string]string

// NewQuery builds a Query from loosely typed tool arguments.
// Numbers and booleans are formatted; nil and empty values are dropped.
func NewQuery(args map[string]any) Query {
	q := make(Query, len(args))
	for k, v := range args {
		var s string
		switch val := v.(type) {
		case nil:
			continue
		case string:
			s = val
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			q[strings.ToLower(k)] = s
		}
	}
	return q
}

// Get returns the trimmed value for name, or "" when absent.
func (q Query) Get(name string) string {
	return strings.TrimSpace(q[strings.ToLower(name)])
}

// Has reports whether name carries a non-empty value.
func (q Query) Has(name string) bool { return q.Get(name) != "" }

// Coordinates is a resolved geographic position in decimal degrees.
type Coordinates struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name,omitempty"`
}

// RawResponse is an undecoded-by-schema payload from an external source:
// a parsed JSON object or a dataset row keyed by column name.
type RawResponse map[string]any

// NormalizedRecord is the canonical output of a successful lookup.
// Fields only holds values that passed conversion; everything else is in Missing.
type NormalizedRecord struct {
	Domain       string         `json:"domain"`
	Source       string         `json:"source"`
	Fields       map[string]any `json:"fields"`
	Missing      []string       `json:"missing,omitempty"`
	Location     *Coordinates   `json:"location,omitempty"`
	NormalizedAt time.Time      `json:"normalized_at"`

	// MissingRequired is the subset of Missing declared required for the domain.
	MissingRequired []string `json:"missing_required,omitempty"`
}

// MarkMissing records an absent field. Required fields escalate the record to partial.
func (r *NormalizedRecord) MarkMissing(name string, required bool) {
	r.Missing = append(r.Missing, name)
	if required {
		r.MissingRequired = append(r.MissingRequired, name)
	}
}

// Partial reports whether any required field is missing.
func (r *NormalizedRecord) Partial() bool { return len(r.MissingRequired) > 0 }

// Status tags a ResultEnvelope.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// ResultEnvelope is the uniform outcome of a lookup: exactly one of Record or Error is set.
type ResultEnvelope struct {
	LookupID string            `json:"lookup_id"`
	Domain   string            `json:"domain"`
	Status   Status            `json:"status"`
	Record   *NormalizedRecord `json:"record,omitempty"`
	Error    *LookupError      `json:"error,omitempty"`
}

// OK wraps a record, tagging it partial when required fields are missing.
func OK(id string, rec *NormalizedRecord) ResultEnvelope {
	status := StatusOK
	if rec.Partial() {
		status = StatusPartial
	}
	return ResultEnvelope{LookupID: id, Domain: rec.Domain, Status: status, Record: rec}
}

// Failed wraps a lookup error.
func Failed(id, domainName string, err *LookupError) ResultEnvelope {
	return ResultEnvelope{LookupID: id, Domain: domainName, Status: StatusError, Error: err}
}

// IsError reports whether the envelope carries an error.
func (e ResultEnvelope) IsError() bool { return e.Status == StatusError }
