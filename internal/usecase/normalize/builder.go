// Package normalize turns heterogeneous upstream payloads into NormalizedRecords.
package normalize

import (
	"time"

	"kisaanmitra/internal/domain"
)

// FieldSpec declares one canonical field and how to find it in a raw payload.
type FieldSpec struct {
	// Name is the canonical field name in the record.
	Name string
	// Aliases are dotted paths tried in order; the first present, non-null value wins.
	Aliases []string
	// Convert coerces the winning value. Nil keeps scalars as-is.
	Convert Converter
	// Required escalates the record to partial when the field is missing.
	Required bool
}

// FieldMapping is the ordered set of fields for one source.
type FieldMapping []FieldSpec

// Names returns the canonical field names in declaration order.
func (m FieldMapping) Names() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Name
	}
	return names
}

// Builder builds NormalizedRecords tagged with a domain and provenance.
type Builder struct {
	domain string
	source string
	now    func() time.Time
}

// NewBuilder creates a Builder for the given domain and source identifier.
func NewBuilder(domainName, source string) *Builder {
	return &Builder{domain: domainName, source: source, now: time.Now}
}

// WithClock overrides the timestamp source. Used by tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build extracts every declared field from raw. Fields that are absent or fail
// conversion are omitted from Fields and listed in Missing.
func (b *Builder) Build(raw domain.RawResponse, m FieldMapping) *domain.NormalizedRecord {
	rec := &domain.NormalizedRecord{
		Domain:       b.domain,
		Source:       b.source,
		Fields:       make(map[string]any, len(m)),
		NormalizedAt: b.now().UTC(),
	}
	for _, f := range m {
		v, ok := pick(raw, f.Aliases)
		if !ok {
			rec.MarkMissing(f.Name, f.Required)
			continue
		}
		if f.Convert != nil {
			cv, err := f.Convert(v)
			if err != nil {
				rec.MarkMissing(f.Name, f.Required)
				continue
			}
			v = cv
		} else if !scalar(v) {
			rec.MarkMissing(f.Name, f.Required)
			continue
		}
		rec.Fields[f.Name] = v
	}
	return rec
}

func pick(raw domain.RawResponse, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := Resolve(raw, alias); ok {
			return v, true
		}
	}
	return nil, false
}

func scalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}
