// Package lookup orchestrates one external data lookup: parameter validation,
// optional geocoding, the fetch itself, and normalization into an envelope.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
	"kisaanmitra/internal/usecase/normalize"
)

// Adapter performs lookups against one configured source.
// It holds no mutable state and is safe for concurrent use.
type Adapter struct {
	cfg      SourceConfig
	fetcher  Fetcher
	dataset  Dataset
	resolver Resolver
	creds    Credentials
	builder  *normalize.Builder
	newID    func() string
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithFetcher sets the HTTP fetcher used by SourceHTTP configs.
func WithFetcher(f Fetcher) Option { return func(a *Adapter) { a.fetcher = f } }

// WithDataset sets the table used by SourceDataset configs.
func WithDataset(d Dataset) Option { return func(a *Adapter) { a.dataset = d } }

// WithResolver sets the geocoder used by configs with a GeocodeSpec.
func WithResolver(r Resolver) Option { return func(a *Adapter) { a.resolver = r } }

// WithCredentials sets the credential source.
func WithCredentials(c Credentials) Option { return func(a *Adapter) { a.creds = c } }

// WithClock overrides the normalization timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.builder.WithClock(now) }
}

// WithIDGenerator overrides lookup ID generation.
func WithIDGenerator(fn func() string) Option { return func(a *Adapter) { a.newID = fn } }

// New creates an Adapter for cfg.
func New(cfg SourceConfig, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:     cfg,
		builder: normalize.NewBuilder(cfg.Domain, cfg.Source),
		newID:   func() string { return ulid.Make().String() },
		creds:   CredentialFunc(func(string) (string, bool) { return "", false }),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the source description the adapter was built with.
func (a *Adapter) Config() SourceConfig { return a.cfg }

// Lookup runs one query. It never returns a Go error: every failure is
// reported in the envelope.
func (a *Adapter) Lookup(ctx context.Context, q domain.Query) domain.ResultEnvelope {
	id := a.newID()
	ctx, span := tracer.StartSpan(ctx, "lookup."+a.cfg.Domain,
		trace.WithAttributes(
			tracer.StringAttr("lookup.domain", a.cfg.Domain),
			tracer.StringAttr("lookup.source", a.cfg.Source),
			tracer.StringAttr("lookup.id", id),
		),
	)
	defer span.End()

	rec, lerr := a.lookup(ctx, q)
	var env domain.ResultEnvelope
	if lerr != nil {
		env = domain.Failed(id, a.cfg.Domain, lerr)
		span.SetAttributes(tracer.StringAttr("lookup.kind", string(lerr.Kind)))
		tracer.RecordError(span, lerr)
		a.logger.Warn("lookup failed",
			"domain", a.cfg.Domain,
			"lookup_id", id,
			"kind", lerr.Kind,
			"cause", lerr.Cause,
			"hint", lerr.Hint,
		)
	} else {
		env = domain.OK(id, rec)
		tracer.SetOK(span)
		a.logger.Debug("lookup completed",
			"domain", a.cfg.Domain,
			"lookup_id", id,
			"source", a.cfg.Source,
			"status", env.Status,
			"missing", rec.Missing,
		)
	}
	span.SetAttributes(tracer.StringAttr("lookup.status", string(env.Status)))
	return env
}

func (a *Adapter) lookup(ctx context.Context, q domain.Query) (*domain.NormalizedRecord, *domain.LookupError) {
	if lerr := a.validate(q); lerr != nil {
		return nil, lerr
	}

	switch a.cfg.Kind {
	case SourceHTTP:
		return a.lookupHTTP(ctx, q)
	case SourceDataset:
		return a.lookupDataset(q)
	default:
		return nil, domain.NewLookupError(domain.KindSourceError, "source %q has unsupported kind %q", a.cfg.Source, a.cfg.Kind)
	}
}

// validate checks required parameters without touching any external source.
func (a *Adapter) validate(q domain.Query) *domain.LookupError {
	var missing []string
	for _, p := range a.cfg.Params {
		if p.Required && !q.Has(p.Name) {
			missing = append(missing, p.Name)
		}
	}
	if g := a.cfg.Geocode; g != nil && !q.Has(g.PlaceParam) {
		if !q.Has(g.LatParam) || !q.Has(g.LonParam) {
			missing = append(missing, fmt.Sprintf("%s (or %s and %s)", g.PlaceParam, g.LatParam, g.LonParam))
		}
	}
	if len(missing) > 0 {
		return domain.NewLookupError(domain.KindMissingParameter,
			"missing required parameter(s): %s; ask the user for them", strings.Join(missing, ", "))
	}
	return nil
}

func (a *Adapter) coordinates(ctx context.Context, q domain.Query) (*domain.Coordinates, *domain.LookupError) {
	g := a.cfg.Geocode
	if place := q.Get(g.PlaceParam); place != "" {
		if a.resolver == nil {
			return nil, domain.NewLookupError(domain.KindSourceError, "no location resolver configured for %s", a.cfg.Domain)
		}
		coords, err := a.resolver.Resolve(ctx, place)
		if err != nil {
			lerr := &domain.LookupError{
				Kind: domain.KindLocationNotFound,
				Hint: fmt.Sprintf("could not find location %q; ask the user for a nearby town or district", place),
				Err:  err,
			}
			if cause, ok := asLookupError(err); ok {
				lerr.Cause = cause.Kind
			}
			return nil, lerr
		}
		return coords, nil
	}

	lat, latErr := strconv.ParseFloat(q.Get(g.LatParam), 64)
	lon, lonErr := strconv.ParseFloat(q.Get(g.LonParam), 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, domain.NewLookupError(domain.KindMissingParameter,
			"%s and %s must be decimal degrees", g.LatParam, g.LonParam)
	}
	return &domain.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func (a *Adapter) lookupHTTP(ctx context.Context, q domain.Query) (*domain.NormalizedRecord, *domain.LookupError) {
	if a.fetcher == nil {
		return nil, domain.NewLookupError(domain.KindSourceError, "no fetcher configured for %s", a.cfg.Source)
	}
	if a.cfg.Endpoint == "" {
		return nil, domain.NewLookupError(domain.KindSourceError, "%s has no endpoint configured", a.cfg.Source)
	}

	query := url.Values{}
	for k, vs := range a.cfg.FixedParams {
		query[k] = append([]string(nil), vs...)
	}

	if a.cfg.Credential != "" {
		secret, ok := a.creds.Credential(a.cfg.Credential)
		if !ok || secret == "" {
			return nil, domain.NewLookupError(domain.KindMissingCredential,
				"%s is not configured; set it in the environment or config credentials", a.cfg.Credential)
		}
		query.Set(a.cfg.CredentialParam, secret)
	}

	for _, p := range a.cfg.Params {
		if p.Upstream != "" && q.Has(p.Name) {
			query.Set(p.Upstream, q.Get(p.Name))
		}
	}

	var coords *domain.Coordinates
	if a.cfg.Geocode != nil {
		var lerr *domain.LookupError
		if coords, lerr = a.coordinates(ctx, q); lerr != nil {
			return nil, lerr
		}
		query.Set(a.cfg.Geocode.UpstreamLat, strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
		query.Set(a.cfg.Geocode.UpstreamLon, strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	}

	method := a.cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.timeout())
	defer cancel()

	resp, err := a.fetcher.Fetch(ctx, Request{
		Source:   a.cfg.Source,
		Method:   method,
		Endpoint: a.cfg.Endpoint,
		Query:    query,
		Timeout:  a.cfg.timeout(),
	})
	if err != nil {
		return nil, classifyTransport(a.cfg.Source, err)
	}

	raw, lerr := a.decode(resp)
	if lerr != nil {
		return nil, lerr
	}
	return a.build(raw, coords)
}

func (a *Adapter) decode(resp *Response) (domain.RawResponse, *domain.LookupError) {
	if a.cfg.isNoData(resp.Status) {
		return nil, a.noData()
	}

	var body any
	parseErr := json.Unmarshal(resp.Body, &body)

	if resp.Status != http.StatusOK {
		lerr := &domain.LookupError{
			Kind:           domain.KindSourceError,
			UpstreamStatus: resp.Status,
		}
		if obj, ok := body.(map[string]any); ok && parseErr == nil {
			lerr.UpstreamMessage = a.message(obj)
		}
		msg := lerr.UpstreamMessage
		if msg == "" {
			msg = http.StatusText(resp.Status)
		}
		lerr.Hint = fmt.Sprintf("%s returned HTTP %d: %s", a.cfg.Source, resp.Status, msg)
		return nil, lerr
	}

	if parseErr != nil {
		return nil, &domain.LookupError{
			Kind:  domain.KindSourceError,
			Cause: domain.KindParse,
			Hint:  fmt.Sprintf("%s returned a malformed body", a.cfg.Source),
			Err:   parseErr,
		}
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return nil, &domain.LookupError{
			Kind:  domain.KindSourceError,
			Cause: domain.KindParse,
			Hint:  fmt.Sprintf("%s returned %T where an object was expected", a.cfg.Source, body),
		}
	}
	if a.cfg.RecordsPath == "" {
		return obj, nil
	}

	list, present := normalize.Resolve(obj, a.cfg.RecordsPath)
	if !present {
		return nil, a.noData()
	}
	items, ok := list.([]any)
	if !ok {
		return nil, &domain.LookupError{
			Kind:  domain.KindSourceError,
			Cause: domain.KindParse,
			Hint:  fmt.Sprintf("%s field %q is not a list", a.cfg.Source, a.cfg.RecordsPath),
		}
	}
	if len(items) == 0 {
		return nil, a.noData()
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return nil, &domain.LookupError{
			Kind:  domain.KindSourceError,
			Cause: domain.KindParse,
			Hint:  fmt.Sprintf("%s record is not an object", a.cfg.Source),
		}
	}
	return first, nil
}

func (a *Adapter) lookupDataset(q domain.Query) (*domain.NormalizedRecord, *domain.LookupError) {
	if a.dataset == nil || !a.dataset.Loaded() {
		return nil, domain.NewLookupError(domain.KindSourceError, "dataset for %s is not loaded", a.cfg.Source)
	}

	sel := Selection{DateColumns: a.cfg.DateColumns, DateLayouts: a.cfg.DateLayouts}
	for _, f := range a.cfg.Filters {
		if v := q.Get(f.Param); v != "" {
			sel.Matches = append(sel.Matches, Match{Columns: f.Columns, Value: v, Policy: f.Policy})
		}
	}

	row, ok := a.dataset.Select(sel)
	if !ok {
		return nil, a.noData()
	}
	return a.build(row, nil)
}

func (a *Adapter) build(raw domain.RawResponse, coords *domain.Coordinates) (*domain.NormalizedRecord, *domain.LookupError) {
	rec := a.builder.Build(raw, a.cfg.Fields)
	if len(rec.Fields) == 0 {
		return nil, a.noData()
	}
	rec.Location = coords
	return rec, nil
}

func (a *Adapter) noData() *domain.LookupError {
	hint := a.cfg.NoDataHint
	if hint == "" {
		hint = fmt.Sprintf("%s has no data for this query", a.cfg.Source)
	}
	return &domain.LookupError{Kind: domain.KindNoData, Hint: hint}
}

func (a *Adapter) message(body map[string]any) string {
	for _, p := range a.cfg.MessagePaths {
		if v, ok := normalize.Resolve(body, p); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
