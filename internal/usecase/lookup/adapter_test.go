package lookup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/usecase/normalize"
)

func newTestLogger() *slog.Logger { return slog.Default() }

type fakeFetcher struct {
	calls []Request
	resp  *Response
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, req Request) (*Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeResolver struct {
	calls  int
	coords *domain.Coordinates
	err    error
}

func (r *fakeResolver) Resolve(_ context.Context, _ string) (*domain.Coordinates, error) {
	r.calls++
	return r.coords, r.err
}

type fakeDataset struct {
	calls    int
	last     Selection
	row      domain.RawResponse
	unloaded bool
}

func (d *fakeDataset) Loaded() bool { return !d.unloaded }

func (d *fakeDataset) Select(sel Selection) (domain.RawResponse, bool) {
	d.calls++
	d.last = sel
	return d.row, d.row != nil
}

func creds(kv ...string) Credentials {
	m := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return CredentialFunc(func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	})
}

func priceConfig() SourceConfig {
	return SourceConfig{
		Domain:          "market",
		Source:          "prices-api",
		Kind:            SourceHTTP,
		Endpoint:        "https://prices.example/resource",
		Credential:      "PRICES_KEY",
		CredentialParam: "api-key",
		FixedParams:     url.Values{"format": {"json"}, "limit": {"1"}},
		RecordsPath:     "records",
		Params: []ParamSpec{
			{Name: "commodity", Required: true, Upstream: "filters[commodity]"},
			{Name: "state", Required: true, Upstream: "filters[state]"},
			{Name: "district", Upstream: "filters[district]"},
		},
		Fields: normalize.FieldMapping{
			{Name: "commodity", Aliases: []string{"commodity"}, Convert: normalize.Text()},
			{Name: "modal_price", Aliases: []string{"modal_price"}, Convert: normalize.Integer(), Required: true},
		},
		NoDataHint: "no prices found",
	}
}

func soilConfig() SourceConfig {
	return SourceConfig{
		Domain:       "soil",
		Source:       "soil-api",
		Kind:         SourceHTTP,
		Endpoint:     "https://soil.example/properties",
		FixedParams:  url.Values{"nearby": {"true"}},
		RecordsPath:  "features",
		NoDataStatus: []int{204},
		Params:       []ParamSpec{{Name: "location"}, {Name: "lat"}, {Name: "lon"}},
		Geocode: &GeocodeSpec{
			PlaceParam: "location", LatParam: "lat", LonParam: "lon",
			UpstreamLat: "lat", UpstreamLon: "lon",
		},
		Fields: normalize.FieldMapping{
			{Name: "ph", Aliases: []string{"properties.soil_properties.ph"}, Convert: normalize.Float(), Required: true},
		},
		NoDataHint: "soil data covers Punjab only",
	}
}

func okResponse(body string) *Response { return &Response{Status: 200, Body: []byte(body)} }

func TestLookupMissingParameterMakesNoCalls(t *testing.T) {
	f := &fakeFetcher{resp: okResponse(`{"records":[{"modal_price":"1"}]}`)}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion"})

	require.Equal(t, domain.StatusError, env.Status)
	assert.Nil(t, env.Record)
	assert.Equal(t, domain.KindMissingParameter, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "state")
	assert.Empty(t, f.calls)
}

func TestLookupMissingCredentialMakesNoCalls(t *testing.T) {
	f := &fakeFetcher{resp: okResponse(`{}`)}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Maharashtra"})

	require.True(t, env.IsError())
	assert.Equal(t, domain.KindMissingCredential, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "PRICES_KEY")
	assert.Empty(t, f.calls)
}

func TestLookupForwardsParameters(t *testing.T) {
	f := &fakeFetcher{resp: okResponse(`{"records":[{"commodity":"Onion","modal_price":"2100"}]}`)}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "secret")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Maharashtra"})

	require.Equal(t, domain.StatusOK, env.Status)
	require.Len(t, f.calls, 1)
	q := f.calls[0].Query
	assert.Equal(t, "secret", q.Get("api-key"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "Onion", q.Get("filters[commodity]"))
	assert.Equal(t, "Maharashtra", q.Get("filters[state]"))
	assert.False(t, q.Has("filters[district]"))
	assert.Equal(t, "GET", f.calls[0].Method)
	assert.Equal(t, DefaultTimeout, f.calls[0].Timeout)

	assert.Nil(t, env.Error)
	assert.Equal(t, int64(2100), env.Record.Fields["modal_price"])
	assert.Equal(t, "prices-api", env.Record.Source)
	assert.NotEmpty(t, env.LookupID)
}

func TestLookupFixedParamsNotShared(t *testing.T) {
	cfg := priceConfig()
	f := &fakeFetcher{resp: okResponse(`{"records":[{"modal_price":"1"}]}`)}
	a := New(cfg, newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
	assert.False(t, cfg.FixedParams.Has("api-key"), "request query must not alias the config")
}

func TestLookupEmptyRecordsIsNoData(t *testing.T) {
	for _, body := range []string{`{"records":[]}`, `{"total":0}`} {
		f := &fakeFetcher{resp: okResponse(body)}
		a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

		env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
		require.True(t, env.IsError(), body)
		assert.Equal(t, domain.KindNoData, env.Error.Kind, body)
		assert.Equal(t, "no prices found", env.Error.Hint)
	}
}

func TestLookupNon200IsSourceError(t *testing.T) {
	cfg := priceConfig()
	cfg.MessagePaths = []string{"message", "error"}
	f := &fakeFetcher{resp: &Response{Status: 403, Body: []byte(`{"error":"Invalid api key"}`)}}
	a := New(cfg, newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})

	require.True(t, env.IsError())
	assert.Equal(t, domain.KindSourceError, env.Error.Kind)
	assert.Equal(t, 403, env.Error.UpstreamStatus)
	assert.Equal(t, "Invalid api key", env.Error.UpstreamMessage)
	assert.Contains(t, env.Error.Hint, "Invalid api key")
}

func TestLookupNon200WithoutMessageUsesStatusText(t *testing.T) {
	f := &fakeFetcher{resp: &Response{Status: 502, Body: []byte(`<html>bad gateway</html>`)}}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
	assert.Equal(t, domain.KindSourceError, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "Bad Gateway")
}

func TestLookupMalformedBody(t *testing.T) {
	for _, body := range []string{`{"records":`, `[1,2]`, `{"records":{"a":1}}`, `{"records":["x"]}`} {
		f := &fakeFetcher{resp: okResponse(body)}
		a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

		env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
		require.True(t, env.IsError(), body)
		assert.Equal(t, domain.KindSourceError, env.Error.Kind, body)
		assert.Equal(t, domain.KindParse, env.Error.Cause, body)
	}
}

func TestLookupTransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), domain.KindTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "x", Err: timeoutErr{}}, domain.KindTimeout},
		{"refused", errors.New("connection refused"), domain.KindTransport},
		{"circuit", fmt.Errorf("prices-api: %w", domain.ErrCircuitOpen), domain.KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{err: tt.err}
			a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

			env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
			require.True(t, env.IsError())
			assert.Equal(t, tt.want, env.Error.Kind)
			assert.Len(t, f.calls, 1, "adapter must not retry")
		})
	}
}

func TestLookupTransportErrorKeepsCredentialOutOfHintAndLogs(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := &fakeFetcher{err: &url.Error{
		Op:  "Get",
		URL: "https://prices.example/resource?api-key=secret-key&format=json",
		Err: errors.New("dial tcp: connection refused"),
	}}
	a := New(priceConfig(), logger, WithFetcher(f), WithCredentials(creds("PRICES_KEY", "secret-key")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
	require.True(t, env.IsError())
	assert.Equal(t, domain.KindTransport, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "prices-api")
	assert.NotContains(t, env.Error.Hint, "secret-key")
	assert.NotContains(t, env.Error.Error(), "secret-key")
	assert.Contains(t, logs.String(), "lookup failed")
	assert.NotContains(t, logs.String(), "secret-key")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestLookupPartialRecord(t *testing.T) {
	f := &fakeFetcher{resp: okResponse(`{"records":[{"commodity":"Onion","modal_price":"NA"}]}`)}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
	assert.Equal(t, domain.StatusPartial, env.Status)
	assert.Nil(t, env.Error)
	assert.Equal(t, []string{"modal_price"}, env.Record.MissingRequired)
}

func TestLookupRecordWithNoKnownFieldsIsNoData(t *testing.T) {
	f := &fakeFetcher{resp: okResponse(`{"records":[{"unrelated":"x"}]}`)}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
	assert.Equal(t, domain.KindNoData, env.Error.Kind)
}

func TestLookupGeocodesPlaceName(t *testing.T) {
	r := &fakeResolver{coords: &domain.Coordinates{Latitude: 30.9, Longitude: 75.85, DisplayName: "Ludhiana, Punjab, India"}}
	f := &fakeFetcher{resp: okResponse(`{"features":[{"properties":{"soil_properties":{"ph":7.4}}}]}`)}
	a := New(soilConfig(), newTestLogger(), WithFetcher(f), WithResolver(r))

	env := a.Lookup(context.Background(), domain.Query{"location": "Ludhiana"})

	require.Equal(t, domain.StatusOK, env.Status)
	assert.Equal(t, 1, r.calls)
	require.Len(t, f.calls, 1)
	assert.Equal(t, "30.9", f.calls[0].Query.Get("lat"))
	assert.Equal(t, "75.85", f.calls[0].Query.Get("lon"))
	assert.Equal(t, "true", f.calls[0].Query.Get("nearby"))
	assert.Equal(t, 7.4, env.Record.Fields["ph"])
	require.NotNil(t, env.Record.Location)
	assert.Equal(t, "Ludhiana, Punjab, India", env.Record.Location.DisplayName)
}

func TestLookupUsesCoordinatesWithoutGeocoding(t *testing.T) {
	r := &fakeResolver{}
	f := &fakeFetcher{resp: okResponse(`{"features":[{"properties":{"soil_properties":{"ph":6.1}}}]}`)}
	a := New(soilConfig(), newTestLogger(), WithFetcher(f), WithResolver(r))

	env := a.Lookup(context.Background(), domain.Query{"lat": "18.52", "lon": "73.85"})

	require.Equal(t, domain.StatusOK, env.Status)
	assert.Zero(t, r.calls)
	assert.Equal(t, 18.52, env.Record.Location.Latitude)
}

func TestLookupInvalidCoordinates(t *testing.T) {
	f := &fakeFetcher{}
	a := New(soilConfig(), newTestLogger(), WithFetcher(f), WithResolver(&fakeResolver{}))

	for _, q := range []domain.Query{{"lat": "abc", "lon": "73"}, {"lat": "95", "lon": "73"}} {
		env := a.Lookup(context.Background(), q)
		assert.Equal(t, domain.KindMissingParameter, env.Error.Kind)
	}
	assert.Empty(t, f.calls)
}

func TestLookupSoilNeedsPlaceOrCoordinates(t *testing.T) {
	r := &fakeResolver{}
	f := &fakeFetcher{}
	a := New(soilConfig(), newTestLogger(), WithFetcher(f), WithResolver(r))

	env := a.Lookup(context.Background(), domain.Query{"lat": "18.5"})

	assert.Equal(t, domain.KindMissingParameter, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "location")
	assert.Zero(t, r.calls)
	assert.Empty(t, f.calls)
}

func TestLookupLocationNotFoundCarriesCause(t *testing.T) {
	r := &fakeResolver{err: domain.NewLookupError(domain.KindEmpty, "no match")}
	f := &fakeFetcher{}
	a := New(soilConfig(), newTestLogger(), WithFetcher(f), WithResolver(r))

	env := a.Lookup(context.Background(), domain.Query{"location": "Atlantis"})

	require.True(t, env.IsError())
	assert.Equal(t, domain.KindLocationNotFound, env.Error.Kind)
	assert.Equal(t, domain.KindEmpty, env.Error.Cause)
	assert.Contains(t, env.Error.Hint, "Atlantis")
	assert.Empty(t, f.calls)
}

func TestLookupSoil204IsNoDataWithCoverageHint(t *testing.T) {
	r := &fakeResolver{coords: &domain.Coordinates{Latitude: 51.5, Longitude: -0.12}}
	f := &fakeFetcher{resp: &Response{Status: 204}}
	a := New(soilConfig(), newTestLogger(), WithFetcher(f), WithResolver(r))

	env := a.Lookup(context.Background(), domain.Query{"location": "London"})

	require.True(t, env.IsError())
	assert.Equal(t, domain.KindNoData, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "Punjab")
}

func TestLookupDatasetBuildsMatchesFromPresentParams(t *testing.T) {
	cfg := SourceConfig{
		Domain: "market",
		Source: "mandi-dataset",
		Kind:   SourceDataset,
		Params: []ParamSpec{
			{Name: "commodity", Required: true},
			{Name: "state", Required: true},
			{Name: "district"},
		},
		Filters: []DatasetFilter{
			{Param: "commodity", Columns: []string{"Commodity"}, Policy: MatchContains},
			{Param: "state", Columns: []string{"State"}, Policy: MatchExact},
			{Param: "district", Columns: []string{"District"}, Policy: MatchContains},
		},
		DateColumns: []string{"Arrival_Date"},
		DateLayouts: []string{"02/01/2006"},
		Fields: normalize.FieldMapping{
			{Name: "modal_price", Aliases: []string{"Modal_x0020_Price"}, Convert: normalize.Integer(), Required: true},
		},
	}
	d := &fakeDataset{row: domain.RawResponse{"Modal_x0020_Price": "1500"}}
	a := New(cfg, newTestLogger(), WithDataset(d))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "onion", "state": "Maharashtra"})

	require.Equal(t, domain.StatusOK, env.Status)
	require.Len(t, d.last.Matches, 2)
	assert.Equal(t, Match{Columns: []string{"Commodity"}, Value: "onion", Policy: MatchContains}, d.last.Matches[0])
	assert.Equal(t, []string{"Arrival_Date"}, d.last.DateColumns)

	d.row = nil
	env = a.Lookup(context.Background(), domain.Query{"commodity": "onion", "state": "Kerala"})
	assert.Equal(t, domain.KindNoData, env.Error.Kind)

	env = a.Lookup(context.Background(), domain.Query{"commodity": "onion"})
	assert.Equal(t, domain.KindMissingParameter, env.Error.Kind)
	assert.Equal(t, 2, d.calls)
}

func TestLookupUnloadedDatasetIsSourceError(t *testing.T) {
	cfg := SourceConfig{
		Domain: "market",
		Source: "mandi",
		Kind:   SourceDataset,
		Params: []ParamSpec{{Name: "commodity", Required: true}},
		Fields: normalize.FieldMapping{{Name: "modal_price", Aliases: []string{"Modal_x0020_Price"}, Convert: normalize.Integer()}},
	}
	d := &fakeDataset{unloaded: true}
	a := New(cfg, newTestLogger(), WithDataset(d))

	env := a.Lookup(context.Background(), domain.Query{"commodity": "onion"})
	require.True(t, env.IsError())
	assert.Equal(t, domain.KindSourceError, env.Error.Kind)
	assert.Contains(t, env.Error.Hint, "not loaded")
	assert.Zero(t, d.calls)
}

func TestLookupEnvelopeExclusive(t *testing.T) {
	f := &fakeFetcher{resp: okResponse(`{"records":[{"modal_price":"1"}]}`)}
	a := New(priceConfig(), newTestLogger(), WithFetcher(f), WithCredentials(creds("PRICES_KEY", "k")))

	queries := []domain.Query{
		{},
		{"commodity": "Onion"},
		{"commodity": "Onion", "state": "Goa"},
	}
	for _, q := range queries {
		env := a.Lookup(context.Background(), q)
		switch env.Status {
		case domain.StatusOK, domain.StatusPartial:
			assert.NotNil(t, env.Record)
			assert.Nil(t, env.Error)
		case domain.StatusError:
			assert.Nil(t, env.Record)
			assert.NotNil(t, env.Error)
		default:
			t.Fatalf("unexpected status %q", env.Status)
		}
	}
}

func TestLookupDeterministicIDsAndClock(t *testing.T) {
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{resp: okResponse(`{"records":[{"modal_price":"1"}]}`)}
	a := New(priceConfig(), newTestLogger(),
		WithFetcher(f),
		WithCredentials(creds("PRICES_KEY", "k")),
		WithIDGenerator(func() string { return "lookup-1" }),
		WithClock(func() time.Time { return now }),
	)

	env := a.Lookup(context.Background(), domain.Query{"commodity": "Onion", "state": "Goa"})
	assert.Equal(t, "lookup-1", env.LookupID)
	assert.Equal(t, now, env.Record.NormalizedAt)
}

func TestLookupUnsupportedKind(t *testing.T) {
	a := New(SourceConfig{Domain: "x", Source: "y", Kind: "ftp"}, newTestLogger())
	env := a.Lookup(context.Background(), domain.Query{})
	assert.Equal(t, domain.KindSourceError, env.Error.Kind)
}
