// Package geocode resolves free-text place names into coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
	"kisaanmitra/internal/usecase/lookup"
)

// Resolver defaults.
const (
	DefaultEndpoint  = "https://nominatim.openstreetmap.org/search"
	DefaultQualifier = "India"
	DefaultUserAgent = "kisaanmitra/1.0"
	DefaultTimeout   = 10 * time.Second

	maxGeocodeBodySize = 256 * 1024
)

// Config holds configuration for the Nominatim resolver.
type Config struct {
	Endpoint  string
	Qualifier string // appended to every place name, e.g. "India"
	UserAgent string
	Timeout   time.Duration
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Nominatim resolves places via a Nominatim-compatible search endpoint.
// It keeps only the top-ranked result and never retries.
type Nominatim struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

var _ lookup.Resolver = (*Nominatim)(nil)

// NewNominatim creates a resolver. Zero-valued config fields fall back to defaults.
func NewNominatim(cfg Config, logger *slog.Logger) *Nominatim {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Nominatim{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve returns the coordinates of the best match for place.
// Failures are *domain.LookupError with kind EMPTY, TIMEOUT, TRANSPORT or PARSE.
func (n *Nominatim) Resolve(ctx context.Context, place string) (*domain.Coordinates, error) {
	place = strings.TrimSpace(place)
	ctx, span := tracer.StartSpan(ctx, "geocode.resolve",
		trace.WithAttributes(tracer.StringAttr("geocode.place", place)),
	)
	defer span.End()

	coords, err := n.resolve(ctx, place)
	if err != nil {
		tracer.RecordError(span, err)
		n.logger.Debug("geocode failed", "place", place, "error", err)
		return nil, err
	}
	tracer.SetOK(span)
	n.logger.Debug("geocode resolved", "place", place, "display_name", coords.DisplayName)
	return coords, nil
}

func (n *Nominatim) resolve(ctx context.Context, place string) (*domain.Coordinates, error) {
	if place == "" {
		return nil, domain.NewLookupError(domain.KindEmpty, "place name is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.Endpoint, nil)
	if err != nil {
		return nil, domain.NewLookupError(domain.KindTransport, "create geocode request: %v", err).WithErr(err)
	}
	q := req.URL.Query()
	q.Set("q", n.qualify(place))
	q.Set("format", "json")
	q.Set("limit", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.cfg.UserAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		if lookup.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewLookupError(domain.KindTimeout, "geocoder did not answer within %s", n.cfg.Timeout).WithErr(err)
		}
		return nil, domain.NewLookupError(domain.KindTransport, "geocode request: %v", err).WithErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGeocodeBodySize))
	if err != nil {
		return nil, domain.NewLookupError(domain.KindTransport, "read geocode response: %v", err).WithErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewLookupError(domain.KindTransport, "geocoder returned HTTP %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, domain.NewLookupError(domain.KindParse, "parse geocode response: %v", err).WithErr(err)
	}
	if len(places) == 0 {
		return nil, domain.NewLookupError(domain.KindEmpty, "no match for %q", place)
	}

	top := places[0]
	lat, latErr := strconv.ParseFloat(top.Lat, 64)
	lon, lonErr := strconv.ParseFloat(top.Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, domain.NewLookupError(domain.KindParse, "geocoder returned invalid coordinates %q, %q", top.Lat, top.Lon)
	}
	return &domain.Coordinates{Latitude: lat, Longitude: lon, DisplayName: top.DisplayName}, nil
}

func (n *Nominatim) qualify(place string) string {
	if n.cfg.Qualifier == "" || strings.HasSuffix(strings.ToLower(place), strings.ToLower(n.cfg.Qualifier)) {
		return place
	}
	return fmt.Sprintf("%s, %s", place, n.cfg.Qualifier)
}
