// Package source implements the raw data sources behind lookup adapters:
// a guarded HTTP fetcher and read-only in-memory datasets.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
	"kisaanmitra/internal/usecase/lookup"
)

// Fetcher defaults.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
	defaultUserAgent                   = "kisaanmitra/1.0"
	maxSourceBodySize                  = 2 * 1024 * 1024 // 2MB
)

// BreakerConfig configures the per-source circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a trial request is allowed.
	Timeout time.Duration
	// Interval clears failure counts while closed. Zero means never.
	Interval time.Duration
}

// FetcherConfig configures an HTTPFetcher.
type FetcherConfig struct {
	UserAgent string
	// RequestsPerMin caps calls per source. Zero disables rate limiting.
	RequestsPerMin int
	Burst          int
	Breaker        BreakerConfig
}

type guard struct {
	breaker *gobreaker.CircuitBreaker[*lookup.Response]
	limiter *rate.Limiter
}

// HTTPFetcher performs upstream calls with a circuit breaker and a token
// bucket per source. Transport failures and 5xx replies count against the breaker.
type HTTPFetcher struct {
	client *http.Client
	cfg    FetcherConfig
	logger *slog.Logger

	mu     sync.Mutex
	guards map[string]*guard
}

var _ lookup.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. A nil client gets a pooled default transport.
func NewHTTPFetcher(client *http.Client, cfg FetcherConfig, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Transport: newPooledTransport()}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = defaultCBMaxFailures
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = defaultCBTimeout
	}
	if cfg.Breaker.Interval == 0 {
		cfg.Breaker.Interval = defaultCBInterval
	}
	return &HTTPFetcher{
		client: client,
		cfg:    cfg,
		logger: logger,
		guards: make(map[string]*guard),
	}
}

func (f *HTTPFetcher) guardFor(source string) *guard {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.guards[source]; ok {
		return g
	}

	maxFailures := f.cfg.Breaker.MaxFailures
	g := &guard{
		breaker: gobreaker.NewCircuitBreaker[*lookup.Response](gobreaker.Settings{
			Name:        "source:" + source,
			MaxRequests: 1,
			Interval:    f.cfg.Breaker.Interval,
			Timeout:     f.cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				f.logger.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
			IsSuccessful: func(err error) bool {
				return err == nil
			},
		}),
	}
	if f.cfg.RequestsPerMin > 0 {
		burst := f.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(f.cfg.RequestsPerMin)/60.0), burst)
	}
	f.guards[source] = g
	return g
}

// State returns the breaker state for source, or closed if it was never used.
func (f *HTTPFetcher) State(source string) gobreaker.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.guards[source]; ok {
		return g.breaker.State()
	}
	return gobreaker.StateClosed
}

var errServerStatus = errors.New("upstream server error")

// Fetch issues one request. Non-2xx replies are returned as responses, not errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, req lookup.Request) (*lookup.Response, error) {
	ctx, span := tracer.StartSpan(ctx, "source.fetch",
		trace.WithAttributes(
			tracer.StringAttr("source.name", req.Source),
			tracer.StringAttr("http.method", req.Method),
		),
	)
	defer span.End()

	g := f.guardFor(req.Source)
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("%s rate limit wait: %w", req.Source, domain.ErrTimeout)
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	var resp *lookup.Response
	_, err := g.breaker.Execute(func() (*lookup.Response, error) {
		r, err := f.do(ctx, req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.Status >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		err = fmt.Errorf("%s: %w", req.Source, domain.ErrCircuitOpen)
		tracer.RecordError(span, err)
		return nil, err
	case errors.Is(err, errServerStatus):
		// Counted against the breaker; the adapter still classifies the reply.
	case err != nil:
		tracer.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(tracer.IntAttr("http.status_code", resp.Status))
	tracer.SetOK(span)
	f.logger.Debug("source fetched", "source", req.Source, "status", resp.Status, "bytes", len(resp.Body))
	return resp, nil
}

func (f *HTTPFetcher) do(ctx context.Context, req lookup.Request) (*lookup.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(req.Query) > 0 {
		httpReq.URL.RawQuery = req.Query.Encode()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", req.Source, redactURL(err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxSourceBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Source, err)
	}
	return &lookup.Response{Status: httpResp.StatusCode, Body: body}, nil
}

// redactURL drops the query string from a *url.Error. Source credentials
// travel as query parameters and must not reach hints, logs or spans.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil {
		if u.RawQuery != "" {
			u.RawQuery = "redacted"
		}
		ue.URL = u.String()
	} else {
		ue.URL = "redacted"
	}
	return err
}

func newPooledTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}
