package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"kisaanmitra/internal/adapter/geocode"
	"kisaanmitra/internal/adapter/source"
	"kisaanmitra/internal/adapter/tool"
	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/config"
	"kisaanmitra/internal/usecase/advisory"
	"kisaanmitra/internal/usecase/lookup"
)

// app holds the wired advisory components.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	advisors  *advisory.Registry
	tools     *tool.Registry
	dataset   *source.Holder      // nil unless market.source is "dataset"
	refresher *advisory.Refresher // nil unless a refresh schedule is set
}

// buildApp wires sources, advisors and tools from cfg. A dataset-backed market
// source is loaded before returning so the first lookup sees data.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	fetcher := source.NewHTTPFetcher(nil, source.FetcherConfig{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestsPerMin: cfg.HTTP.RequestsPerMinute,
		Burst:          cfg.HTTP.Burst,
		Breaker: source.BreakerConfig{
			MaxFailures: cfg.HTTP.Breaker.MaxFailures,
			Timeout:     cfg.HTTP.Breaker.Timeout,
			Interval:    cfg.HTTP.Breaker.Interval,
		},
	}, log)

	resolver := geocode.NewNominatim(geocode.Config{
		Endpoint:  cfg.Geocoder.Endpoint,
		Qualifier: cfg.Geocoder.Qualifier,
		UserAgent: firstNonEmpty(cfg.Geocoder.UserAgent, cfg.HTTP.UserAgent),
		Timeout:   cfg.Geocoder.Timeout,
	}, log)

	creds := lookup.CredentialFunc(cfg.Credential)
	httpOpts := []lookup.Option{
		lookup.WithFetcher(fetcher),
		lookup.WithResolver(resolver),
		lookup.WithCredentials(creds),
	}

	soil := lookup.New(advisory.SoilSource(advisory.SoilSettings{
		Endpoint:   cfg.Soil.Endpoint,
		Properties: cfg.Soil.Properties,
		Coverage:   cfg.Soil.Coverage,
		Timeout:    timeoutOr(cfg.Soil.Timeout, cfg.HTTP.Timeout),
	}), log, httpOpts...)

	weather := lookup.New(advisory.WeatherSource(advisory.WeatherSettings{
		Endpoint:   cfg.Weather.Endpoint,
		Credential: cfg.Weather.Credential,
		Units:      cfg.Weather.Units,
		Timeout:    timeoutOr(cfg.Weather.Timeout, cfg.HTTP.Timeout),
	}), log, httpOpts...)

	a := &app{cfg: cfg, logger: log}

	market, err := a.marketLooker(ctx, httpOpts)
	if err != nil {
		return nil, err
	}

	a.advisors, err = advisory.NewStandardRegistry(cfg.Advisors.Model, soil, weather, market, log)
	if err != nil {
		return nil, fmt.Errorf("advisors: %w", err)
	}
	a.tools = tool.NewRegistry(log)
	if err := tool.RegisterAdvisors(a.tools, a.advisors, log); err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	return a, nil
}

func (a *app) marketLooker(ctx context.Context, httpOpts []lookup.Option) (*lookup.Adapter, error) {
	cfg := a.cfg.Market
	settings := advisory.MarketSettings{
		Endpoint:   cfg.Endpoint,
		Credential: cfg.Credential,
		Timeout:    timeoutOr(cfg.Timeout, a.cfg.HTTP.Timeout),
	}
	if cfg.Source != config.MarketSourceDataset {
		return lookup.New(advisory.MarketAPISource(settings), a.logger, httpOpts...), nil
	}

	settings.DatasetName = datasetName(cfg.Dataset)
	a.dataset = source.NewHolder(datasetLoader(cfg.Dataset), a.logger)
	if err := a.dataset.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("market dataset: %w", err)
	}
	if cfg.Dataset.Refresh != "" {
		a.refresher = advisory.NewRefresher(a.logger)
		if err := a.refresher.Add(settings.DatasetName, cfg.Dataset.Refresh, a.dataset); err != nil {
			return nil, err
		}
	}
	return lookup.New(advisory.MarketDatasetSource(settings), a.logger, lookup.WithDataset(a.dataset)), nil
}

// start begins background dataset reloads, if any.
func (a *app) start(ctx context.Context) {
	if a.refresher == nil {
		return
	}
	a.refresher.Start(ctx)
	if next := a.refresher.Next(datasetName(a.cfg.Market.Dataset)); next != nil {
		a.logger.Info("dataset refresh scheduled", "next", next.Format(time.RFC3339))
	}
}

func (a *app) stop() {
	if a.refresher != nil {
		a.refresher.Stop()
	}
}

func datasetLoader(d config.DatasetConfig) source.Loader {
	if d.IsSQLite() {
		return func(ctx context.Context) (*source.Table, error) {
			return source.LoadSQLiteTable(ctx, d.Path, d.Table)
		}
	}
	return func(context.Context) (*source.Table, error) {
		return source.LoadCSVFile(d.Path)
	}
}

func datasetName(d config.DatasetConfig) string {
	name := strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
	if d.IsSQLite() && d.Table != "" {
		name += "." + d.Table
	}
	return name
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// identities lists the advisor identities without the coordinator.
func (a *app) identities() []domain.AdvisorIdentity {
	list := a.advisors.List()
	out := make([]domain.AdvisorIdentity, 0, len(list))
	for _, adv := range list {
		out = append(out, adv.Identity)
	}
	return out
}
