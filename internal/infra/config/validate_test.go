package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"logger level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"logger format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"tracer exporter", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.Exporter = "jaeger" }, "tracer.exporter"},
		{"tracer file missing", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.Exporter = "file" }, "tracer.file"},
		{"tracer ratio", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.SampleRatio = 2 }, "tracer.sample_ratio"},
		{"http timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout must be > 0"},
		{"http rate", func(c *Config) { c.HTTP.RequestsPerMinute = -1 }, "http.requests_per_minute"},
		{"http burst", func(c *Config) { c.HTTP.Burst = -1 }, "http.burst"},
		{"breaker", func(c *Config) { c.HTTP.Breaker.Timeout = -time.Second }, "http.circuit_breaker"},
		{"geocoder endpoint", func(c *Config) { c.Geocoder.Endpoint = "" }, "geocoder.endpoint must not be empty"},
		{"geocoder scheme", func(c *Config) { c.Geocoder.Endpoint = "ftp://geo.example" }, "geocoder.endpoint"},
		{"soil endpoint", func(c *Config) { c.Soil.Endpoint = "not a url" }, "soil.endpoint"},
		{"weather units", func(c *Config) { c.Weather.Units = "imperial" }, "weather.units"},
		{"weather credential", func(c *Config) { c.Weather.Credential = "" }, "weather.credential"},
		{"market source", func(c *Config) { c.Market.Source = "ftp" }, "market.source"},
		{"market credential", func(c *Config) { c.Market.Credential = "" }, "market.credential"},
		{"dataset path", func(c *Config) { c.Market.Source = MarketSourceDataset }, "market.dataset.path"},
		{"sqlite table", func(c *Config) {
			c.Market.Source = MarketSourceDataset
			c.Market.Dataset.Path = "mandi.db"
		}, "market.dataset.table"},
		{"refresh schedule", func(c *Config) {
			c.Market.Source = MarketSourceDataset
			c.Market.Dataset.Path = "mandi.csv"
			c.Market.Dataset.Refresh = "whenever"
		}, "market.dataset.refresh"},
		{"mcp name", func(c *Config) { c.MCP.Name = "" }, "mcp.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAllowsEmptySoilEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Soil.Endpoint = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("empty soil endpoint should be allowed: %v", err)
	}
}

func TestValidateDatasetSkipsAPIChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Market.Source = MarketSourceDataset
	cfg.Market.Endpoint = ""
	cfg.Market.Credential = ""
	cfg.Market.Dataset.Path = "mandi.sqlite"
	cfg.Market.Dataset.Table = "prices"
	cfg.Market.Dataset.Refresh = "6h"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.HTTP.Timeout = 0
	cfg.MCP.Name = ""
	cfg.Weather.Units = "kelvin"

	var ve *ValidationError
	if !errors.As(Validate(cfg), &ve) {
		t.Fatal("expected *ValidationError")
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
	assertContains(t, ve.Error(), "config validation failed")
}
