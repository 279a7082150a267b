package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Credentials are not checked: a missing key only fails the lookups that need it.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateHTTP(cfg, ve)
	validateGeocoder(cfg, ve)
	validateSoil(cfg, ve)
	validateWeather(cfg, ve)
	validateMarket(cfg, ve)
	validateMCP(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout", "stderr":
	case "file":
		if cfg.Tracer.File == "" {
			ve.Add("tracer.file is required when tracer.exporter is file")
		}
	default:
		ve.Add("tracer.exporter %q is invalid (want noop, stdout, stderr or file)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.Timeout <= 0 {
		ve.Add("http.timeout must be > 0")
	}
	if cfg.HTTP.RequestsPerMinute < 0 {
		ve.Add("http.requests_per_minute must be >= 0")
	}
	if cfg.HTTP.Burst < 0 {
		ve.Add("http.burst must be >= 0")
	}
	if cfg.HTTP.Breaker.Timeout < 0 || cfg.HTTP.Breaker.Interval < 0 {
		ve.Add("http.circuit_breaker durations must be >= 0")
	}
}

func validateGeocoder(cfg *Config, ve *ValidationError) {
	validateEndpoint("geocoder.endpoint", cfg.Geocoder.Endpoint, true, ve)
	validateTimeout("geocoder.timeout", cfg.Geocoder.Timeout, ve)
}

func validateSoil(cfg *Config, ve *ValidationError) {
	// An empty soil endpoint is allowed; soil lookups then fail with SOURCE_ERROR.
	validateEndpoint("soil.endpoint", cfg.Soil.Endpoint, false, ve)
	validateTimeout("soil.timeout", cfg.Soil.Timeout, ve)
}

func validateWeather(cfg *Config, ve *ValidationError) {
	validateEndpoint("weather.endpoint", cfg.Weather.Endpoint, true, ve)
	validateTimeout("weather.timeout", cfg.Weather.Timeout, ve)
	switch cfg.Weather.Units {
	case "", "metric", "standard":
	default:
		ve.Add("weather.units %q is invalid (want metric or standard)", cfg.Weather.Units)
	}
	if cfg.Weather.Credential == "" {
		ve.Add("weather.credential must name a credential")
	}
}

func validateMarket(cfg *Config, ve *ValidationError) {
	m := cfg.Market
	switch m.Source {
	case MarketSourceAPI, "":
		validateEndpoint("market.endpoint", m.Endpoint, true, ve)
		validateTimeout("market.timeout", m.Timeout, ve)
		if m.Credential == "" {
			ve.Add("market.credential must name a credential")
		}
	case MarketSourceDataset:
		if m.Dataset.Path == "" {
			ve.Add("market.dataset.path is required when market.source is dataset")
		}
		if m.Dataset.IsSQLite() && m.Dataset.Table == "" {
			ve.Add("market.dataset.table is required for SQLite datasets")
		}
		if m.Dataset.Refresh != "" {
			if !validSchedule(m.Dataset.Refresh) {
				ve.Add("market.dataset.refresh %q is not a cron expression or duration", m.Dataset.Refresh)
			}
		}
	default:
		ve.Add("market.source %q is invalid (want api or dataset)", m.Source)
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	if cfg.MCP.Name == "" {
		ve.Add("mcp.name must not be empty")
	}
}

func validateEndpoint(field, endpoint string, required bool, ve *ValidationError) {
	if endpoint == "" {
		if required {
			ve.Add("%s must not be empty", field)
		}
		return
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("%s %q must be an http(s) URL", field, endpoint)
	}
}

func validateTimeout(field string, d time.Duration, ve *ValidationError) {
	if d < 0 {
		ve.Add("%s must be >= 0", field)
	}
}

// validSchedule accepts the same forms as the dataset refresher.
func validSchedule(s string) bool {
	if _, err := cron.ParseStandard(s); err == nil {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}
