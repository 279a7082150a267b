package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"kisaanmitra/internal/infra/config"
	"kisaanmitra/internal/usecase/advisory"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const datasetCheckTimeout = 30 * time.Second

// runDoctor executes all health checks and reports results.
func runDoctor(cfgPath string, out io.Writer) error {
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Weather credential", Fn: checkWeatherCredential},
		{Name: "Market source", Fn: checkMarketSource},
		{Name: "Soil source", Fn: checkSoilSource},
		{Name: "Refresh schedule", Fn: checkRefreshSchedule},
		{Name: "MCP stream", Fn: checkMCPStream},
	}

	fmt.Fprintln(out, "kisaanmitra doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file was found and loaded.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix the listed settings in " + cfgPath,
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults", cfgPath),
				Fix:     "Create config.yaml or pass --config",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkWeatherCredential(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	return credentialResult(cfg, firstNonEmpty(cfg.Weather.Credential, advisory.DefaultWeatherCredential), "weather")
}

func credentialResult(cfg *config.Config, name, what string) CheckResult {
	if _, ok := cfg.Credential(name); !ok {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not set; %s lookups will report MISSING_CREDENTIAL", name, what),
			Fix:     fmt.Sprintf("export %s=... or add it under credentials in config.yaml", name),
		}
	}
	return CheckResult{Status: StatusPass, Message: name + " is set"}
}

// checkMarketSource verifies the API credential or loads the dataset once.
func checkMarketSource(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if cfg.Market.Source != config.MarketSourceDataset {
		return credentialResult(cfg, firstNonEmpty(cfg.Market.Credential, advisory.DefaultMarketCredential), "market")
	}

	ctx, cancel := context.WithTimeout(context.Background(), datasetCheckTimeout)
	defer cancel()
	t, err := datasetLoader(cfg.Market.Dataset)(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("dataset %s: %v", cfg.Market.Dataset.Path, err),
			Fix:     "Check market.dataset.path (and market.dataset.table for SQLite)",
		}
	}
	if t.Len() == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("dataset %s has no rows", t.Name()),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("dataset %s: %d rows, columns %s", t.Name(), t.Len(), strings.Join(t.Columns(), ", ")),
	}
}

func checkSoilSource(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if cfg.Soil.Endpoint == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "soil.endpoint is empty; soil lookups will report SOURCE_ERROR",
			Fix:     "Set soil.endpoint to the soil property service URL",
		}
	}
	msg := "endpoint " + cfg.Soil.Endpoint
	if len(cfg.Soil.Coverage) > 0 {
		msg += "; coverage " + strings.Join(cfg.Soil.Coverage, ", ")
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

func checkRefreshSchedule(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if cfg.Market.Source != config.MarketSourceDataset || cfg.Market.Dataset.Refresh == "" {
		return CheckResult{Status: StatusPass, Message: "no scheduled reloads"}
	}
	sched, err := advisory.ParseSchedule(cfg.Market.Dataset.Refresh)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.Market.Dataset.Refresh, err),
			Fix:     `Use a cron expression ("0 */6 * * *") or a duration ("6h")`,
		}
	}
	next := sched.Next(time.Now())
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("next reload at %s", next.Format(time.RFC3339)),
	}
}

func checkMCPStream(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if err := checkStdoutFree(cfg); err != nil {
		return CheckResult{Status: StatusWarn, Message: err.Error(), Fix: "serve will refuse to start"}
	}
	return CheckResult{Status: StatusPass, Message: "stdout is free for the MCP stream"}
}
