package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/generative-ai-go/genai"

	"kisaanmitra/internal/adapter/gemini"
	"kisaanmitra/internal/adapter/mcpserver"
	"kisaanmitra/internal/infra/config"
	"kisaanmitra/internal/infra/logger"
	"kisaanmitra/internal/infra/tracer"
)

func main() {
	cfgPath, args := splitArgs(os.Args[1:])

	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "serve":
		err = runServe(cfgPath)
	case "call":
		err = runCall(cfgPath, args[1:], os.Stdout)
	case "tools":
		err = runTools(cfgPath, args[1:], os.Stdout)
	case "advisors":
		err = runAdvisors(cfgPath, os.Stdout)
	case "doctor":
		err = runDoctor(cfgPath, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'kisaanmitra --help' for usage information.\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`kisaanmitra - soil, weather and mandi price tools for farmer advisory agents

USAGE:
    kisaanmitra [--config PATH] <command> [args]

COMMANDS:
    serve                   Serve the advisory tools over MCP on stdin/stdout
    call <tool> [JSON]      Run one tool and print its result
    call --gemini CALLS     Answer a JSON array of Gemini function calls
    tools [--format F]      Print tool schemas (F: json, gemini)
    advisors                Print the advisor identities and guidance
    doctor                  Check configuration, credentials and datasets
    help                    Show this help

FLAGS:
    --config PATH           Config file (default: config.yaml, or $KISAANMITRA_CONFIG)
    -h, --help              Show this help

CONFIGURATION:
    Settings are read from config.yaml and overridden by KISAANMITRA_* variables.
    Credentials are looked up by name at call time, environment first:
        OPENWEATHER_API_KEY     Weather lookups
        DATA_GOV_API_KEY        Mandi price lookups (market.source: api)
    Values prefixed "enc:" are decrypted with $KISAANMITRA_CONFIG_KEY.

EXAMPLES:
    kisaanmitra call get_weather '{"city":"Pune"}'
    kisaanmitra call get_market_prices '{"commodity":"Onion","state":"Maharashtra"}'
    kisaanmitra call --gemini '[{"name":"get_weather","args":{"city":"Pune"}}]'
    kisaanmitra tools --format gemini
    kisaanmitra --config /etc/kisaanmitra.yaml serve`)
}

// splitArgs removes --config from args and returns the config path.
func splitArgs(args []string) (string, []string) {
	path := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		default:
			rest = append(rest, args[i])
		}
	}
	if path == "" {
		path = os.Getenv("KISAANMITRA_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}
	return path, rest
}

// bootstrap loads config and starts logging and tracing. The returned
// cleanup flushes spans and closes the log output.
func bootstrap(ctx context.Context, cfgPath string, checks ...func(*config.Config) error) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, nil, nil, err
		}
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, nil, nil, fmt.Errorf("tracer: %w", err)
	}
	cleanup := func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
		logCloser()
	}
	return cfg, log, cleanup, nil
}

func runServe(cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, cleanup, err := bootstrap(ctx, cfgPath, checkStdoutFree)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.stop()

	srv, err := mcpserver.New(mcpserver.Options{
		Name:     cfg.MCP.Name,
		Version:  cfg.MCP.Version,
		Root:     a.advisors.Root(),
		Advisors: a.identities(),
	}, a.tools, log)
	if err != nil {
		return err
	}

	log.Info("serving mcp on stdio", "config", cfgPath, "market_source", cfg.Market.Source)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("mcp server stopped")
	return nil
}

// checkStdoutFree rejects settings that would write into the MCP stream.
func checkStdoutFree(cfg *config.Config) error {
	if cfg.Logger.Output == "stdout" {
		return fmt.Errorf("logger.output is stdout, which carries the MCP stream; use stderr or a file")
	}
	if cfg.Tracer.Enabled && cfg.Tracer.Exporter == "stdout" {
		return fmt.Errorf("tracer.exporter is stdout, which carries the MCP stream; use stderr or file")
	}
	return nil
}

func runCall(cfgPath string, args []string, out io.Writer) error {
	if len(args) > 0 && args[0] == "--gemini" {
		return runGeminiCalls(cfgPath, args[1:], out)
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: kisaanmitra call <tool> [JSON]")
	}
	params := "{}"
	if len(args) > 1 {
		params = args[1]
	}
	if !json.Valid([]byte(params)) {
		return fmt.Errorf("arguments are not valid JSON: %s", params)
	}

	ctx := context.Background()
	cfg, log, cleanup, err := bootstrap(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	res, err := a.tools.Call(ctx, args[0], json.RawMessage(params))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Content)
	if res.IsError {
		if res.IsRetryable {
			return fmt.Errorf("%s failed (retryable)", args[0])
		}
		return fmt.Errorf("%s failed", args[0])
	}
	return nil
}

// runGeminiCalls answers function calls as a Gemini turn would receive them.
func runGeminiCalls(cfgPath string, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf(`usage: kisaanmitra call --gemini '[{"name":"<tool>","args":{...}}]'`)
	}
	var calls []genai.FunctionCall
	if err := json.Unmarshal([]byte(args[0]), &calls); err != nil {
		return fmt.Errorf("function calls are not valid JSON: %w", err)
	}
	if len(calls) == 0 {
		return fmt.Errorf("no function calls given")
	}

	ctx := context.Background()
	cfg, log, cleanup, err := bootstrap(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	parts := gemini.NewDispatcher(a.tools, log).DispatchAll(ctx, calls)
	view := make([]map[string]any, 0, len(parts))
	failed := 0
	for _, p := range parts {
		fr, ok := p.(genai.FunctionResponse)
		if !ok {
			continue
		}
		if isErr, _ := fr.Response["is_error"].(bool); isErr {
			failed++
		}
		view = append(view, map[string]any{"name": fr.Name, "response": fr.Response})
	}
	if err := writeJSON(out, view); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(calls))
	}
	return nil
}

func runTools(cfgPath string, args []string, out io.Writer) error {
	format := "json"
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--format" && i+1 < len(args):
			format = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--format="):
			format = strings.TrimPrefix(args[i], "--format=")
		default:
			return fmt.Errorf("unexpected argument %q", args[i])
		}
	}

	ctx := context.Background()
	cfg, log, cleanup, err := bootstrap(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return writeJSON(out, a.tools.Schemas())
	case "gemini":
		decls, err := gemini.Declarations(a.tools.Schemas())
		if err != nil {
			return err
		}
		return writeJSON(out, declarationsView(decls))
	default:
		return fmt.Errorf("unknown format %q (want json or gemini)", format)
	}
}

func runAdvisors(cfgPath string, out io.Writer) error {
	ctx := context.Background()
	cfg, log, cleanup, err := bootstrap(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	return writeJSON(out, a.advisors.Identities())
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// declarationsView renders genai declarations with readable type names.
func declarationsView(t *genai.Tool) []map[string]any {
	out := make([]map[string]any, 0, len(t.FunctionDeclarations))
	for _, d := range t.FunctionDeclarations {
		m := map[string]any{"name": d.Name, "description": d.Description}
		if d.Parameters != nil {
			m["parameters"] = schemaView(d.Parameters)
		}
		out = append(out, m)
	}
	return out
}

func schemaView(s *genai.Schema) map[string]any {
	m := map[string]any{"type": strings.ToLower(strings.TrimPrefix(fmt.Sprint(s.Type), "Type"))}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if s.Items != nil {
		m["items"] = schemaView(s.Items)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = schemaView(p)
		}
		m["properties"] = props
	}
	return m
}
