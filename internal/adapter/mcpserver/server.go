// Package mcpserver exposes the advisory tools and advisor guidance over the
// Model Context Protocol, so any MCP-capable reasoning engine can call them.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
)

// Catalog is the set of callable tools served. *tool.Registry implements it.
type Catalog interface {
	Schemas() []domain.ToolSchema
	Call(ctx context.Context, name string, params json.RawMessage) (*domain.ToolResult, error)
}

// Options identifies the server to clients.
type Options struct {
	Name    string
	Version string
	// Root is the coordinator identity; its instruction becomes the server instructions.
	Root domain.AdvisorIdentity
	// Advisors are published as prompts carrying their guidance text.
	Advisors []domain.AdvisorIdentity
}

// Server wraps an MCP server bound to a tool catalog.
type Server struct {
	mcp     *server.MCPServer
	catalog Catalog
	logger  *slog.Logger
}

// New builds the MCP server and registers every catalog tool and advisor prompt.
func New(opts Options, catalog Catalog, logger *slog.Logger) (*Server, error) {
	srvOpts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	}
	if opts.Root.Instruction != "" {
		srvOpts = append(srvOpts, server.WithInstructions(opts.Root.Instruction))
	}

	s := &Server{
		mcp:     server.NewMCPServer(opts.Name, opts.Version, srvOpts...),
		catalog: catalog,
		logger:  logger,
	}

	for _, schema := range catalog.Schemas() {
		if len(schema.Parameters) == 0 {
			return nil, fmt.Errorf("tool %s has no input schema", schema.Name)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters), s.handleTool)
	}
	for _, id := range opts.Advisors {
		s.mcp.AddPrompt(mcp.NewPrompt(id.Name, mcp.WithPromptDescription(id.Description)), guidancePrompt(id))
	}

	logger.Info("mcp server ready",
		"name", opts.Name,
		"tools", len(catalog.Schemas()),
		"prompts", len(opts.Advisors),
	)
	return s, nil
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over the given streams until ctx is cancelled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handleTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "mcp.call_tool")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("tool.name", req.Params.Name))

	args := req.GetArguments()
	if args == nil {
		args = map[string]any{}
	}
	params, err := json.Marshal(args)
	if err != nil {
		tracer.RecordError(span, err)
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	res, err := s.catalog.Call(ctx, req.Params.Name, params)
	if err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("mcp tool call failed", "tool", req.Params.Name, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Debug("mcp tool call",
		"tool", req.Params.Name,
		"is_error", res.IsError,
		"retryable", res.IsRetryable,
	)
	if res.IsError {
		return mcp.NewToolResultError(res.Content), nil
	}
	tracer.SetOK(span)
	return mcp.NewToolResultText(res.Content), nil
}

func guidancePrompt(id domain.AdvisorIdentity) server.PromptHandlerFunc {
	return func(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return mcp.NewGetPromptResult(id.Description, []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(id.Instruction)),
		}), nil
	}
}
