package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/infra/tracer"
)

// Handler runs one tool call against its decoded arguments.
//
// It returns the body to send back and, when the call failed, the failure.
// A failed call with a non-nil body still sends the body so the caller gets
// the structured error; retryability is decided from the failure.
type Handler func(ctx context.Context, span trace.Span, args map[string]any) (any, error)

// Execute is the tool pipeline: decode arguments, start a span, run the
// handler and marshal its body.
func Execute(
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler Handler,
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	args, errResult := ParseParams(rawParams)
	if errResult != nil {
		tracer.RecordError(span, fmt.Errorf("%s", errResult.Content))
		return errResult, nil
	}

	body, err := handler(ctx, span, args)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Debug(spanName+" returned a failure", "error", err)
		return failureResult(body, err), nil
	}

	res, err := JSONResult(body)
	if err != nil {
		tracer.RecordError(span, err)
		return &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("failed to format response: %v", err),
		}, nil
	}
	tracer.SetOK(span)
	return res, nil
}

// failureResult flags a failed call. Without a body that marshals, the
// failure text becomes the content.
func failureResult(body any, err error) *domain.ToolResult {
	res := &domain.ToolResult{IsError: true, IsRetryable: classifyToolError(err)}
	if body != nil {
		if data, merr := json.MarshalIndent(body, "", "  "); merr == nil {
			res.Content = string(data)
			return res
		}
	}
	res.Content = err.Error()
	if res.IsRetryable {
		res.Content += " (transient error, may succeed on retry)"
	}
	return res
}

// ParseParams decodes rawParams as a JSON object. Empty params decode as nil.
// On failure it returns an error ToolResult ready to hand back.
func ParseParams(rawParams json.RawMessage) (map[string]any, *domain.ToolResult) {
	if len(rawParams) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(rawParams, &args); err != nil {
		return nil, &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("invalid params: %v", err),
		}
	}
	return args, nil
}

// JSONResult marshals v as indented JSON into a success ToolResult.
func JSONResult(v any) (*domain.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &domain.ToolResult{Content: string(data)}, nil
}
