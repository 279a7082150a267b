package tool

import (
	"errors"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/usecase/lookup"
)

// classifyToolError reports whether a failed call may succeed on retry.
// A LookupError decides by its kind; other errors are retryable only when
// they are timeouts, rate limits or an open circuit.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}

	var lerr *domain.LookupError
	if errors.As(err, &lerr) {
		return lerr.Kind.Retryable()
	}

	if lookup.IsTimeout(err) {
		return true
	}
	return errors.Is(err, domain.ErrRateLimit) || errors.Is(err, domain.ErrCircuitOpen)
}
