package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"

	"kisaanmitra/internal/domain"
)

// classifyTransport maps a fetch error to TIMEOUT or TRANSPORT.
func classifyTransport(source string, err error) *domain.LookupError {
	if IsTimeout(err) {
		return &domain.LookupError{
			Kind: domain.KindTimeout,
			Hint: fmt.Sprintf("%s did not answer in time; try again later", source),
			Err:  err,
		}
	}
	lerr := &domain.LookupError{
		Kind: domain.KindTransport,
		Hint: fmt.Sprintf("could not reach %s; try again later", source),
		Err:  err,
	}
	if errors.Is(err, domain.ErrCircuitOpen) {
		lerr.Hint = fmt.Sprintf("%s is failing repeatedly and is temporarily paused; try again later", source)
	}
	return lerr
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func asLookupError(err error) (*domain.LookupError, bool) {
	var lerr *domain.LookupError
	if errors.As(err, &lerr) {
		return lerr, true
	}
	return nil, false
}
