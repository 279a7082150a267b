package domain

import "fmt"

// ErrorKind classifies why a lookup failed.
type ErrorKind string

const (
	KindMissingParameter  ErrorKind = "MISSING_PARAMETER"
	KindMissingCredential ErrorKind = "MISSING_CREDENTIAL"
	KindLocationNotFound  ErrorKind = "LOCATION_NOT_FOUND"
	KindTimeout           ErrorKind = "TIMEOUT"
	KindTransport         ErrorKind = "TRANSPORT"
	KindParse             ErrorKind = "PARSE"
	KindNoData            ErrorKind = "NO_DATA"
	KindSourceError       ErrorKind = "SOURCE_ERROR"

	// KindEmpty is only produced by the location resolver when the geocoder
	// returned no candidates. Adapters surface it as the Cause of LOCATION_NOT_FOUND.
	KindEmpty ErrorKind = "EMPTY"
)

// Retryable reports whether a call failing with this kind may succeed if repeated.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindTransport
}

// LookupError is the error half of a ResultEnvelope.
type LookupError struct {
	Kind            ErrorKind `json:"kind"`
	Cause           ErrorKind `json:"cause,omitempty"`
	Hint            string    `json:"hint"`
	UpstreamStatus  int       `json:"upstream_status,omitempty"`
	UpstreamMessage string    `json:"upstream_message,omitempty"`

	Err error `json:"-"`
}

// NewLookupError creates a LookupError with a formatted hint.
func NewLookupError(kind ErrorKind, format string, args ...any) *LookupError {
	return &LookupError{Kind: kind, Hint: fmt.Sprintf(format, args...)}
}

func (e *LookupError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Cause, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Hint)
}

func (e *LookupError) Unwrap() error { return e.Err }

// WithErr attaches the underlying error and returns e.
func (e *LookupError) WithErr(err error) *LookupError {
	e.Err = err
	return e
}
