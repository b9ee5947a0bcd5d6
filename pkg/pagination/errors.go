package pagination

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a page fetch failed.
type FailureKind string

const (
	// KindTransport covers connectivity, timeout and decoding failures.
	KindTransport FailureKind = "transport"

	// KindServer covers responses with a non-success status code.
	KindServer FailureKind = "server"
)

// FetchError is a failed page fetch as reported by a Source.
type FetchError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

// NewTransportError wraps a connectivity or IO failure.
func NewTransportError(err error) *FetchError {
	return &FetchError{Kind: KindTransport, Err: err}
}

// NewServerError reports a non-success response. err may be nil.
func NewServerError(statusCode int, err error) *FetchError {
	return &FetchError{Kind: KindServer, StatusCode: statusCode, Err: err}
}

// Error returns the message surfaced in Failed states.
func (e *FetchError) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("error code: %d", e.StatusCode)
	}
	if e.Err == nil || e.Err.Error() == "" {
		return "unknown error"
	}
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classify turns any error returned by a Source into a FetchError. Errors
// that are not FetchErrors are treated as transport failures.
func classify(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return NewTransportError(err)
}
