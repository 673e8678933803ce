package odata

import (
	"errors"
	"fmt"
)

// ErrNoMetadata is returned by metadata-driven operations before Metadata was loaded.
var ErrNoMetadata = errors.New("odata: metadata not loaded")

// TransportError is a network, TLS or timeout failure; no HTTP status was received.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("odata: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TokenError means the service did not hand out a CSRF token. Status is zero
// when the fetch failed in transport, in which case Err is a *TransportError.
type TokenError struct {
	Status int
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("odata: csrf token fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("odata: csrf token not issued (status %d)", e.Status)
}

func (e *TokenError) Unwrap() error { return e.Err }

// NotFoundError is returned when the read preceding a write does not succeed.
type NotFoundError struct {
	EntitySet string
	Key       string
	Status    int
	Body      string
	Err       error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("odata: read %s('%s') failed: %v", e.EntitySet, e.Key, e.Err)
	}
	return fmt.Sprintf("odata: read %s('%s') returned status %d", e.EntitySet, e.Key, e.Status)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// WriteRejected is a conditional update the service did not accept. Status
// and Body are the raw response for diagnostics (412 means a stale ETag).
type WriteRejected struct {
	Status int
	Body   string
	Err    error
}

func (e *WriteRejected) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("odata: update failed: %v", e.Err)
	}
	return fmt.Sprintf("odata: update failed: %d - %s", e.Status, e.Body)
}

func (e *WriteRejected) Unwrap() error { return e.Err }

// StatusError is a read query answered with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("odata: %s failed: %d", e.Op, e.Status)
}

// IsTransport reports whether err was caused by a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
