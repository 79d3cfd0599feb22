package meli

import "fmt"

// ErrorKind classifies API failures so callers can decide retry vs
// abort on structure instead of matching message text.
type ErrorKind string

const (
	// KindClientError is a non-retryable 4xx response (except 429).
	KindClientError ErrorKind = "client_error"
	// KindRateLimited means 429 responses persisted through all retries.
	KindRateLimited ErrorKind = "rate_limited"
	// KindRetriesExhausted means 5xx/transport failures persisted
	// through all retries.
	KindRetriesExhausted ErrorKind = "retries_exhausted"
	// KindAuth means no usable access or refresh token.
	KindAuth ErrorKind = "authentication"
	// KindTimeout means the request context expired.
	KindTimeout ErrorKind = "timeout"
)

// Error is a structured marketplace API error.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("meli: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("meli: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure kind is worth retrying at a
// higher level (e.g. keeping a queued notification for another drain).
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindRetriesExhausted || e.Kind == KindTimeout
}

// KindOf extracts the error kind, or "" for non-API errors.
func KindOf(err error) ErrorKind {
	if apiErr, ok := err.(*Error); ok {
		return apiErr.Kind
	}
	return ""
}
