package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// RateLimitError is a 429 answer. Message is the server text with the
// error prefix removed.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Message
}

// StatusError is any other non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsCanceled reports whether err came from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTransport reports whether err is a network-level failure rather than an
// answer from the backend or a cancellation.
func IsTransport(err error) bool {
	if err == nil || IsCanceled(err) {
		return false
	}
	var rl *RateLimitError
	var se *StatusError
	if errors.As(err, &rl) || errors.As(err, &se) {
		return false
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var re *ReadError
	return errors.As(err, &re)
}

// ReadError wraps a failure while reading a streamed body.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "stream read: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }
