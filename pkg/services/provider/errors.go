package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrAuth        ErrorKind = "auth"
	ErrRateLimit   ErrorKind = "rate_limit"
	ErrUnavailable ErrorKind = "unavailable"
	ErrMalformed   ErrorKind = "malformed"
)

// Error classifies backend failures so retry logic can tell transient
// conditions from permanent ones.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

// IsKind reports whether err carries the given provider error kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// retryWithBackoff retries transient failures (rate limiting, upstream
// unavailability) with exponential backoff. Auth failures and malformed
// responses are returned immediately.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsKind(lastErr, ErrRateLimit) && !IsKind(lastErr, ErrUnavailable) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
