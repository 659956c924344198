package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRateLimited means the upstream or the local token bucket refused the
	// call. The ladder moves to the next provider without waiting.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrEmptyResult means the upstream answered without rows for the span.
	ErrEmptyResult = errors.New("provider returned no candles")
	// ErrCircuitOpen means the provider is skipped until its cooldown elapses.
	ErrCircuitOpen = errors.New("provider circuit open")
	// ErrSlotUnavailable means the caller gave up while queued for one of the
	// provider's concurrency slots. The upstream was never called.
	ErrSlotUnavailable = errors.New("provider slot unavailable")
)

// TransientError wraps timeouts, transport failures and 5xx answers.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func transient(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Provider: provider, Err: err}
}

// IsTransient reports whether err is a TransientError or a context deadline.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// failureReason labels a failed call for logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrEmptyResult):
		return "empty"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrSlotUnavailable):
		return "queued"
	case IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
