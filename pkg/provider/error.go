package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// InvocationError wraps provider failures with status metadata so callers
// can distinguish transient network/provider faults from hard failures.
type InvocationError struct {
	Provider  string
	Status    int
	Temporary bool
	Timeout   bool
	Err       error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return "invocation error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: invocation error (status=%d)", e.Provider, e.Status)
}

func (e *InvocationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		if invErr.Temporary || invErr.Timeout {
			return true
		}
		if invErr.Status == 429 || (invErr.Status >= 500 && invErr.Status <= 599) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether an error is a timeout. Timeouts are retried
// with a lower cap than generic transient errors: a provider that just
// timed out is unlikely to succeed on an immediate retry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.Timeout
	}
	return false
}
