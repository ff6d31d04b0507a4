package domain

import (
	"errors"
	"time"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrLockHeld           = errors.New("lock held by another instance")

	// ErrStaleTransition is returned when a conditional status update matched no row:
	// the item is no longer in the status the caller expected.
	ErrStaleTransition = errors.New("stale status transition")
	ErrTerminalStatus  = errors.New("item already in terminal status")

	// Pipeline failure classes
	ErrPermanent            = errors.New("permanent failure")
	ErrAuthorizationExpired = errors.New("calendar authorization expired")
	ErrNoContent            = errors.New("no content to process")
	ErrUnsupportedAudio     = errors.New("unsupported audio format")
	ErrRateLimited          = errors.New("rate limited")

	// ErrDeferred marks work pushed back without counting as an attempt.
	ErrDeferred = errors.New("deferred")
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }
func (p *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// Permanent wraps err so errors.Is(err, ErrPermanent) reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermanent) {
		return err
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether a stage failure should consume the retry budget normally.
// Authorization, unsupported-input and explicitly permanent errors fail fast.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrAuthorizationExpired),
		errors.Is(err, ErrNoContent),
		errors.Is(err, ErrUnsupportedAudio):
		return false
	default:
		return true
	}
}

type deferredError struct {
	err   error
	after time.Duration
}

func (d *deferredError) Error() string { return d.err.Error() }
func (d *deferredError) Unwrap() error { return d.err }
func (d *deferredError) Is(target error) bool {
	return target == ErrDeferred
}

// Defer wraps err so the item is handed back after the given delay with its
// attempt count untouched.
func Defer(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &deferredError{err: err, after: after}
}

// DeferredFor returns the delay carried by a Defer error.
func DeferredFor(err error) (time.Duration, bool) {
	var d *deferredError
	if errors.As(err, &d) {
		return d.after, true
	}
	return 0, false
}
