// Package apperr enumerates the error taxonomy of the pipeline by kind,
// not by concrete type, so callers branch on errors.Is instead of string
// matching upstream error messages.
package apperr

import "errors"

var (
	// ErrValidation marks an input that fails a documented constraint
	// (size, format, scene bounds). Never reaches the orchestrator.
	ErrValidation = errors.New("validation error")

	// ErrUpstreamUnavailable marks a call rejected by an open circuit
	// breaker, or an upstream call that failed and exhausted retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrResourceExhausted marks a try_acquire that timed out waiting for
	// a Resource Governor slot. Not a terminal job failure.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrCancelled marks a job or scene that observed cancellation.
	ErrCancelled = errors.New("cancelled")

	// ErrFatal marks a job-terminating error: compose failure, corrupted
	// job record, or "zero scenes produced both assets".
	ErrFatal = errors.New("fatal error")

	// ErrNotFound marks a lookup against the Job Store that found nothing.
	ErrNotFound = errors.New("not found")
)

// Wrap attaches kind to err so errors.Is(wrapped, kind) succeeds while the
// original message and chain are preserved via %w-wrapping semantics.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: kind, err: err}
}

type wrapped struct {
	kind error
	err  error
}

func (w *wrapped) Error() string { return w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) Is(target error) bool {
	return target == w.kind
}
