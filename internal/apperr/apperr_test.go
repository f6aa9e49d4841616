package apperr

import (
	"errors"
	"testing"
)

func TestWrapSatisfiesErrorsIs(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrUpstreamUnavailable, cause)

	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("errors.Is(err, ErrUpstreamUnavailable) = false")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("errors.Is(err, ErrNotFound) = true; wrapped error carries a different kind")
	}
}

func TestWrapPreservesOriginalMessageAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrFatal, cause)

	if err.Error() != cause.Error() {
		t.Fatalf("Error() = %q; want %q", err.Error(), cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false; Unwrap chain broken")
	}
}

func TestWrapOfNilReturnsNil(t *testing.T) {
	if err := Wrap(ErrValidation, nil); err != nil {
		t.Fatalf("Wrap(kind, nil) = %v; want nil", err)
	}
}
