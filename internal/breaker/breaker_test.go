package breaker

import (
	"errors"
	"testing"
	"time"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

func testLogger() logging.Logger {
	return logging.New("test")
}

func TestCallSuccessResetsFailureStreak(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, Cooldown: time.Minute}, testLogger())

	if err := b.Call(func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected the first failing call to return an error")
	}
	if b.ConsecutiveFailures() != 1 {
		t.Fatalf("ConsecutiveFailures = %d; want 1", b.ConsecutiveFailures())
	}

	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected a successful call to succeed, got: %v", err)
	}
	if b.ConsecutiveFailures() != 0 {
		t.Fatalf("ConsecutiveFailures after success = %d; want 0", b.ConsecutiveFailures())
	}
}

func TestCallFailureIsWrappedAsUpstreamUnavailable(t *testing.T) {
	b := New("test", Config{FailureThreshold: 5, Cooldown: time.Minute}, testLogger())

	err := b.Call(func() error { return errors.New("upstream exploded") })
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected apperr.ErrUpstreamUnavailable, got: %v", err)
	}
}

func TestCallRejectsWithoutInvokingFnWhenOpen(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, Cooldown: time.Minute}, testLogger())

	if err := b.Call(func() error { return errors.New("first failure trips the breaker") }); err == nil {
		t.Fatalf("expected the tripping call to return an error")
	}

	invoked := false
	err := b.Call(func() error {
		invoked = true
		return nil
	})
	if err == nil {
		t.Fatalf("expected the breaker to reject the call while open")
	}
	if invoked {
		t.Fatalf("breaker invoked fn while open")
	}
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected apperr.ErrUpstreamUnavailable for an open-breaker rejection, got: %v", err)
	}
}

func TestStateReflectsConsecutiveFailures(t *testing.T) {
	b := New("test", Config{FailureThreshold: 5, Cooldown: time.Minute}, testLogger())
	if b.State() != StateClosed {
		t.Fatalf("fresh breaker state = %v; want closed", b.State())
	}

	_ = b.Call(func() error { return errors.New("boom") })
	if b.State() != StateClosed {
		t.Fatalf("state after one failure below threshold = %v; want closed", b.State())
	}
}

func TestRegistryGetIsIdempotentPerName(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 3, Cooldown: time.Minute}, testLogger())

	a := r.Get("llm")
	b := r.Get("llm")
	if a != b {
		t.Fatalf("Get(\"llm\") returned distinct breakers across calls")
	}

	other := r.Get("tts")
	if other == a {
		t.Fatalf("Get returned the same breaker for two different names")
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d; want 2", len(snap))
	}
}
