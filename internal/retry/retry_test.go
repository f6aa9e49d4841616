package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

func testLogger() logging.Logger {
	return logging.New("test")
}

func TestBackoffScheduleLengthMatchesAttemptsMinusOne(t *testing.T) {
	p := New("test", Config{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, Multiplier: 2}, nil, testLogger())
	sched := p.backoffSchedule()
	if len(sched) != 3 {
		t.Fatalf("backoffSchedule len = %d; want 3", len(sched))
	}
}

func TestBackoffScheduleIsEmptyForSingleAttempt(t *testing.T) {
	p := New("test", Config{MaxAttempts: 1, InitialDelay: 10 * time.Millisecond, Multiplier: 2}, nil, testLogger())
	if sched := p.backoffSchedule(); len(sched) != 0 {
		t.Fatalf("backoffSchedule len = %d; want 0 for a single attempt", len(sched))
	}
}

func TestBackoffScheduleGrowsWithMultiplier(t *testing.T) {
	p := New("test", Config{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, Multiplier: 2}, nil, testLogger())
	sched := p.backoffSchedule()
	for i := 1; i < len(sched); i++ {
		if sched[i] <= sched[i-1] {
			t.Fatalf("backoffSchedule[%d] = %v is not greater than backoffSchedule[%d] = %v", i, sched[i], i-1, sched[i-1])
		}
	}
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	p := New("test", Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1}, nil, testLogger())

	attempts := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d; want 3", attempts)
	}
}

func TestRunExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	p := New("test", Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1}, nil, testLogger())

	attempts := 0
	wantErr := errors.New("always fails")
	err := p.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	if err == nil {
		t.Fatalf("expected Run to return an error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d; want 3", attempts)
	}
}

func TestRunNeverRetriesCancellation(t *testing.T) {
	p := New("test", Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1}, nil, testLogger())

	attempts := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled to propagate, got: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d; want 1 (context.Canceled must not be retried)", attempts)
	}
}

func TestRunNeverRetriesValidationErrors(t *testing.T) {
	p := New("test", Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1}, nil, testLogger())

	attempts := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return apperr.ErrValidation
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected apperr.ErrValidation to propagate, got: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d; want 1 (validation errors must not be retried)", attempts)
	}
}

func TestRunHonorsCustomRetryablePredicate(t *testing.T) {
	permanent := errors.New("permanent")
	retryable := func(err error) bool { return !errors.Is(err, permanent) }
	p := New("test", Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1}, retryable, testLogger())

	attempts := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error to propagate, got: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d; want 1 (a non-retryable error per the predicate must stop immediately)", attempts)
	}
}
