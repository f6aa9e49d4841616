package governor

import (
	"context"
	"testing"
	"time"

	"eduvid/internal/logging"
)

func testLogger() logging.Logger {
	return logging.New("test")
}

func TestAcquireReleaseTracksInUse(t *testing.T) {
	g := New(Config{MaxJobs: 2, MaxTTS: 1, MaxVisual: 1, CPUSoftCeiling: 100, MemSoftCeiling: 100, MemCleanupCeiling: 100}, nil, testLogger())

	permit, err := g.Acquire(context.Background(), KindJob)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	snap := g.SnapshotSlots()
	if snap.InUse[KindJob] != 1 {
		t.Fatalf("InUse[job] = %d; want 1", snap.InUse[KindJob])
	}
	if snap.Available[KindJob] != 1 {
		t.Fatalf("Available[job] = %d; want 1", snap.Available[KindJob])
	}

	permit.Release()

	snap = g.SnapshotSlots()
	if snap.InUse[KindJob] != 0 {
		t.Fatalf("InUse[job] after release = %d; want 0", snap.InUse[KindJob])
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New(Config{MaxJobs: 1, MaxTTS: 1, MaxVisual: 1, CPUSoftCeiling: 100, MemSoftCeiling: 100, MemCleanupCeiling: 100}, nil, testLogger())

	permit, err := g.Acquire(context.Background(), KindJob)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	permit.Release()
	permit.Release() // must not double-release the semaphore or double-decrement the counter

	snap := g.SnapshotSlots()
	if snap.InUse[KindJob] != 0 {
		t.Fatalf("InUse[job] after double release = %d; want 0", snap.InUse[KindJob])
	}

	// The slot must still be acquirable exactly once more, proving the
	// semaphore wasn't released twice (which would let two acquires in).
	p2, err := g.Acquire(context.Background(), KindJob)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	defer p2.Release()
}

func TestTryAcquireTimesOutWhenExhausted(t *testing.T) {
	g := New(Config{MaxJobs: 1, MaxTTS: 1, MaxVisual: 1, CPUSoftCeiling: 100, MemSoftCeiling: 100, MemCleanupCeiling: 100}, nil, testLogger())

	permit, err := g.Acquire(context.Background(), KindJob)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer permit.Release()

	_, err = g.TryAcquire(context.Background(), KindJob, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected TryAcquire to fail once the single job slot is held")
	}
}
