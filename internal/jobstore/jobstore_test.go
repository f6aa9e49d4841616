package jobstore

import (
	"testing"
	"time"

	"eduvid/internal/logging"
	"eduvid/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(Config{Retention: time.Hour}, logging.New("test"))
}

func TestCreateAndGet(t *testing.T) {
	s := testStore(t)
	job := s.Create(types.SourceRef{Path: "doc.txt", DetectedType: "txt"}, types.PriorityHigh)

	if job.Status != types.StatusPending {
		t.Fatalf("new job status = %v; want pending", job.Status)
	}

	got, err := s.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("Get returned wrong job: %q != %q", got.ID, job.ID)
	}
}

func TestGetUnknownIDReturnsNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get("does-not-exist"); err == nil {
		t.Fatalf("expected an error for an unknown job id")
	}
}

func TestUpdateMutatesLiveJob(t *testing.T) {
	s := testStore(t)
	job := s.Create(types.SourceRef{}, types.PriorityNormal)

	if err := s.Update(job.ID, func(j *types.Job) {
		j.Status = types.StatusProcessing
		j.Progress = 42
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := s.Get(job.ID)
	if got.Status != types.StatusProcessing || got.Progress != 42 {
		t.Fatalf("Update did not persist: status=%v progress=%d", got.Status, got.Progress)
	}
}

func TestAddLogTrimsRingBuffer(t *testing.T) {
	s := testStore(t)
	job := s.Create(types.SourceRef{}, types.PriorityNormal)

	for i := 0; i < maxLogsPerJob+10; i++ {
		s.AddLog(job.ID, "line")
	}

	got, _ := s.Get(job.ID)
	if len(got.Logs) != maxLogsPerJob {
		t.Fatalf("Logs len = %d; want %d", len(got.Logs), maxLogsPerJob)
	}
}

func TestCancelOnlyAffectsNonTerminalJobs(t *testing.T) {
	s := testStore(t)
	job := s.Create(types.SourceRef{}, types.PriorityNormal)

	if err := s.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got, _ := s.Get(job.ID)
	if !got.Cancelled() {
		t.Fatalf("job should be flagged cancelled")
	}

	done := s.Create(types.SourceRef{}, types.PriorityNormal)
	_ = s.Update(done.ID, func(j *types.Job) {
		j.Status = types.StatusCompleted
	})
	if err := s.Cancel(done.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got, _ = s.Get(done.ID)
	if got.Cancelled() {
		t.Fatalf("terminal job should not be flagged cancelled")
	}
}

func TestCleanupExpiredRemovesOldTerminalJobs(t *testing.T) {
	s := testStore(t)
	job := s.Create(types.SourceRef{}, types.PriorityNormal)

	past := time.Now().Add(-2 * time.Hour)
	_ = s.Update(job.ID, func(j *types.Job) {
		j.Status = types.StatusCompleted
		j.CompletedAt = &past
	})

	removed := s.CleanupExpired()
	if removed != 1 {
		t.Fatalf("CleanupExpired removed %d jobs; want 1", removed)
	}
	if _, err := s.Get(job.ID); err == nil {
		t.Fatalf("expected job to be gone after sweep")
	}
}

func TestCleanupExpiredKeepsRecentTerminalJobs(t *testing.T) {
	s := testStore(t)
	job := s.Create(types.SourceRef{}, types.PriorityNormal)

	now := time.Now()
	_ = s.Update(job.ID, func(j *types.Job) {
		j.Status = types.StatusCompleted
		j.CompletedAt = &now
	})

	if removed := s.CleanupExpired(); removed != 0 {
		t.Fatalf("CleanupExpired removed a recent job: %d", removed)
	}
}
