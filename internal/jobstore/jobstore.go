// Package jobstore is the in-process Job Store of spec.md §4.5: a
// thread-safe map of Job keyed by id, with per-id write serialization, a
// bounded ring-buffer log per job (grounded on
// _examples/injaneity-brainbot-464/orchestrator_service/state.Manager's
// AddLog, generalized from one process-wide log to one ring buffer per
// job), periodic JSON snapshots scheduled with github.com/robfig/cron/v3
// (the same scheduler
// _examples/MimeLyc-contextual-sub-translator/internal/service uses to
// drive its own recurring run), and a retention sweep.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
	"eduvid/internal/types"
)

const maxLogsPerJob = 50

// perJobLock serializes every mutation to one Job so concurrent scene
// workers updating the same job never interleave writes.
type perJobLock struct {
	mu sync.Mutex
}

// Store is the process-wide Job Store.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*types.Job
	locks     map[string]*perJobLock
	log       logging.Logger
	path      string
	retention time.Duration
	assetDir  string
	videoDir  string

	cron *cron.Cron
}

// Config carries the store's persistence, retention and on-disk asset
// location knobs.
type Config struct {
	SnapshotPath     string
	SnapshotInterval time.Duration
	Retention        time.Duration
	AssetDir         string
	VideoDir         string
}

// New builds an empty Store. Load should be called once at startup to
// restore a prior snapshot before the store is put in service.
func New(cfg Config, log logging.Logger) *Store {
	return &Store{
		jobs:      make(map[string]*types.Job),
		locks:     make(map[string]*perJobLock),
		log:       log.With().Str("component", "jobstore").Logger(),
		path:      cfg.SnapshotPath,
		retention: cfg.Retention,
		assetDir:  cfg.AssetDir,
		videoDir:  cfg.VideoDir,
	}
}

// Create inserts a new pending Job for a freshly uploaded source and
// returns its generated id.
func (s *Store) Create(source types.SourceRef, priority types.Priority) *types.Job {
	now := time.Now()
	job := &types.Job{
		ID:        uuid.NewString(),
		Status:    types.StatusPending,
		Phase:     types.PhaseUpload,
		Priority:  priority,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	lock := &perJobLock{}
	lock.mu.Lock()

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.locks[job.ID] = lock
	s.mu.Unlock()

	clone := job.Clone()
	lock.mu.Unlock()
	return clone
}

// lockFor returns the per-job mutex, creating one if the job somehow
// predates it (defensive; Create always registers one).
func (s *Store) lockFor(id string) *perJobLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &perJobLock{}
		s.locks[id] = l
	}
	return l
}

// Update runs mutate against the live Job under its per-id lock and
// bumps UpdatedAt. Returns apperr.ErrNotFound if id is unknown.
func (s *Store) Update(id string, mutate func(job *types.Job)) error {
	l := s.lockFor(id)
	l.mu.Lock()
	defer l.mu.Unlock()

	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return apperr.Wrap(apperr.ErrNotFound, apperr.ErrNotFound)
	}

	mutate(job)
	job.UpdatedAt = time.Now()
	return nil
}

// AddLog appends a ring-buffered log line to job id, keeping only the
// newest maxLogsPerJob entries once the buffer overflows.
func (s *Store) AddLog(id, message string) {
	_ = s.Update(id, func(job *types.Job) {
		job.Logs = append(job.Logs, types.LogEntry{Timestamp: time.Now(), Message: message})
		if len(job.Logs) > maxLogsPerJob {
			job.Logs = job.Logs[len(job.Logs)-maxLogsPerJob:]
		}
	})
}

// Get returns a defensive copy of the Job, or apperr.ErrNotFound. It takes
// the job's per-id lock before cloning so a concurrent Update can never be
// observed half-applied.
func (s *Store) Get(id string) (*types.Job, error) {
	l := s.lockFor(id)
	l.mu.Lock()
	defer l.mu.Unlock()

	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, apperr.ErrNotFound)
	}
	return job.Clone(), nil
}

// List returns every job, newest first. Each job is fetched through Get so
// every clone is taken under that job's own per-id lock.
func (s *Store) List() []*types.Job {
	s.mu.RLock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]*types.Job, 0, len(ids))
	for _, id := range ids {
		if j, err := s.Get(id); err == nil {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// ListActive returns every non-terminal job.
func (s *Store) ListActive() []*types.Job {
	all := s.List()
	out := all[:0]
	for _, j := range all {
		if !j.Status.IsTerminal() {
			out = append(out, j)
		}
	}
	return out
}

// Cancel marks job id cancelled. It is legal at any phase and only sets
// the flag, which the orchestrator checks between phases; interrupting
// in-flight calls is done by Orchestrator.Cancel, which also cancels the
// running job's context.
func (s *Store) Cancel(id string) error {
	return s.Update(id, func(job *types.Job) {
		if job.Status.IsTerminal() {
			return
		}
		job.MarkCancelled()
	})
}

// Delete removes a job permanently. Used by the retention sweep.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	delete(s.locks, id)
	s.mu.Unlock()
}

// CleanupExpired deletes every terminal job (including cancelled ones,
// per the same retention cutoff as other terminal states) whose
// CompletedAt is older than the store's retention window, along with its
// on-disk assets and rendered video.
func (s *Store) CleanupExpired() int {
	cutoff := time.Now().Add(-s.retention)
	var expired []string

	for _, j := range s.List() {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			expired = append(expired, j.ID)
		}
	}

	for _, id := range expired {
		s.removeJobAssets(id)
		s.Delete(id)
	}
	if len(expired) > 0 {
		s.log.Info().Int("count", len(expired)).Msg("swept expired jobs")
	}
	return len(expired)
}

// removeJobAssets deletes a swept job's on-disk footprint: its rendered
// scene assets under assetDir/<id> and its composed video(s) under
// videoDir/<id> and videoDir/<id>.mp4.
func (s *Store) removeJobAssets(id string) {
	if s.assetDir != "" {
		if err := os.RemoveAll(filepath.Join(s.assetDir, id)); err != nil {
			s.log.Warn().Err(err).Str("job_id", id).Msg("could not remove job asset directory")
		}
	}
	if s.videoDir == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(s.videoDir, id)); err != nil {
		s.log.Warn().Err(err).Str("job_id", id).Msg("could not remove job video work directory")
	}
	if err := os.Remove(filepath.Join(s.videoDir, fmt.Sprintf("%s.mp4", id))); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("job_id", id).Msg("could not remove job video file")
	}
}

// snapshot is the on-disk representation written by Save and read by
// Load.
type snapshot struct {
	Jobs []*types.Job `json:"jobs"`
}

// Save writes every job to the configured snapshot path as JSON.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	snap := snapshot{Jobs: s.List()}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.ErrFatal, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load restores jobs from the configured snapshot path, if present.
// Missing file is not an error: a fresh store starts empty.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return apperr.Wrap(apperr.ErrFatal, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range snap.Jobs {
		s.jobs[j.ID] = j
		s.locks[j.ID] = &perJobLock{}
	}
	s.log.Info().Int("count", len(snap.Jobs)).Msg("restored jobs from snapshot")
	return nil
}

// StartScheduledSnapshots registers a cron job that saves the store on
// interval and returns a stop function. cron/v3's "@every" schedule does
// not run more often than once a second, so interval is rounded to the
// nearest whole second.
func (s *Store) StartScheduledSnapshots(interval time.Duration) func() {
	s.cron = cron.New()
	spec := "@every " + interval.Round(time.Second).String()
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.Save(); err != nil {
			s.log.Warn().Err(err).Msg("periodic snapshot failed")
		}
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to schedule snapshot job")
		return func() {}
	}
	s.cron.Start()
	return func() {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// StartRetentionSweep registers an hourly cron job that sweeps expired
// jobs and returns a stop function.
func (s *Store) StartRetentionSweep() func() {
	c := cron.New()
	_, err := c.AddFunc("@every 1h", func() {
		s.CleanupExpired()
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to schedule retention sweep")
		return func() {}
	}
	c.Start()
	return func() {
		ctx := c.Stop()
		<-ctx.Done()
	}
}

// Shutdown saves a final snapshot. Call once, after the orchestrator has
// stopped accepting new work.
func (s *Store) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	return s.Save()
}
