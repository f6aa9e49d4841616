// Package orchestrator drives the Job state machine of spec.md §4.6: it
// pulls submissions off a priority queue, walks each job through
// upload -> script -> audio/visual -> compose -> done, and fans the
// per-scene audio and visual work out concurrently the way
// _examples/other_examples/Bobarinn-video-genie's Worker runs its visual
// and audio pipelines concurrently with golang.org/x/sync/errgroup,
// converging only at the step that needs both outputs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"eduvid/internal/apperr"
	"eduvid/internal/breaker"
	"eduvid/internal/cache"
	"eduvid/internal/compose"
	"eduvid/internal/docextract"
	"eduvid/internal/governor"
	"eduvid/internal/jobstore"
	"eduvid/internal/llmclient"
	"eduvid/internal/logging"
	"eduvid/internal/retry"
	"eduvid/internal/ttsclient"
	"eduvid/internal/types"
	"eduvid/internal/visual"
)

// scenePhaseWeight is the fraction of a job's progress bar given to
// per-scene audio+visual work; the remaining 1-scenePhaseWeight is
// reserved for script generation and compose.
const (
	scriptPhaseWeight = 0.10
	scenePhaseWeight  = 0.80
	// the remaining 0.10 is reserved for compose, applied implicitly when
	// a finished job's Progress is set to 100 directly.
)

// Orchestrator wires every pipeline component and runs the job workers.
type Orchestrator struct {
	store    *jobstore.Store
	queue    *PriorityQueue
	gov      *governor.Governor
	breakers *breaker.Registry

	llm      *llmclient.Client
	tts      *ttsclient.Client
	router   *visual.Router
	composer *compose.Composer
	cache    *cache.Cache

	ttsRetry *retry.Policy

	log logging.Logger

	workers int
	stop    chan struct{}

	cancelMu   sync.Mutex
	jobCancels map[string]context.CancelFunc

	ttsHealthy atomic.Bool
}

// Deps bundles the components an Orchestrator needs, constructed once at
// startup by cmd/server.
type Deps struct {
	Store    *jobstore.Store
	Governor *governor.Governor
	Breakers *breaker.Registry
	LLM      *llmclient.Client
	TTS      *ttsclient.Client
	Visual   *visual.Router
	Composer *compose.Composer
	Cache    *cache.Cache
	RetryCfg retry.Config
	Workers  int
}

// New builds an Orchestrator ready to Start.
func New(d Deps, log logging.Logger) *Orchestrator {
	workers := d.Workers
	if workers <= 0 {
		workers = 3
	}
	o := &Orchestrator{
		store:      d.Store,
		queue:      NewPriorityQueue(),
		gov:        d.Governor,
		breakers:   d.Breakers,
		llm:        d.LLM,
		tts:        d.TTS,
		router:     d.Visual,
		composer:   d.Composer,
		cache:      d.Cache,
		ttsRetry:   retry.New("tts", d.RetryCfg, func(error) bool { return true }, log),
		log:        log.With().Str("component", "orchestrator").Logger(),
		workers:    workers,
		stop:       make(chan struct{}),
		jobCancels: make(map[string]context.CancelFunc),
	}
	o.ttsHealthy.Store(true)
	return o
}

// Submit validates and extracts the uploaded document at sourcePath,
// creates a Job, and enqueues it for processing.
func (o *Orchestrator) Submit(sourcePath string, uploadCfg docextract.Config, priority types.Priority) (*types.Job, error) {
	if err := docextract.Validate(sourcePath, uploadCfg); err != nil {
		return nil, err
	}

	result, err := docextract.Extract(sourcePath)
	if err != nil {
		return nil, err
	}

	job := o.store.Create(types.SourceRef{Path: sourcePath, DetectedType: result.DetectedType}, priority)
	_ = o.store.Update(job.ID, func(j *types.Job) {
		j.Script = &types.Script{Language: result.Language}
	})
	o.store.AddLog(job.ID, "document extracted, queued for script generation")

	o.queue.Push(job.ID, priority)
	return job, nil
}

// Cancel flags a job cancelled and, if a worker is actively processing it,
// cancels that worker's job-scoped context so in-flight external calls
// (governor waits, HTTP requests to TTS/visual providers, the LLM call)
// abort immediately instead of running to completion.
func (o *Orchestrator) Cancel(jobID string) error {
	if err := o.store.Cancel(jobID); err != nil {
		return err
	}
	o.cancelMu.Lock()
	cancel, ok := o.jobCancels[jobID]
	o.cancelMu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (o *Orchestrator) registerJobCancel(jobID string, cancel context.CancelFunc) {
	o.cancelMu.Lock()
	o.jobCancels[jobID] = cancel
	o.cancelMu.Unlock()
}

func (o *Orchestrator) unregisterJobCancel(jobID string) {
	o.cancelMu.Lock()
	delete(o.jobCancels, jobID)
	o.cancelMu.Unlock()
}

// StatusOf returns a point-in-time snapshot of one job.
func (o *Orchestrator) StatusOf(jobID string) (*types.Job, error) {
	return o.store.Get(jobID)
}

// List returns every job, newest first.
func (o *Orchestrator) List() []*types.Job {
	return o.store.List()
}

// Start launches the worker pool. Call Stop to shut it down.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.workers; i++ {
		go o.runWorker(ctx, i)
	}
}

// Stop closes the queue, waking every blocked worker.
func (o *Orchestrator) Stop() {
	close(o.stop)
	o.queue.Close()
}

func (o *Orchestrator) runWorker(ctx context.Context, id int) {
	log := o.log.With().Int("worker", id).Logger()
	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok := o.queue.Pop()
		if !ok {
			return
		}

		permit, err := o.gov.Acquire(ctx, governor.KindJob)
		if err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("could not acquire job slot, requeueing")
			_ = o.store.Update(jobID, func(j *types.Job) {})
			o.queue.Push(jobID, types.PriorityNormal)
			continue
		}

		func() {
			defer permit.Release()
			if err := o.processJob(ctx, jobID); err != nil {
				log.Error().Err(err).Str("job_id", jobID).Msg("job processing failed")
			}
		}()
	}
}

// processJob runs one job through the full state machine. It runs under a
// job-scoped context derived from ctx: Cancel(jobID) cancels that context
// directly, so every suspension point downstream (governor acquire, cache
// compute, the LLM/TTS/visual HTTP calls) is aborted immediately rather
// than waiting for the next polled check.
func (o *Orchestrator) processJob(ctx context.Context, jobID string) error {
	job, err := o.store.Get(jobID)
	if err != nil {
		return err
	}
	if job.Cancelled() {
		return o.finishCancelled(jobID)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	o.registerJobCancel(jobID, cancel)
	defer func() {
		o.unregisterJobCancel(jobID)
		cancel()
	}()

	_ = o.store.Update(jobID, func(j *types.Job) {
		j.Status = types.StatusProcessing
		j.Phase = types.PhaseScript
	})

	o.preflightHealthCheck(jobCtx, jobID)

	script, err := o.generateScript(jobCtx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return o.finishCancelled(jobID)
		}
		return o.finishFailed(jobID, fmt.Errorf("script generation: %w", err))
	}
	if refreshed, err := o.store.Get(jobID); err == nil && refreshed.Cancelled() {
		return o.finishCancelled(jobID)
	}

	_ = o.store.Update(jobID, func(j *types.Job) {
		j.Script = script
		j.Phase = types.PhaseAudio
		j.Progress = int(scriptPhaseWeight * 100)
	})

	if err := o.renderScenes(jobCtx, jobID, script); err != nil {
		if errors.Is(err, context.Canceled) {
			return o.finishCancelled(jobID)
		}
		return o.finishFailed(jobID, fmt.Errorf("scene rendering: %w", err))
	}

	current, err := o.store.Get(jobID)
	if err != nil {
		return err
	}
	if current.Cancelled() {
		return o.finishCancelled(jobID)
	}

	successfulScenes := completedScenes(current.Script.Scenes)
	completeCount := len(successfulScenes)
	if completeCount == 0 {
		return o.finishFailed(jobID, apperr.Wrap(apperr.ErrFatal, fmt.Errorf("zero scenes produced both assets")))
	}

	_ = o.store.Update(jobID, func(j *types.Job) {
		j.Phase = types.PhaseCompose
	})

	video, err := o.composer.Compose(jobCtx, jobID, successfulScenes)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return o.finishCancelled(jobID)
		}
		return o.finishFailed(jobID, fmt.Errorf("compose: %w", err))
	}

	finalStatus := types.StatusCompleted
	if completeCount < len(current.Script.Scenes) {
		finalStatus = types.StatusCompletedWithErrors
	}

	now := time.Now()
	return o.store.Update(jobID, func(j *types.Job) {
		j.Video = video
		j.Status = finalStatus
		j.Phase = types.PhaseDone
		j.Progress = 100
		j.CompletedAt = &now
	})
}

// preflightHealthCheck warns (but never blocks) when the LLM or TTS
// upstreams look unhealthy before a job starts its work, mirroring
// original_source/server/app/orchestrator.py's pre-processing health
// checks: that implementation logs and proceeds rather than refusing the
// job, on the reasoning that a dependency may recover mid-job and partial
// failure is already the documented outcome for a dependency that does not.
func (o *Orchestrator) preflightHealthCheck(ctx context.Context, jobID string) {
	if !o.llm.Healthy() {
		o.log.Warn().Str("job_id", jobID).Msg("llm circuit breaker open before job start, job may fall back to deterministic script generation")
	}
	if !o.tts.Healthy(ctx) {
		o.log.Warn().Str("job_id", jobID).Msg("tts service failed health probe before job start, job may fail")
	}
}

// generateScript calls the LLM client, falling back to the deterministic
// generator when the LLM call fails (breaker open, parse failure, etc).
func (o *Orchestrator) generateScript(ctx context.Context, job *types.Job) (*types.Script, error) {
	source, err := docextract.Extract(job.Source.Path)
	if err != nil {
		return nil, err
	}

	var fp = cache.Fingerprint(cache.NamespaceScript, source.Text, source.Language)
	var script types.Script
	err = o.cache.GetOrCompute(ctx, cache.NamespaceScript, fp, &script, func(ctx context.Context) (any, error) {
		s, err := o.llm.Generate(ctx, source.Text, source.Language)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			o.log.Warn().Err(err).Str("job_id", job.ID).Msg("llm generation failed, using deterministic fallback")
			return llmclient.GenerateDeterministic(source.Text, source.Language), nil
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return &script, nil
}

// renderScenes fans every scene's audio and visual rendering out
// concurrently via errgroup, converging only after every scene's two
// assets have either completed or failed. Cancellation of ctx (via
// Orchestrator.Cancel) is checked before launching each scene so no new
// scene work starts once a job is cancelled; scenes already in flight
// observe the same cancelled context at their own suspension points.
func (o *Orchestrator) renderScenes(ctx context.Context, jobID string, script *types.Script) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range script.Scenes {
		if gctx.Err() != nil {
			break
		}
		scene := script.Scenes[i]
		g.Go(func() error {
			return o.renderOneScene(gctx, jobID, scene)
		})
	}

	return g.Wait()
}

// renderOneScene renders one scene's audio and visual concurrently and
// writes the results back to the job store. A failure on one asset does
// not abort the other; per-scene failures are recorded on the scene and
// do not propagate as an error from this function, so errgroup.Wait
// never aborts the sibling scenes' work over a single scene's failure.
func (o *Orchestrator) renderOneScene(ctx context.Context, jobID string, scene types.Scene) error {
	var audio *types.AudioAsset
	var visualAsset *types.VisualAsset

	inner, innerCtx := errgroup.WithContext(ctx)
	inner.Go(func() error {
		a, err := o.renderAudio(innerCtx, jobID, scene)
		if err != nil {
			o.store.AddLog(jobID, fmt.Sprintf("scene %s: audio render failed: %v", scene.ID, err))
			return nil
		}
		audio = a
		return nil
	})
	inner.Go(func() error {
		v, err := o.router.Render(innerCtx, jobID, scene)
		if err != nil {
			o.store.AddLog(jobID, fmt.Sprintf("scene %s: visual render failed: %v", scene.ID, err))
			return nil
		}
		visualAsset = v
		return nil
	})
	_ = inner.Wait()

	return o.store.Update(jobID, func(j *types.Job) {
		for idx := range j.Script.Scenes {
			if j.Script.Scenes[idx].ID != scene.ID {
				continue
			}
			s := &j.Script.Scenes[idx]
			s.Audio = audio
			s.Visual = visualAsset
			if s.Audio != nil && s.Visual != nil && !s.Visual.Failed {
				s.Status = types.SceneStatusCompleted
			} else {
				s.Status = types.SceneStatusFailed
				j.Errors = append(j.Errors, fmt.Sprintf("scene %s incomplete", scene.ID))
			}
			j.Progress = progressFor(j)
			break
		}
	})
}

// renderAudio runs the TTS call in the order cache -> "tts" breaker ->
// shared retry policy -> governor's tts slot -> raw call: the cache lookup
// comes first, and each retry attempt acquires its own tts slot.
func (o *Orchestrator) renderAudio(ctx context.Context, jobID string, scene types.Scene) (*types.AudioAsset, error) {
	fp := cache.Fingerprint(cache.NamespaceAudio, scene.NarrationText)

	var asset types.AudioAsset
	err := o.cache.GetOrCompute(ctx, cache.NamespaceAudio, fp, &asset, func(ctx context.Context) (any, error) {
		br := o.breakers.Get("tts")
		var duration float64
		outPath := fmt.Sprintf("assets/%s/audio/%s.wav", jobID, fp)

		runErr := br.Call(func() error {
			return o.ttsRetry.Run(ctx, func(ctx context.Context) error {
				permit, err := o.gov.Acquire(ctx, governor.KindTTS)
				if err != nil {
					return err
				}
				defer permit.Release()

				d, err := o.tts.Synthesize(ctx, ttsclient.Request{
					Text:   scene.NarrationText,
					Voice:  "default",
					Format: "wav",
					Speed:  1.0,
				}, outPath)
				duration = d
				return err
			})
		})
		if runErr != nil {
			return nil, runErr
		}

		return &types.AudioAsset{SceneID: scene.ID, Path: outPath, DurationSec: duration, Fingerprint: fp}, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	}
	return &asset, nil
}

// completedScenes returns the subset of scenes that finished with both
// assets in place, in script order — the set Compose runs over per
// spec.md §4.6.3, which excludes scenes whose audio or visual failed.
func completedScenes(scenes []types.Scene) []types.Scene {
	out := make([]types.Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.Status == types.SceneStatusCompleted {
			out = append(out, s)
		}
	}
	return out
}

// progressFor computes 0-100 from completed scene-assets within the
// scene phase's share of the bar, reserving scriptPhaseWeight for script
// generation (already applied by the time scenes start) and the remaining
// 0.10 for the final compose step.
func progressFor(j *types.Job) int {
	if j.Script == nil || len(j.Script.Scenes) == 0 {
		return int(scriptPhaseWeight * 100)
	}
	done := 0
	for _, s := range j.Script.Scenes {
		if s.Status == types.SceneStatusCompleted || s.Status == types.SceneStatusFailed {
			done++
		}
	}
	frac := float64(done) / float64(len(j.Script.Scenes))
	return int((scriptPhaseWeight + frac*scenePhaseWeight) * 100)
}

func (o *Orchestrator) finishFailed(jobID string, cause error) error {
	now := time.Now()
	o.store.AddLog(jobID, fmt.Sprintf("job failed: %v", cause))
	return o.store.Update(jobID, func(j *types.Job) {
		j.Status = types.StatusFailed
		j.Errors = append(j.Errors, cause.Error())
		j.CompletedAt = &now
	})
}

func (o *Orchestrator) finishCancelled(jobID string) error {
	now := time.Now()
	o.store.AddLog(jobID, "job cancelled")
	return o.store.Update(jobID, func(j *types.Job) {
		j.Status = types.StatusCancelled
		j.CompletedAt = &now
	})
}

// Health reports the governor/breaker state for the health() operation
// of spec.md §4.6.
type Health struct {
	Resources  governor.ResourceSnapshot
	Breakers   map[string]breaker.State
	QueueLen   int
	LLMHealthy bool
	TTSHealthy bool
}

// Health returns a point-in-time view of resource usage, breaker states
// and queue depth.
func (o *Orchestrator) Health() Health {
	return Health{
		Resources:  o.gov.SnapshotSlots(),
		Breakers:   o.breakers.Snapshot(),
		QueueLen:   o.queue.Len(),
		LLMHealthy: o.llm.Healthy(),
		TTSHealthy: o.ttsHealthy.Load(),
	}
}

// LLMAdminConfig reports the LLM client's current provider/model
// configuration, backing the admin status endpoint of spec.md's external
// interfaces (expanded; see DESIGN.md for the llm_admin_service.py
// features this narrows to read-only reporting).
func (o *Orchestrator) LLMAdminConfig() llmclient.AdminConfig {
	return o.llm.AdminConfig()
}

// StartResourceMonitor runs a periodic background probe of resource usage,
// queue depth and upstream health, logging at debug and refreshing the
// cached TTS health flag Health() reports — grounded on
// original_source/server/app/core/system_optimizer.py's _monitoring_loop,
// which polls resource and queue status on a fixed interval and logs it
// for operators rather than acting on it directly. It returns a stop
// function, matching the shape of jobstore.Store's
// StartScheduledSnapshots/StartRetentionSweep.
func (o *Orchestrator) StartResourceMonitor(ctx context.Context, interval time.Duration) func() {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.ttsHealthy.Store(o.tts.Healthy(ctx))
				h := o.Health()
				o.log.Debug().
					Float64("cpu_percent", h.Resources.CPUPercent).
					Float64("mem_percent", h.Resources.MemPercent).
					Int("queue_len", h.QueueLen).
					Bool("llm_healthy", h.LLMHealthy).
					Bool("tts_healthy", h.TTSHealthy).
					Msg("resource monitor tick")
			}
		}
	}()

	return func() { close(done) }
}
