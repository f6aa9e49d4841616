// Package governor bounds the process's concurrent load across job, tts
// and visual-rendering slots, and gates acquisition on soft CPU/memory
// ceilings. The per-kind slot pattern follows the semaphore-per-provider
// style of other_examples/Bobarinn-video-genie's Worker (uploadSem,
// geminiSem, ttsSem, renderSem), generalized to the three slot kinds this
// pipeline needs and backed by golang.org/x/sync/semaphore so waiters are
// released in FIFO order and acquisition honors context cancellation.
package governor

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

// Kind is one of the three resource pools the governor manages.
type Kind string

const (
	KindJob    Kind = "job"
	KindTTS    Kind = "tts"
	KindVisual Kind = "visual"
)

// Evictor is the Cache Layer's eviction hook, invoked when memory pressure
// crosses the auto-cleanup ceiling.
type Evictor interface {
	EvictUntil(ctx context.Context, targetFraction float64) error
}

// Governor is the process-wide Resource Governor.
type Governor struct {
	log logging.Logger

	sems   map[Kind]*semaphore.Weighted
	caps   map[Kind]int64
	inUse  map[Kind]*atomic.Int64

	cpuSoftCeiling       float64
	memSoftCeiling       float64
	memCleanupCeiling    float64

	cache Evictor
}

// Config mirrors spec.md §6's resource-governor knobs.
type Config struct {
	MaxJobs, MaxTTS, MaxVisual int
	CPUSoftCeiling             float64
	MemSoftCeiling             float64
	MemCleanupCeiling          float64
}

// New builds a Governor. cache may be nil; when set, acquire triggers its
// EvictUntil pass once memory crosses the auto-cleanup ceiling.
func New(cfg Config, cache Evictor, log logging.Logger) *Governor {
	return &Governor{
		log: log,
		sems: map[Kind]*semaphore.Weighted{
			KindJob:    semaphore.NewWeighted(int64(cfg.MaxJobs)),
			KindTTS:    semaphore.NewWeighted(int64(cfg.MaxTTS)),
			KindVisual: semaphore.NewWeighted(int64(cfg.MaxVisual)),
		},
		caps: map[Kind]int64{
			KindJob:    int64(cfg.MaxJobs),
			KindTTS:    int64(cfg.MaxTTS),
			KindVisual: int64(cfg.MaxVisual),
		},
		inUse: map[Kind]*atomic.Int64{
			KindJob:    new(atomic.Int64),
			KindTTS:    new(atomic.Int64),
			KindVisual: new(atomic.Int64),
		},
		cpuSoftCeiling:    cfg.CPUSoftCeiling,
		memSoftCeiling:    cfg.MemSoftCeiling,
		memCleanupCeiling: cfg.MemCleanupCeiling,
		cache:             cache,
	}
}

// Permit represents one held slot. Release must run on every exit path of
// the caller (success, error, or cancellation) — callers should `defer
// permit.Release()` immediately after Acquire returns successfully.
type Permit struct {
	kind    Kind
	sem     *semaphore.Weighted
	counter *atomic.Int64
	done    atomic.Bool
}

// Release returns the slot to its pool. Safe to call more than once; only
// the first call has effect.
func (p *Permit) Release() {
	if p == nil || p.sem == nil {
		return
	}
	if !p.done.CompareAndSwap(false, true) {
		return
	}
	p.sem.Release(1)
	if p.counter != nil {
		p.counter.Add(-1)
	}
}

// Acquire blocks until a slot of kind is available and current resource
// usage is under the soft ceilings, or ctx is cancelled. It never fails
// except on cancellation.
func (g *Governor) Acquire(ctx context.Context, kind Kind) (*Permit, error) {
	sem, ok := g.sems[kind]
	if !ok {
		return nil, fmt.Errorf("governor: unknown slot kind %q", kind)
	}

	for {
		if err := g.waitForHeadroom(ctx); err != nil {
			return nil, err
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, apperr.Wrap(apperr.ErrCancelled, err)
		}
		g.inUse[kind].Add(1)
		return &Permit{kind: kind, sem: sem, counter: g.inUse[kind]}, nil
	}
}

// TryAcquire behaves like Acquire but fails with ErrResourceExhausted if no
// slot becomes available within timeout.
func (g *Governor) TryAcquire(ctx context.Context, kind Kind, timeout time.Duration) (*Permit, error) {
	sem, ok := g.sems[kind]
	if !ok {
		return nil, fmt.Errorf("governor: unknown slot kind %q", kind)
	}

	deadline := time.Now().Add(timeout)
	tctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := g.waitForHeadroomWithin(tctx); err != nil {
		return nil, apperr.Wrap(apperr.ErrResourceExhausted, err)
	}
	if err := sem.Acquire(tctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.ErrResourceExhausted, fmt.Errorf("no %s slot available within %s", kind, timeout))
	}
	g.inUse[kind].Add(1)
	return &Permit{kind: kind, sem: sem, counter: g.inUse[kind]}, nil
}

// waitForHeadroom spins on short waits while CPU/mem are above the soft
// ceilings, triggering a cache eviction pass once past the auto-cleanup
// ceiling, until usage drops or ctx is cancelled.
func (g *Governor) waitForHeadroom(ctx context.Context) error {
	for {
		cpu, mem := Snapshot()
		if cpu < g.cpuSoftCeiling && mem < g.memSoftCeiling {
			return nil
		}
		if mem >= g.memCleanupCeiling && g.cache != nil {
			if err := g.cache.EvictUntil(ctx, g.memCleanupCeiling/100); err != nil {
				g.log.Warn().Err(err).Msg("cache eviction pass failed")
			}
		}
		select {
		case <-ctx.Done():
			return apperr.Wrap(apperr.ErrCancelled, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (g *Governor) waitForHeadroomWithin(ctx context.Context) error {
	for {
		cpu, mem := Snapshot()
		if cpu < g.cpuSoftCeiling && mem < g.memSoftCeiling {
			return nil
		}
		if mem >= g.memCleanupCeiling && g.cache != nil {
			_ = g.cache.EvictUntil(ctx, g.memCleanupCeiling/100)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// ResourceSnapshot is the governor's point-in-time view of load, returned
// by Snapshot() for health reporting.
type ResourceSnapshot struct {
	CPUPercent float64
	MemPercent float64
	InUse      map[Kind]int64
	Available  map[Kind]int64
}

// SnapshotSlots reports current in-use/available counts per slot kind plus
// host CPU/memory percentages.
func (g *Governor) SnapshotSlots() ResourceSnapshot {
	cpu, mem := Snapshot()
	inUse := make(map[Kind]int64, len(g.sems))
	avail := make(map[Kind]int64, len(g.sems))
	for kind, capacity := range g.caps {
		used := g.inUse[kind].Load()
		inUse[kind] = used
		avail[kind] = capacity - used
	}
	return ResourceSnapshot{CPUPercent: cpu, MemPercent: mem, InUse: inUse, Available: avail}
}

// Snapshot approximates host CPU and memory load using only the runtime
// package: no library in the retrieved pack samples host resource usage
// (no gopsutil, no go-osstat), so this is the standard-library fallback,
// justified in DESIGN.md. Memory percent is heap-in-use over a fixed 2GiB
// budget; CPU percent approximates load via the goroutine count relative
// to GOMAXPROCS, which is intentionally crude — it exists only to drive
// the governor's backpressure loop, not to report precise host metrics.
func Snapshot() (cpuPercent, memPercent float64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	const assumedMemBudget = 2 << 30 // 2GiB
	memPercent = 100 * float64(mem.HeapInuse) / float64(assumedMemBudget)

	procs := runtime.GOMAXPROCS(0)
	goroutines := runtime.NumGoroutine()
	cpuPercent = 100 * float64(goroutines) / float64(procs*64)

	if cpuPercent > 100 {
		cpuPercent = 100
	}
	if memPercent > 100 {
		memPercent = 100
	}
	return cpuPercent, memPercent
}
