// Package breaker gates calls to each external service (LLM, TTS, each
// visual provider) behind a closed/open/half-open circuit breaker. It
// wraps github.com/eapache/go-resiliency/breaker — already part of the
// teacher's dependency graph as an indirect dependency of IBM/sarama's
// own internal resilience plumbing — promoted here to a direct dependency
// serving the pipeline's own external calls.
package breaker

import (
	"errors"
	"sync"
	"time"

	resbreaker "github.com/eapache/go-resiliency/breaker"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

// State mirrors spec.md §4.2's three-state machine for health reporting.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker wraps one resbreaker.Breaker with the bookkeeping needed to
// report state and last-failure-time for health endpoints.
type Breaker struct {
	name string
	b    *resbreaker.Breaker
	log  logging.Logger

	mu              sync.Mutex
	consecutiveFail int
	lastFailure     time.Time
	cooldown        time.Duration
	openedAt        time.Time
}

// Config mirrors spec.md §6's circuit breaker knobs.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// New builds a named Breaker. successThreshold is fixed at 1: a single
// successful half-open probe is enough to close, per spec.md §4.2.
func New(name string, cfg Config, log logging.Logger) *Breaker {
	return &Breaker{
		name:     name,
		b:        resbreaker.New(cfg.FailureThreshold, 1, cfg.Cooldown),
		log:      log.With().Str("breaker", name).Logger(),
		cooldown: cfg.Cooldown,
	}
}

// Call runs fn through the breaker. When the breaker is open, fn is never
// invoked and Call returns apperr.ErrUpstreamUnavailable immediately.
func (b *Breaker) Call(fn func() error) error {
	err := b.b.Run(fn)
	switch {
	case err == nil:
		b.mu.Lock()
		b.consecutiveFail = 0
		b.mu.Unlock()
		return nil
	case errors.Is(err, resbreaker.ErrBreakerOpen):
		b.mu.Lock()
		b.openedAt = time.Now()
		b.mu.Unlock()
		b.log.Warn().Msg("breaker open, call rejected without invoking service")
		return apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	default:
		b.mu.Lock()
		b.consecutiveFail++
		b.lastFailure = time.Now()
		n := b.consecutiveFail
		b.mu.Unlock()
		b.log.Warn().Err(err).Int("consecutive_failures", n).Msg("breaker recorded failure")
		return apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	}
}

// State reports the breaker's current state for health().
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveFail == 0 {
		return StateClosed
	}
	if !b.openedAt.IsZero() {
		if time.Since(b.openedAt) >= b.cooldown {
			return StateHalfOpen
		}
		return StateOpen
	}
	return StateClosed
}

// LastFailureTime reports the last time this breaker observed a failure,
// the zero time if none has occurred yet.
func (b *Breaker) LastFailureTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

// ConsecutiveFailures reports the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFail
}

// Registry holds one named Breaker per external service (llm, tts, and
// one per visual provider), constructed once at startup and threaded
// through the Asset Router and Orchestrator.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	log      logging.Logger
}

// NewRegistry builds an empty Registry; breakers are created lazily on
// first use via Get so new external services need no startup wiring.
func NewRegistry(cfg Config, log logging.Logger) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg, log: log}
}

// Get returns the named breaker, creating it on first access.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.cfg, r.log)
	r.breakers[name] = b
	return b
}

// Snapshot returns a name->state map for health().
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
