// Package retry wraps an operation with exponential backoff using
// github.com/eapache/go-resiliency/retrier — the same dependency family
// that supplies the Circuit Breaker, already present in the teacher's
// module graph via IBM/sarama.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/eapache/go-resiliency/retrier"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

// Config mirrors spec.md §6's retry knobs.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	Multiplier    float64
	JitterFrac    float64
}

// Policy is a reusable retry configuration. Retryable decides whether an
// error should trigger another attempt; nil means "retry everything
// except apperr.ErrCancelled and apperr.ErrValidation".
type Policy struct {
	cfg       Config
	retryable func(error) bool
	log       logging.Logger
}

// New builds a Policy from cfg. name is used only for log attribution.
func New(name string, cfg Config, retryable func(error) bool, log logging.Logger) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Policy{
		cfg:       cfg,
		retryable: retryable,
		log:       log.With().Str("retry_policy", name).Logger(),
	}
}

// backoffSchedule returns cfg.MaxAttempts-1 delays (one before each retry
// after the first attempt), exponential with multiplicative jitter.
func (p *Policy) backoffSchedule() []time.Duration {
	n := p.cfg.MaxAttempts - 1
	if n <= 0 {
		return nil
	}
	out := make([]time.Duration, n)
	delay := p.cfg.InitialDelay
	for i := 0; i < n; i++ {
		jitter := 1.0
		if p.cfg.JitterFrac > 0 {
			jitter = 1 + (rand.Float64()*2-1)*p.cfg.JitterFrac
		}
		out[i] = time.Duration(float64(delay) * jitter)
		delay = time.Duration(float64(delay) * math.Max(p.cfg.Multiplier, 1))
	}
	return out
}

type classifier struct {
	retryable func(error) bool
}

func (c classifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, apperr.ErrCancelled) || errors.Is(err, apperr.ErrValidation) {
		return retrier.Fail
	}
	if c.retryable != nil && !c.retryable(err) {
		return retrier.Fail
	}
	return retrier.Retry
}

// Run executes fn, retrying per the policy's backoff schedule. Attempts
// are logged with their index. Cancellation (context.Canceled or
// apperr.ErrCancelled) is never retried and propagates immediately. On
// exhaustion the last error is returned unwrapped so callers can inspect
// the original failure.
func (p *Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	r := retrier.New(p.backoffSchedule(), classifier{retryable: p.retryable})

	attempt := 0
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil {
			p.log.Debug().Int("attempt", attempt).Err(err).Msg("attempt failed")
		}
		return err
	})
	return err
}
