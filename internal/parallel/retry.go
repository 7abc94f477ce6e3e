package parallel

import (
	"context"
	"time"

	"github.com/mwiater/aibff/internal/grading"
)

// MaxAttempts is the number of grading attempts a unit gets before it is
// recorded as failed.
const MaxAttempts = 3

// DefaultRetryBaseDelay is the backoff base when none is configured.
const DefaultRetryBaseDelay = time.Second

// OutcomeKind tags the result of one attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetry
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of running a unit. Unit carries the retry
// count as of the outcome. Attempts is the number of attempts made.
type Outcome struct {
	Kind     OutcomeKind
	Unit     WorkUnit
	Result   grading.Result
	Err      error
	Attempts int
}

// AttemptFunc performs a single grading attempt for unit.
type AttemptFunc func(ctx context.Context, unit WorkUnit) (grading.Result, error)

// BackoffFor returns the wait after failed attempt number attempt (1-based).
// Rate-limited failures back off exponentially; anything else waits base.
func BackoffFor(err error, attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	if attempt < 1 || !grading.IsRateLimited(err) {
		return base
	}
	return base * time.Duration(1<<uint(attempt-1))
}

// RetryController runs a unit until it succeeds or exhausts MaxAttempts.
type RetryController struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry is called after a failed attempt that will be retried, with the
	// updated retry count, before the backoff sleep starts.
	OnRetry func(unit WorkUnit, err error, retryCount int)

	sleep func(ctx context.Context, d time.Duration) error
}

// Run drives unit through attempts. It returns an OutcomeSuccess or an
// OutcomeFailed, never an OutcomeRetry.
func (r *RetryController) Run(ctx context.Context, unit WorkUnit, attempt AttemptFunc) Outcome {
	for n := 1; ; n++ {
		out := r.step(ctx, unit, n, attempt)
		if out.Kind != OutcomeRetry {
			return out
		}

		unit = out.Unit
		if r.OnRetry != nil {
			r.OnRetry(unit, out.Err, unit.RetryCount)
		}
		if err := r.sleeper()(ctx, BackoffFor(out.Err, n, r.BaseDelay)); err != nil {
			return Outcome{Kind: OutcomeFailed, Unit: unit, Err: err, Attempts: n}
		}
	}
}

// step performs attempt number n and classifies it.
func (r *RetryController) step(ctx context.Context, unit WorkUnit, n int, attempt AttemptFunc) Outcome {
	result, err := attempt(ctx, unit)
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Unit: unit, Result: result, Attempts: n}
	}
	if ctx.Err() != nil || n >= r.maxAttempts() {
		return Outcome{Kind: OutcomeFailed, Unit: unit, Err: err, Attempts: n}
	}
	unit.RetryCount = n
	return Outcome{Kind: OutcomeRetry, Unit: unit, Err: err, Attempts: n}
}

func (r *RetryController) maxAttempts() int {
	if r.MaxAttempts < 1 {
		return MaxAttempts
	}
	return r.MaxAttempts
}

func (r *RetryController) sleeper() func(context.Context, time.Duration) error {
	if r.sleep != nil {
		return r.sleep
	}
	return sleepContext
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
