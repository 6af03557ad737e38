package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy runs an operation with bounded retries over transient errors,
// following §4.3: attempt up to maxAttempts times; on Transient, sleep
// baseDelay × 2^(attempt-1) × jitter where jitter is uniform in [0.75, 1.25];
// on Permanent-*, return immediately; on final transient failure, return the
// last error. Grounded on the prior internal/graph/client.go calcBackoff,
// generalized to a configurable jitter band and attempt-counted (not fixed 5-retry)
// loop.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Logger         *slog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
	jitterFraction func() float64 // injectable for deterministic tests
}

// NewPolicy creates a Policy with the given bounds. maxAttempts and baseDelay
// come directly from Configuration (retryAttempts, retryBaseDelaySeconds).
func NewPolicy(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Policy{
		MaxAttempts:    maxAttempts,
		BaseDelay:      baseDelay,
		Logger:         logger,
		sleep:          sleepCtx,
		jitterFraction: defaultJitter,
	}
}

// defaultJitter draws uniformly from [0.75, 1.25].
func defaultJitter() float64 {
	const lo, span = 0.75, 0.5
	return lo + rand.Float64()*span
}

// sleepCtx sleeps for d or returns ctx.Err() if canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes op, retrying on Transient errors up to MaxAttempts times with
// exponential backoff and jitter. Permanent-* errors return immediately. op
// name is used only for logging.
func (p *Policy) Run(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		kind := Classify(err)

		if kind != KindTransient {
			p.Logger.Debug("retry: permanent error, not retrying",
				slog.String("op", name), slog.String("kind", kind.String()))

			return err
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)

		p.Logger.Warn("retry: transient error, backing off",
			slog.String("op", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("retry %s: %w", name, sleepErr)
		}
	}

	return lastErr
}

// backoff computes baseDelay × 2^(attempt-1) × jitter for the given attempt
// (1-indexed), per §4.3.
func (p *Policy) backoff(attempt int) time.Duration {
	mult := 1 << uint(attempt-1) //nolint:gosec // attempt is bounded by MaxAttempts
	d := p.BaseDelay * time.Duration(mult)

	return time.Duration(float64(d) * p.jitterFraction())
}
