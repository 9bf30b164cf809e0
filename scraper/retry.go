package scraper

import (
	"context"
	"log/slog"
	"time"
)

// Policy is the retry configuration for one operation type. A Policy is
// immutable; build one per call site and reuse it freely.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	BackoffMax  time.Duration
	Retryable   func(error) bool
}

// newPolicy derives the canonical policy for an operation type from the
// configured attempt and backoff settings.
func newPolicy(maxAttempts int, backoff, backoffMax time.Duration, retryable func(error) bool) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if retryable == nil {
		retryable = retryableTransport
	}
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		BackoffMax:  backoffMax,
		Retryable:   retryable,
	}
}

// Execute invokes op up to MaxAttempts times, sleeping an exponentially
// growing backoff between attempts. Errors the policy does not consider
// retryable propagate immediately and unmodified. Exhausting all
// attempts returns ErrMaxRetries wrapping the last error.
func (p Policy) Execute(ctx context.Context, name string, op func() error) error {
	var last error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		slog.Debug("executing operation",
			slog.String("op", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.MaxAttempts),
		)

		err := op()
		if err == nil {
			if attempt > 1 {
				slog.Info("operation recovered",
					slog.String("op", name),
					slog.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !p.Retryable(err) {
			return err
		}
		last = err

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)
		slog.Warn("operation failed, backing off",
			slog.String("op", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	slog.Error("operation exhausted retries",
		slog.String("op", name),
		slog.Int("attempts", p.MaxAttempts),
		slog.Any("error", last),
	)
	return ErrMaxRetries{Attempts: p.MaxAttempts, Err: last}
}

func (p Policy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := p.BackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
