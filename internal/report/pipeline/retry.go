package pipeline

import (
	"context"
	"errors"
	"time"

	domerrors "repval/pkg/domain-errors"
)

// retryPhase runs fn up to attempts times with exponential backoff.
// Fatal errors and context cancellation abort immediately. Exhausted
// retries surface as a PhaseError naming the phase, the attempt count
// and the first error seen.
func retryPhase(ctx context.Context, phase string, attempts int, backoff time.Duration, sleep func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	var first error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
		if domerrors.Fatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &domerrors.PhaseError{Phase: phase, Attempts: attempt, First: first}
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, backoff<<(attempt-1)); err != nil {
			return &domerrors.PhaseError{Phase: phase, Attempts: attempt, First: first}
		}
	}
	return &domerrors.PhaseError{Phase: phase, Attempts: attempts, First: first}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
