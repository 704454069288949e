package store

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"repval/internal/report/models"
	domerrors "repval/pkg/domain-errors"
)

// Retrying decorates a Store with exponential backoff on transient
// persistence failures. Because every write is idempotent, replaying an
// operation that may have half-landed is safe.
type Retrying struct {
	inner       Store
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(context.Context, time.Duration) error
}

type RetryOption func(*Retrying)

// WithSleep overrides the backoff sleeper; tests use it to avoid real
// waiting.
func WithSleep(sleep func(context.Context, time.Duration) error) RetryOption {
	return func(r *Retrying) { r.sleep = sleep }
}

func NewRetrying(inner Store, maxAttempts int, baseBackoff time.Duration, opts ...RetryOption) *Retrying {
	r := &Retrying{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
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

// do retries fn on transient errors only; anything else propagates
// immediately.
func (r *Retrying) do(ctx context.Context, fn func() error) error {
	var first error
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !domerrors.Transient(err) {
			return err
		}
		if first == nil {
			first = err
		}
		if attempt >= r.maxAttempts {
			return first
		}
		// base * 2^(attempt-1)
		delay := time.Duration(float64(r.baseBackoff) * math.Pow(2, float64(attempt-1)))
		if err := r.sleep(ctx, delay); err != nil {
			return first
		}
	}
}

func (r *Retrying) CreateRun(ctx context.Context, run *models.ReportRun) error {
	return r.do(ctx, func() error { return r.inner.CreateRun(ctx, run) })
}

func (r *Retrying) UpdateRunStatus(ctx context.Context, executionID uuid.UUID, status models.RunStatus, at time.Time) error {
	return r.do(ctx, func() error { return r.inner.UpdateRunStatus(ctx, executionID, status, at) })
}

func (r *Retrying) MarkFailed(ctx context.Context, executionID uuid.UUID, reason string, at time.Time) error {
	return r.do(ctx, func() error { return r.inner.MarkFailed(ctx, executionID, reason, at) })
}

func (r *Retrying) PutFinding(ctx context.Context, executionID uuid.UUID, f models.Finding) error {
	return r.do(ctx, func() error { return r.inner.PutFinding(ctx, executionID, f) })
}

func (r *Retrying) Findings(ctx context.Context, executionID uuid.UUID) ([]models.Finding, error) {
	var out []models.Finding
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Findings(ctx, executionID)
		return err
	})
	return out, err
}

func (r *Retrying) PutRecordScore(ctx context.Context, executionID uuid.UUID, s models.RecordScore) error {
	return r.do(ctx, func() error { return r.inner.PutRecordScore(ctx, executionID, s) })
}

func (r *Retrying) PutOverallScore(ctx context.Context, executionID uuid.UUID, s models.OverallScore) error {
	return r.do(ctx, func() error { return r.inner.PutOverallScore(ctx, executionID, s) })
}

func (r *Retrying) GetRun(ctx context.Context, executionID uuid.UUID) (*models.ReportRun, error) {
	var run *models.ReportRun
	err := r.do(ctx, func() error {
		var err error
		run, err = r.inner.GetRun(ctx, executionID)
		return err
	})
	return run, err
}

func (r *Retrying) GetOverallScore(ctx context.Context, executionID uuid.UUID) (*models.OverallScore, error) {
	var s *models.OverallScore
	err := r.do(ctx, func() error {
		var err error
		s, err = r.inner.GetOverallScore(ctx, executionID)
		return err
	})
	return s, err
}
