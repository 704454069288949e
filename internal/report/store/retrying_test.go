package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repval/internal/report/models"
	"repval/internal/report/store"
	"repval/internal/report/store/memory"
	domerrors "repval/pkg/domain-errors"
)

// flaky fails PutFinding with a transient error n times before delegating.
type flaky struct {
	store.Store
	remaining int
	calls     int
}

func (f *flaky) PutFinding(ctx context.Context, executionID uuid.UUID, finding models.Finding) error {
	f.calls++
	if f.remaining > 0 {
		f.remaining--
		return fmt.Errorf("%w: connection reset", domerrors.ErrPersistence)
	}
	return f.Store.PutFinding(ctx, executionID, finding)
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryingRecoversTransientFailures(t *testing.T) {
	inner := &flaky{Store: memory.New(), remaining: 2}
	r := store.NewRetrying(inner, 3, time.Millisecond, store.WithSleep(noSleep))

	execID := uuid.New()
	f := models.Finding{ID: uuid.New(), RecordID: "UTI1"}
	require.NoError(t, r.PutFinding(context.Background(), execID, f))
	assert.Equal(t, 3, inner.calls)

	findings, err := r.Findings(context.Background(), execID)
	require.NoError(t, err)
	assert.Len(t, findings, 1)
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flaky{Store: memory.New(), remaining: 10}
	r := store.NewRetrying(inner, 3, time.Millisecond, store.WithSleep(noSleep))

	err := r.PutFinding(context.Background(), uuid.New(), models.Finding{ID: uuid.New()})
	require.ErrorIs(t, err, domerrors.ErrPersistence)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingDoesNotRetryNonTransientErrors(t *testing.T) {
	inner := memory.New()
	r := store.NewRetrying(inner, 3, time.Millisecond, store.WithSleep(noSleep))

	run := &models.ReportRun{ExecutionID: uuid.New(), Status: models.StatusInitiated, PhaseTimestamps: map[models.RunStatus]time.Time{}}
	require.NoError(t, r.CreateRun(context.Background(), run))
	err := r.CreateRun(context.Background(), run)
	require.Error(t, err, "duplicate run is not transient")
	assert.NotErrorIs(t, err, domerrors.ErrPersistence)
}
