package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repval/internal/report/models"
	"repval/internal/report/recordtest"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
	"repval/internal/report/source"
	"repval/internal/report/store"
	"repval/internal/report/store/memory"
	domerrors "repval/pkg/domain-errors"
)

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load("emir-refit-1")
	require.NoError(t, err)
	return s
}

func newOrchestrator(t *testing.T, st store.Store, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{withSleep(noSleep), WithBatchSize(2)}, opts...)
	o, err := New(loadSchema(t), rules.NewCatalog(), st, opts...)
	require.NoError(t, err)
	return o
}

// brokenSource fails every read with the given error.
type brokenSource struct{ err error }

func (s *brokenSource) Next(context.Context, int) ([]models.Record, bool, error) {
	return nil, false, s.err
}

func (s *brokenSource) ParseErrors() int { return 0 }

// failOnceStore passes through to the wrapped store except for the final
// score write, which fails transiently a configured number of times.
type failOnceStore struct {
	store.Store
	remaining int
	attempts  int
}

func (s *failOnceStore) PutOverallScore(ctx context.Context, executionID uuid.UUID, score models.OverallScore) error {
	s.attempts++
	if s.remaining > 0 {
		s.remaining--
		return fmt.Errorf("overall score write: %w", domerrors.ErrPersistence)
	}
	return s.Store.PutOverallScore(ctx, executionID, score)
}

func TestRun_CleanBatch(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st)
	s := loadSchema(t)

	records := []models.Record{
		recordtest.Valid(s, "UTI-A"),
		recordtest.Valid(s, "UTI-B"),
		recordtest.Valid(s, "UTI-C"),
	}
	run, err := o.Run(context.Background(), "2026-09-01", source.NewSliceSource(records))
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.StatusCompleted, run.Status)
	require.NotNil(t, run.Overall)
	assert.Equal(t, 3, run.Overall.TotalRecords)
	assert.Equal(t, 0, run.Overall.RecordsWithError)
	assert.InDelta(t, 100.0, run.Overall.AccuracyScore, 1e-9)
	assert.Equal(t, models.LightGreen, run.Overall.TrafficLight)

	for _, status := range []models.RunStatus{
		models.StatusInitiated,
		models.StatusCompleteness,
		models.StatusFormatAndLogical,
		models.StatusScoring,
		models.StatusCompleted,
	} {
		assert.Contains(t, run.PhaseTimestamps, status)
	}

	stored, err := st.GetRun(context.Background(), run.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)

	overall, err := st.GetOverallScore(context.Background(), run.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, overall)
	assert.Equal(t, models.LightGreen, overall.TrafficLight)
}

func TestRun_FindingsAndPenalties(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st)
	s := loadSchema(t)

	incomplete := recordtest.Valid(s, "UTI-B")
	delete(incomplete.Fields, "counterparty_1")
	malformed := recordtest.Valid(s, "UTI-C")
	malformed.Fields["upi"] = "BADUPI"

	records := []models.Record{
		recordtest.Valid(s, "UTI-A"),
		incomplete,
		malformed,
		recordtest.Valid(s, "UTI-DUP"),
		recordtest.Valid(s, "UTI-DUP"),
	}
	run, err := o.Run(context.Background(), "2026-09-01", source.NewSliceSource(records))
	require.NoError(t, err)

	require.NotNil(t, run.Overall)
	assert.Equal(t, 5, run.Overall.TotalRecords)
	assert.Equal(t, 1, run.Overall.CriticalCount, "missing identifier field")
	assert.Equal(t, 2, run.Overall.MajorCount, "malformed UPI plus duplicate identifier")
	assert.Equal(t, 0, run.Overall.MinorCount)
	// 10 + 5 + 5 penalty points over five records
	assert.InDelta(t, 96.0, run.Overall.AccuracyScore, 1e-9)
	assert.Equal(t, models.LightGreen, run.Overall.TrafficLight)

	findings, err := st.Findings(context.Background(), run.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, findings, 3)
}

func TestRun_DuplicateUTIsShareOneRecordScore(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st)
	s := loadSchema(t)

	first := recordtest.Valid(s, "UTI-DUP")
	first.Fields["counterparty_1"] = "1234"
	second := recordtest.Valid(s, "UTI-DUP")
	second.Fields["counterparty_1"] = "1234"

	run, err := o.Run(context.Background(), "2026-09-01", source.NewSliceSource([]models.Record{first, second}))
	require.NoError(t, err)

	// The identical LEI violation on both occurrences dedupes to one
	// stored finding; the duplicate identifier adds one MAJOR.
	findings, err := st.Findings(context.Background(), run.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, findings, 2)

	// One stored score for the shared identity, carrying the merged
	// 10 + 5 penalty.
	assert.Equal(t, 1, st.RecordScoreCount(run.ExecutionID))
	rs, ok := st.RecordScore(run.ExecutionID, "UTI-DUP")
	require.True(t, ok)
	assert.Equal(t, 15, rs.PenaltyPoints)
	assert.Equal(t, 85.0, rs.AccuracyScore)

	require.NotNil(t, run.Overall)
	assert.Equal(t, 2, run.Overall.TotalRecords)
	assert.InDelta(t, 92.5, run.Overall.AccuracyScore, 1e-9)
	assert.Equal(t, models.LightAmber, run.Overall.TrafficLight)
}

func TestRun_SourceFailure(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st)

	src := &brokenSource{err: fmt.Errorf("read submission: %w", domerrors.ErrSourceRead)}
	run, err := o.Run(context.Background(), "2026-09-01", src)

	require.Error(t, err)
	var pe *domerrors.PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "completeness", pe.Phase)
	assert.Equal(t, 3, pe.Attempts)

	require.NotNil(t, run)
	assert.Equal(t, models.StatusFailed, run.Status)
	assert.NotEmpty(t, run.FailureReason)

	stored, err := st.GetRun(context.Background(), run.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestRun_SchemaMismatchFailsWithoutRetry(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st)

	src := &brokenSource{err: fmt.Errorf("header: %w", domerrors.ErrSchemaMismatch)}
	run, err := o.Run(context.Background(), "2026-09-01", src)

	require.Error(t, err)
	var pe *domerrors.PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Attempts)
	assert.Equal(t, models.StatusFailed, run.Status)
}

func TestRun_TransientStoreFailureRecovered(t *testing.T) {
	wrapped := &failOnceStore{Store: memory.New(), remaining: 1}
	o := newOrchestrator(t, wrapped)
	s := loadSchema(t)

	run, err := o.Run(context.Background(), "2026-09-01",
		source.NewSliceSource([]models.Record{recordtest.Valid(s, "UTI-A")}))

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, run.Status)
	assert.Equal(t, 2, wrapped.attempts)
}

func TestRun_CancelledRunIsMarkedFailed(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := o.Run(ctx, "2026-09-01", source.NewSliceSource(nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, run)
	assert.Equal(t, models.StatusFailed, run.Status)

	stored, err := st.GetRun(context.Background(), run.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestRun_StatusListenerSeesEveryTransition(t *testing.T) {
	var seen []models.RunStatus
	o := newOrchestrator(t, memory.New(), WithStatusListener(func(run *models.ReportRun) {
		seen = append(seen, run.Status)
	}))
	s := loadSchema(t)

	_, err := o.Run(context.Background(), "2026-09-01",
		source.NewSliceSource([]models.Record{recordtest.Valid(s, "UTI-A")}))
	require.NoError(t, err)

	assert.Equal(t, []models.RunStatus{
		models.StatusInitiated,
		models.StatusCompleteness,
		models.StatusFormatAndLogical,
		models.StatusScoring,
		models.StatusCompleted,
	}, seen)
}

func TestRun_Deterministic(t *testing.T) {
	s := loadSchema(t)
	incomplete := recordtest.Valid(s, "UTI-B")
	delete(incomplete.Fields, "report_date")
	records := []models.Record{recordtest.Valid(s, "UTI-A"), incomplete}

	var scores []float64
	for range 3 {
		o := newOrchestrator(t, memory.New())
		run, err := o.Run(context.Background(), "2026-09-01", source.NewSliceSource(records))
		require.NoError(t, err)
		scores = append(scores, run.Overall.AccuracyScore)
	}
	assert.Equal(t, scores[0], scores[1])
	assert.Equal(t, scores[1], scores[2])
}

func TestStatusWriter_RejectsIllegalTransition(t *testing.T) {
	st := memory.New()
	run := &models.ReportRun{
		ExecutionID:     uuid.New(),
		Status:          models.StatusInitiated,
		PhaseTimestamps: map[models.RunStatus]time.Time{},
	}
	require.NoError(t, st.CreateRun(context.Background(), run))
	w := &statusWriter{run: run, store: st, now: time.Now}

	err := w.transition(context.Background(), models.StatusScoring)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")

	require.NoError(t, w.transition(context.Background(), models.StatusCompleteness))
	require.NoError(t, w.fail(context.Background(), "operator abort"))
	// terminal runs stay failed
	require.NoError(t, w.fail(context.Background(), "second abort"))
	assert.Equal(t, "operator abort", w.snapshot().FailureReason)
}

func TestStatusWriter_BlockedListenerDoesNotHoldLock(t *testing.T) {
	st := memory.New()
	run := &models.ReportRun{
		ExecutionID:     uuid.New(),
		Status:          models.StatusInitiated,
		PhaseTimestamps: map[models.RunStatus]time.Time{},
	}
	require.NoError(t, st.CreateRun(context.Background(), run))

	release := make(chan struct{})
	entered := make(chan struct{})
	w := &statusWriter{
		run:   run,
		store: st,
		now:   time.Now,
		listeners: []StatusListener{func(*models.ReportRun) {
			close(entered)
			<-release
		}},
	}

	done := make(chan error, 1)
	go func() { done <- w.transition(context.Background(), models.StatusCompleteness) }()
	<-entered

	// The listener is stalled but the writer lock is free.
	snapped := make(chan *models.ReportRun, 1)
	go func() { snapped <- w.snapshot() }()
	select {
	case snap := <-snapped:
		assert.Equal(t, models.StatusCompleteness, snap.Status)
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked behind a stalled listener")
	}

	close(release)
	require.NoError(t, <-done)
}
