package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"repval/internal/report/models"
	"repval/internal/report/store"
)

// transitions is the explicit state machine table. FAILED is reachable
// from every non-terminal state and handled by fail rather than listed
// here.
var transitions = map[models.RunStatus]models.RunStatus{
	models.StatusInitiated:        models.StatusCompleteness,
	models.StatusCompleteness:     models.StatusFormatAndLogical,
	models.StatusFormatAndLogical: models.StatusScoring,
	models.StatusScoring:          models.StatusCompleted,
}

// StatusListener observes run snapshots after every transition. Listeners
// run outside the writer lock, so a slow listener delays its own run but
// never other readers; heavy delivery still goes through a channel worker.
type StatusListener func(run *models.ReportRun)

// statusWriter is the single authoritative writer for run status. The
// parallel format and logical branches never touch the run directly; they
// report results to the orchestrator, which owns this writer.
type statusWriter struct {
	mu        sync.Mutex
	run       *models.ReportRun
	store     store.Store
	listeners []StatusListener
	now       func() time.Time
}

// transition advances the run along the table. Out-of-order transitions
// are programming errors and fail loudly.
func (w *statusWriter) transition(ctx context.Context, to models.RunStatus) error {
	w.mu.Lock()
	if next, ok := transitions[w.run.Status]; !ok || next != to {
		w.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", w.run.Status, to)
	}
	at := w.now()
	if err := w.store.UpdateRunStatus(ctx, w.run.ExecutionID, to, at); err != nil {
		w.mu.Unlock()
		return err
	}
	w.run.Status = to
	w.run.PhaseTimestamps[to] = at
	if to == models.StatusCompleted {
		w.run.CompletedAt = at
	}
	snap := w.run.Clone()
	w.mu.Unlock()

	w.notify(snap)
	return nil
}

// fail moves the run to FAILED from any non-terminal state. It uses a
// detached context so the failure is persisted even when the run was
// cancelled.
func (w *statusWriter) fail(ctx context.Context, reason string) error {
	w.mu.Lock()
	if w.run.Status.Terminal() {
		w.mu.Unlock()
		return nil
	}
	at := w.now()
	if err := w.store.MarkFailed(context.WithoutCancel(ctx), w.run.ExecutionID, reason, at); err != nil {
		w.mu.Unlock()
		return err
	}
	w.run.Status = models.StatusFailed
	w.run.FailureReason = reason
	w.run.PhaseTimestamps[models.StatusFailed] = at
	w.run.CompletedAt = at
	snap := w.run.Clone()
	w.mu.Unlock()

	w.notify(snap)
	return nil
}

func (w *statusWriter) setOverall(s *models.OverallScore) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run.Overall = s
}

func (w *statusWriter) snapshot() *models.ReportRun {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.run.Clone()
}

// announce delivers the initial snapshot to listeners.
func (w *statusWriter) announce() {
	w.notify(w.snapshot())
}

// notify dispatches outside the lock. The listeners slice is fixed at
// construction, so it is safe to range without holding mu.
func (w *statusWriter) notify(snap *models.ReportRun) {
	for _, l := range w.listeners {
		l(snap)
	}
}
