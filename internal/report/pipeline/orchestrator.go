// Package pipeline drives a report run through its lifecycle: ingest and
// completeness, format and logical validation in parallel, then scoring.
// The orchestrator is the only writer of run status; validation work is
// fanned out over hash-partitioned shards.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"repval/internal/report/metrics"
	"repval/internal/report/models"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
	"repval/internal/report/score"
	"repval/internal/report/source"
	"repval/internal/report/store"
	"repval/internal/report/validate"
)

const (
	defaultShards    = 4
	defaultBatchSize = 500
	defaultRetries   = 3
	defaultBackoff   = 200 * time.Millisecond
)

type Orchestrator struct {
	schema    *schema.Schema
	catalog   *rules.Catalog
	store     store.Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
	listeners []StatusListener

	shards    int
	batchSize int
	retries   int
	backoff   time.Duration

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStatusListener registers an observer of run transitions, such as
// the cache refresher or the audit trail.
func WithStatusListener(l StatusListener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, l) }
}

func WithShards(n int) Option {
	return func(o *Orchestrator) { o.shards = n }
}

func WithBatchSize(n int) Option {
	return func(o *Orchestrator) { o.batchSize = n }
}

func WithRetryPolicy(attempts int, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		o.retries = attempts
		o.backoff = backoff
	}
}

func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

func New(s *schema.Schema, catalog *rules.Catalog, st store.Store, opts ...Option) (*Orchestrator, error) {
	if s == nil {
		return nil, fmt.Errorf("schema is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("rule catalog is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	o := &Orchestrator{
		schema:    s,
		catalog:   catalog,
		store:     st,
		logger:    slog.Default(),
		shards:    defaultShards,
		batchSize: defaultBatchSize,
		retries:   defaultRetries,
		backoff:   defaultBackoff,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.shards < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", o.shards)
	}
	if o.batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", o.batchSize)
	}
	if o.retries < 1 {
		return nil, fmt.Errorf("retry attempts must be positive, got %d", o.retries)
	}
	return o, nil
}

// findingSink adapts the store to the per-finding writer the shard
// runner expects, counting findings as a side effect.
type findingSink struct {
	store       store.Store
	executionID uuid.UUID
	metrics     *metrics.Metrics
}

func (s *findingSink) PutFinding(ctx context.Context, f models.Finding) error {
	if err := s.store.PutFinding(ctx, s.executionID, f); err != nil {
		return err
	}
	s.metrics.IncrementFinding(string(f.Phase), string(f.Severity))
	return nil
}

// Run executes one report run to completion. It returns the final run
// snapshot; when the run fails, the snapshot is returned alongside the
// error so callers can inspect the failure reason. Failures are always
// persisted, even on cancellation.
func (o *Orchestrator) Run(ctx context.Context, reportDate string, src source.Source) (*models.ReportRun, error) {
	if src == nil {
		return nil, fmt.Errorf("record source is required")
	}

	now := o.now()
	run := &models.ReportRun{
		ExecutionID:     uuid.New(),
		ReportDate:      reportDate,
		Status:          models.StatusInitiated,
		StartedAt:       now,
		PhaseTimestamps: map[models.RunStatus]time.Time{models.StatusInitiated: now},
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	log := o.logger.With("execution_id", run.ExecutionID, "report_date", reportDate)
	log.Info("run started")
	o.metrics.RunStarted()
	defer o.metrics.RunFinished()

	writer := &statusWriter{run: run, store: o.store, listeners: o.listeners, now: o.now}
	writer.announce()

	runner, err := validate.NewShardRunner(run.ExecutionID, o.shards, &findingSink{
		store:       o.store,
		executionID: run.ExecutionID,
		metrics:     o.metrics,
	})
	if err != nil {
		return o.abort(ctx, writer, log, err)
	}

	var snapshot []models.Record

	// Phase 1: pull record batches and check completeness as they arrive.
	// The snapshot only grows after a batch validated cleanly, so a retry
	// re-validates the failed batch instead of skipping it. The source is
	// forward-only; records consumed before a fatal error stay consumed.
	completeness := validate.NewCompleteness(o.schema)
	var pending []models.Record
	eos := false
	err = o.runPhase(ctx, writer, log, models.StatusCompleteness, func(ctx context.Context) error {
		for !eos || len(pending) > 0 {
			if len(pending) == 0 {
				batch, done, err := src.Next(ctx, o.batchSize)
				if err != nil {
					return err
				}
				eos = done
				pending = batch
				if len(pending) == 0 {
					continue
				}
			}
			if err := runner.Run(ctx, pending, completeness); err != nil {
				return err
			}
			snapshot = append(snapshot, pending...)
			o.metrics.AddRecords(string(models.PhaseCompleteness), len(pending))
			pending = nil
		}
		return nil
	})
	if err != nil {
		return o.abort(ctx, writer, log, err)
	}

	// Phase 2: format and logical validation run concurrently over the
	// frozen snapshot and meet at a barrier. Each branch retries on its
	// own; the first exhausted branch cancels the other.
	err = o.runPhase(ctx, writer, log, models.StatusFormatAndLogical, func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return retryPhase(ctx, "format", o.retries, o.backoff, o.sleep, func(ctx context.Context) error {
				if err := runner.Emit(ctx, validate.NewUniqueness().Scan(snapshot)); err != nil {
					return err
				}
				if err := runner.Run(ctx, snapshot, validate.NewFormat(o.schema, o.catalog)); err != nil {
					return err
				}
				o.metrics.AddRecords(string(models.PhaseFormat), len(snapshot))
				return nil
			})
		})
		g.Go(func() error {
			return retryPhase(ctx, "logical", o.retries, o.backoff, o.sleep, func(ctx context.Context) error {
				if err := runner.Run(ctx, snapshot, validate.NewLogical(o.catalog)); err != nil {
					return err
				}
				o.metrics.AddRecords(string(models.PhaseLogical), len(snapshot))
				return nil
			})
		})
		return g.Wait()
	})
	if err != nil {
		return o.abort(ctx, writer, log, err)
	}

	// Phase 3: score from the persisted finding set. Reading findings
	// back instead of accumulating in memory means retried branches can
	// never double-count a penalty; the set is deduplicated by ID.
	err = o.runPhase(ctx, writer, log, models.StatusScoring, func(ctx context.Context) error {
		findings, err := o.store.Findings(ctx, run.ExecutionID)
		if err != nil {
			return err
		}
		recordIDs := make([]string, 0, len(snapshot))
		for _, rec := range snapshot {
			recordIDs = append(recordIDs, rec.UTI)
		}
		scores, overall := score.NewEngine(o.schema).Score(recordIDs, findings, src.ParseErrors())
		for _, s := range scores {
			if err := o.store.PutRecordScore(ctx, run.ExecutionID, s); err != nil {
				return err
			}
		}
		if err := o.store.PutOverallScore(ctx, run.ExecutionID, overall); err != nil {
			return err
		}
		writer.setOverall(&overall)
		return nil
	})
	if err != nil {
		return o.abort(ctx, writer, log, err)
	}

	if err := writer.transition(ctx, models.StatusCompleted); err != nil {
		return o.abort(ctx, writer, log, err)
	}
	o.metrics.IncrementRun("completed")

	snap := writer.snapshot()
	log.Info("run completed",
		"records", len(snapshot),
		"parse_errors", src.ParseErrors(),
		"overall_score", snap.Overall.AccuracyScore,
		"traffic_light", snap.Overall.TrafficLight,
	)
	return snap, nil
}

// runPhase transitions into status, then runs fn under the retry policy.
// The phase name for logs and metrics is the lowercased status.
func (o *Orchestrator) runPhase(ctx context.Context, writer *statusWriter, log *slog.Logger, status models.RunStatus, fn func(context.Context) error) error {
	if err := writer.transition(ctx, status); err != nil {
		return err
	}
	name := phaseName(status)
	log.Info("phase started", "phase", name)
	start := o.now()

	var err error
	if status == models.StatusFormatAndLogical {
		// the branches carry their own retries
		err = fn(ctx)
	} else {
		err = retryPhase(ctx, name, o.retries, o.backoff, o.sleep, fn)
	}

	o.metrics.ObservePhaseDuration(name, o.now().Sub(start))
	if err != nil {
		return err
	}
	log.Info("phase completed", "phase", name, "duration", o.now().Sub(start))
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, writer *statusWriter, log *slog.Logger, cause error) (*models.ReportRun, error) {
	log.Error("run failed", "error", cause)
	if err := writer.fail(ctx, cause.Error()); err != nil {
		log.Error("could not persist failure", "error", err)
	}
	o.metrics.IncrementRun("failed")
	return writer.snapshot(), cause
}

func phaseName(s models.RunStatus) string {
	switch s {
	case models.StatusCompleteness:
		return "completeness"
	case models.StatusFormatAndLogical:
		return "format_and_logical"
	case models.StatusScoring:
		return "scoring"
	default:
		return string(s)
	}
}
