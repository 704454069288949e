// Package store defines the result sink contract. All write operations
// are idempotent under retry: findings carry deterministic IDs, scores
// upsert by key, and status updates are keyed by execution.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"repval/internal/report/models"
	"repval/pkg/platform/sentinel"
)

// ErrNotFound marks lookups for executions the store has never seen.
// Stores wrap it; the HTTP layer translates it to a 404.
var ErrNotFound = sentinel.ErrNotFound

// Store persists runs, findings, and scores.
type Store interface {
	// CreateRun registers a new run in INITIATED state. Creating the same
	// execution twice is an error.
	CreateRun(ctx context.Context, run *models.ReportRun) error

	// UpdateRunStatus moves a run to status at the given time. Updating a
	// terminal run is an error; re-applying the current status is a no-op
	// so redelivery is safe.
	UpdateRunStatus(ctx context.Context, executionID uuid.UUID, status models.RunStatus, at time.Time) error

	// MarkFailed transitions a run to FAILED with a reason.
	MarkFailed(ctx context.Context, executionID uuid.UUID, reason string, at time.Time) error

	// PutFinding upserts one finding by its deterministic ID.
	PutFinding(ctx context.Context, executionID uuid.UUID, f models.Finding) error

	// Findings returns the deduplicated finding set for an execution.
	Findings(ctx context.Context, executionID uuid.UUID) ([]models.Finding, error)

	// PutRecordScore upserts a record score by (execution, record).
	PutRecordScore(ctx context.Context, executionID uuid.UUID, s models.RecordScore) error

	// PutOverallScore upserts the final report score.
	PutOverallScore(ctx context.Context, executionID uuid.UUID, s models.OverallScore) error

	// GetRun returns a snapshot of the run.
	GetRun(ctx context.Context, executionID uuid.UUID) (*models.ReportRun, error)

	// GetOverallScore returns the final score, or nil when scoring has not
	// completed.
	GetOverallScore(ctx context.Context, executionID uuid.UUID) (*models.OverallScore, error)
}
