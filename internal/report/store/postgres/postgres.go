// Package postgres persists validation results in PostgreSQL. Every
// write is an upsert keyed so redelivery after a retry lands on the same
// row; that is what makes the sink idempotent.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"repval/internal/report/models"
	"repval/internal/report/store"
	domerrors "repval/pkg/domain-errors"
	"repval/pkg/platform/sentinel"
)

// Store is a PostgreSQL-backed result sink.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects and verifies the database is reachable.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DDL creates the result tables. Applied by EnsureSchema on startup;
// production deployments run migrations out of band.
const DDL = `
CREATE TABLE IF NOT EXISTS validation_runs (
	execution_id     UUID PRIMARY KEY,
	report_date      TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	failure_reason   TEXT NOT NULL DEFAULT '',
	phase_timestamps JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS validation_findings (
	id           UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES validation_runs(execution_id),
	record_id    TEXT NOT NULL,
	field_name   TEXT NOT NULL DEFAULT '',
	phase        TEXT NOT NULL,
	rule_id      TEXT NOT NULL,
	severity     TEXT NOT NULL,
	sample_value TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS validation_findings_execution_idx
	ON validation_findings (execution_id, record_id);

CREATE TABLE IF NOT EXISTS record_scores (
	execution_id   UUID NOT NULL REFERENCES validation_runs(execution_id),
	record_id      TEXT NOT NULL,
	penalty_points INT NOT NULL,
	accuracy_score DOUBLE PRECISION NOT NULL,
	finding_ids    JSONB NOT NULL DEFAULT '[]',
	PRIMARY KEY (execution_id, record_id)
);

CREATE TABLE IF NOT EXISTS overall_scores (
	execution_id       UUID PRIMARY KEY REFERENCES validation_runs(execution_id),
	total_records      INT NOT NULL,
	records_with_error INT NOT NULL,
	critical_count     INT NOT NULL,
	major_count        INT NOT NULL,
	minor_count        INT NOT NULL,
	parse_errors       INT NOT NULL,
	accuracy_score     DOUBLE PRECISION NOT NULL,
	traffic_light      TEXT NOT NULL,
	categories         JSONB NOT NULL DEFAULT '[]'
);
`

// EnsureSchema applies the DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, DDL); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", domerrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run *models.ReportRun) error {
	ts, err := json.Marshal(run.PhaseTimestamps)
	if err != nil {
		return fmt.Errorf("marshal phase timestamps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_runs (execution_id, report_date, status, started_at, phase_timestamps)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ExecutionID, run.ReportDate, string(run.Status), run.StartedAt, ts)
	if err != nil {
		return fmt.Errorf("%w: create run: %v", domerrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, executionID uuid.UUID, status models.RunStatus, at time.Time) error {
	// The WHERE clause leaves terminal runs untouched; re-applying the
	// current status matches zero rows changed but still succeeds.
	res, err := s.db.ExecContext(ctx, `
		UPDATE validation_runs
		SET status = $2,
		    phase_timestamps = phase_timestamps || jsonb_build_object($2::text, $3::timestamptz),
		    completed_at = CASE WHEN $2 = 'COMPLETED' THEN $3 ELSE completed_at END
		WHERE execution_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`,
		executionID, string(status), at)
	if err != nil {
		return fmt.Errorf("%w: update run status: %v", domerrors.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update run status: %v", domerrors.ErrPersistence, err)
	}
	if n == 0 {
		current, getErr := s.GetRun(ctx, executionID)
		if getErr != nil {
			return getErr
		}
		if current.Status == status {
			return nil // redelivery
		}
		return fmt.Errorf("run %s is terminal (%s): %w", executionID, current.Status, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, executionID uuid.UUID, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE validation_runs
		SET status = 'FAILED', failure_reason = $2, completed_at = $3,
		    phase_timestamps = phase_timestamps || jsonb_build_object('FAILED', $3::timestamptz)
		WHERE execution_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`,
		executionID, reason, at)
	if err != nil {
		return fmt.Errorf("%w: mark failed: %v", domerrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) PutFinding(ctx context.Context, executionID uuid.UUID, f models.Finding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_findings (id, execution_id, record_id, field_name, phase, rule_id, severity, sample_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, executionID, f.RecordID, f.FieldName, string(f.Phase), f.RuleID, string(f.Severity), f.SampleValue)
	if err != nil {
		return fmt.Errorf("%w: put finding: %v", domerrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) Findings(ctx context.Context, executionID uuid.UUID) ([]models.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, field_name, phase, rule_id, severity, sample_value
		FROM validation_findings WHERE execution_id = $1`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list findings: %v", domerrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		var f models.Finding
		var phase, severity string
		if err := rows.Scan(&f.ID, &f.RecordID, &f.FieldName, &phase, &f.RuleID, &severity, &f.SampleValue); err != nil {
			return nil, fmt.Errorf("%w: scan finding: %v", domerrors.ErrPersistence, err)
		}
		f.Phase = models.Phase(phase)
		f.Severity = models.Severity(severity)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list findings: %v", domerrors.ErrPersistence, err)
	}
	return out, nil
}

func (s *Store) PutRecordScore(ctx context.Context, executionID uuid.UUID, score models.RecordScore) error {
	ids, err := json.Marshal(score.FindingIDs)
	if err != nil {
		return fmt.Errorf("marshal finding ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO record_scores (execution_id, record_id, penalty_points, accuracy_score, finding_ids)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (execution_id, record_id) DO UPDATE
		SET penalty_points = EXCLUDED.penalty_points,
		    accuracy_score = EXCLUDED.accuracy_score,
		    finding_ids = EXCLUDED.finding_ids`,
		executionID, score.RecordID, score.PenaltyPoints, score.AccuracyScore, ids)
	if err != nil {
		return fmt.Errorf("%w: put record score: %v", domerrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) PutOverallScore(ctx context.Context, executionID uuid.UUID, score models.OverallScore) error {
	cats, err := json.Marshal(score.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO overall_scores (execution_id, total_records, records_with_error,
			critical_count, major_count, minor_count, parse_errors,
			accuracy_score, traffic_light, categories)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (execution_id) DO UPDATE
		SET total_records = EXCLUDED.total_records,
		    records_with_error = EXCLUDED.records_with_error,
		    critical_count = EXCLUDED.critical_count,
		    major_count = EXCLUDED.major_count,
		    minor_count = EXCLUDED.minor_count,
		    parse_errors = EXCLUDED.parse_errors,
		    accuracy_score = EXCLUDED.accuracy_score,
		    traffic_light = EXCLUDED.traffic_light,
		    categories = EXCLUDED.categories`,
		executionID, score.TotalRecords, score.RecordsWithError,
		score.CriticalCount, score.MajorCount, score.MinorCount, score.ParseErrors,
		score.AccuracyScore, string(score.TrafficLight), cats)
	if err != nil {
		return fmt.Errorf("%w: put overall score: %v", domerrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, executionID uuid.UUID) (*models.ReportRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, report_date, status, started_at, completed_at, failure_reason, phase_timestamps
		FROM validation_runs WHERE execution_id = $1`,
		executionID)

	run := &models.ReportRun{PhaseTimestamps: map[models.RunStatus]time.Time{}}
	var status string
	var completed sql.NullTime
	var ts []byte
	if err := row.Scan(&run.ExecutionID, &run.ReportDate, &status, &run.StartedAt, &completed, &run.FailureReason, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s: %w", executionID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get run: %v", domerrors.ErrPersistence, err)
	}
	run.Status = models.RunStatus(status)
	if completed.Valid {
		run.CompletedAt = completed.Time
	}
	if err := json.Unmarshal(ts, &run.PhaseTimestamps); err != nil {
		return nil, fmt.Errorf("unmarshal phase timestamps: %w", err)
	}
	overall, err := s.GetOverallScore(ctx, executionID)
	if err != nil {
		return nil, err
	}
	run.Overall = overall
	return run, nil
}

func (s *Store) GetOverallScore(ctx context.Context, executionID uuid.UUID) (*models.OverallScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_records, records_with_error, critical_count, major_count, minor_count,
			parse_errors, accuracy_score, traffic_light, categories
		FROM overall_scores WHERE execution_id = $1`,
		executionID)

	var score models.OverallScore
	var light string
	var cats []byte
	err := row.Scan(&score.TotalRecords, &score.RecordsWithError, &score.CriticalCount,
		&score.MajorCount, &score.MinorCount, &score.ParseErrors,
		&score.AccuracyScore, &light, &cats)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get overall score: %v", domerrors.ErrPersistence, err)
	}
	score.TrafficLight = models.TrafficLight(light)
	if err := json.Unmarshal(cats, &score.Categories); err != nil {
		return nil, fmt.Errorf("unmarshal categories: %w", err)
	}
	return &score, nil
}
