//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"repval/internal/report/models"
	"repval/internal/report/store/postgres"
	"repval/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.pg.TruncateTables(context.Background(),
		"overall_scores", "record_scores", "validation_findings", "validation_runs")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRun() *models.ReportRun {
	return &models.ReportRun{
		ExecutionID:     uuid.New(),
		ReportDate:      "2026-01-07",
		Status:          models.StatusInitiated,
		StartedAt:       time.Now().UTC().Truncate(time.Microsecond),
		PhaseTimestamps: map[models.RunStatus]time.Time{},
	}
}

func (s *PostgresStoreSuite) TestRunLifecycle() {
	ctx := context.Background()
	run := s.newRun()
	s.Require().NoError(s.store.CreateRun(ctx, run))

	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.UpdateRunStatus(ctx, run.ExecutionID, models.StatusCompleteness, now))
	s.NoError(s.store.UpdateRunStatus(ctx, run.ExecutionID, models.StatusCompleteness, now), "redelivery is a no-op")

	got, err := s.store.GetRun(ctx, run.ExecutionID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleteness, got.Status)
	s.WithinDuration(now, got.PhaseTimestamps[models.StatusCompleteness], time.Millisecond)
}

func (s *PostgresStoreSuite) TestTerminalRunRejectsUpdates() {
	ctx := context.Background()
	run := s.newRun()
	s.Require().NoError(s.store.CreateRun(ctx, run))
	s.Require().NoError(s.store.MarkFailed(ctx, run.ExecutionID, "cancelled", time.Now()))

	err := s.store.UpdateRunStatus(ctx, run.ExecutionID, models.StatusScoring, time.Now())
	s.Error(err)

	got, err := s.store.GetRun(ctx, run.ExecutionID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal("cancelled", got.FailureReason)
}

func (s *PostgresStoreSuite) TestFindingUpsertIsIdempotent() {
	ctx := context.Background()
	run := s.newRun()
	s.Require().NoError(s.store.CreateRun(ctx, run))

	f := models.Finding{
		ID:          models.NewFindingID(run.ExecutionID, "UTI1", "LEI_FORMAT", "counterparty_1"),
		RecordID:    "UTI1",
		FieldName:   "counterparty_1",
		Phase:       models.PhaseFormat,
		RuleID:      "LEI_FORMAT",
		Severity:    models.SeverityCritical,
		SampleValue: "1234",
	}
	s.Require().NoError(s.store.PutFinding(ctx, run.ExecutionID, f))
	s.Require().NoError(s.store.PutFinding(ctx, run.ExecutionID, f))

	findings, err := s.store.Findings(ctx, run.ExecutionID)
	s.Require().NoError(err)
	s.Len(findings, 1)
	s.Equal(f, findings[0])
}

func (s *PostgresStoreSuite) TestScoresRoundTrip() {
	ctx := context.Background()
	run := s.newRun()
	s.Require().NoError(s.store.CreateRun(ctx, run))

	rs := models.RecordScore{
		RecordID:      "UTI1",
		PenaltyPoints: 10,
		AccuracyScore: 90,
		FindingIDs:    []uuid.UUID{uuid.New()},
	}
	s.Require().NoError(s.store.PutRecordScore(ctx, run.ExecutionID, rs))
	s.Require().NoError(s.store.PutRecordScore(ctx, run.ExecutionID, rs), "upsert")

	overall := models.OverallScore{
		TotalRecords:     100,
		RecordsWithError: 1,
		CriticalCount:    1,
		AccuracyScore:    99.9,
		TrafficLight:     models.LightGreen,
		Categories: []models.CategoryScore{
			{Category: "identifier", Score: 99.95, FieldSlot: 1200, Invalid: 1},
		},
	}
	s.Require().NoError(s.store.PutOverallScore(ctx, run.ExecutionID, overall))

	got, err := s.store.GetOverallScore(ctx, run.ExecutionID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(overall, *got)

	none, err := s.store.GetOverallScore(ctx, uuid.New())
	s.Require().NoError(err)
	s.Nil(none)
}
