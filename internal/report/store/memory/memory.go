// Package memory is the in-memory result store: the default for local
// runs and the test double for everything above the sink boundary.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"repval/internal/report/models"
	"repval/internal/report/store"
	"repval/pkg/platform/sentinel"
)

type Store struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]*models.ReportRun
	findings map[uuid.UUID]map[uuid.UUID]models.Finding
	records  map[uuid.UUID]map[string]models.RecordScore
	overall  map[uuid.UUID]models.OverallScore
}

func New() *Store {
	return &Store{
		runs:     make(map[uuid.UUID]*models.ReportRun),
		findings: make(map[uuid.UUID]map[uuid.UUID]models.Finding),
		records:  make(map[uuid.UUID]map[string]models.RecordScore),
		overall:  make(map[uuid.UUID]models.OverallScore),
	}
}

func (s *Store) CreateRun(_ context.Context, run *models.ReportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ExecutionID]; exists {
		return fmt.Errorf("run %s: %w", run.ExecutionID, sentinel.ErrConflict)
	}
	s.runs[run.ExecutionID] = run.Clone()
	return nil
}

func (s *Store) UpdateRunStatus(_ context.Context, executionID uuid.UUID, status models.RunStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[executionID]
	if !ok {
		return fmt.Errorf("run %s: %w", executionID, store.ErrNotFound)
	}
	if run.Status == status {
		return nil // redelivery
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s is terminal (%s): %w", executionID, run.Status, sentinel.ErrInvalidState)
	}
	run.Status = status
	run.PhaseTimestamps[status] = at
	if status == models.StatusCompleted {
		run.CompletedAt = at
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, executionID uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[executionID]
	if !ok {
		return fmt.Errorf("run %s: %w", executionID, store.ErrNotFound)
	}
	if run.Status == models.StatusFailed {
		return nil
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s is terminal (%s): %w", executionID, run.Status, sentinel.ErrInvalidState)
	}
	run.Status = models.StatusFailed
	run.FailureReason = reason
	run.PhaseTimestamps[models.StatusFailed] = at
	run.CompletedAt = at
	return nil
}

func (s *Store) PutFinding(_ context.Context, executionID uuid.UUID, f models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findings[executionID] == nil {
		s.findings[executionID] = make(map[uuid.UUID]models.Finding)
	}
	s.findings[executionID][f.ID] = f
	return nil
}

func (s *Store) Findings(_ context.Context, executionID uuid.UUID) ([]models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Finding, 0, len(s.findings[executionID]))
	for _, f := range s.findings[executionID] {
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) PutRecordScore(_ context.Context, executionID uuid.UUID, score models.RecordScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[executionID] == nil {
		s.records[executionID] = make(map[string]models.RecordScore)
	}
	s.records[executionID][score.RecordID] = score
	return nil
}

func (s *Store) PutOverallScore(_ context.Context, executionID uuid.UUID, score models.OverallScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overall[executionID] = score
	return nil
}

func (s *Store) GetRun(_ context.Context, executionID uuid.UUID) (*models.ReportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[executionID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", executionID, store.ErrNotFound)
	}
	return run.Clone(), nil
}

func (s *Store) GetOverallScore(_ context.Context, executionID uuid.UUID) (*models.OverallScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.overall[executionID]
	if !ok {
		return nil, nil
	}
	return &score, nil
}

// RecordScore returns one record's score; test helper.
func (s *Store) RecordScore(executionID uuid.UUID, recordID string) (models.RecordScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.records[executionID][recordID]
	return score, ok
}

// RecordScoreCount reports how many record scores an execution holds.
func (s *Store) RecordScoreCount(executionID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[executionID])
}
