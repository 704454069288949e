package handler

import (
	"time"

	"github.com/google/uuid"

	"repval/internal/report/models"
)

type runResponse struct {
	ExecutionID     string               `json:"execution_id"`
	ReportDate      string               `json:"report_date"`
	Status          string               `json:"status"`
	StartedAt       time.Time            `json:"started_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`
	PhaseTimestamps map[string]time.Time `json:"phase_timestamps"`
	Overall         *scoreResponse       `json:"overall,omitempty"`
}

type scoreResponse struct {
	ExecutionID      string             `json:"execution_id"`
	TotalRecords     int                `json:"total_records"`
	RecordsWithError int                `json:"records_with_error"`
	CriticalCount    int                `json:"critical_count"`
	MajorCount       int                `json:"major_count"`
	MinorCount       int                `json:"minor_count"`
	ParseErrors      int                `json:"parse_errors"`
	AccuracyScore    float64            `json:"accuracy_score"`
	TrafficLight     string             `json:"traffic_light"`
	Categories       []categoryResponse `json:"categories"`
}

type categoryResponse struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

func fromRun(run *models.ReportRun) runResponse {
	resp := runResponse{
		ExecutionID:     run.ExecutionID.String(),
		ReportDate:      run.ReportDate,
		Status:          string(run.Status),
		StartedAt:       run.StartedAt,
		FailureReason:   run.FailureReason,
		PhaseTimestamps: make(map[string]time.Time, len(run.PhaseTimestamps)),
	}
	for status, at := range run.PhaseTimestamps {
		resp.PhaseTimestamps[string(status)] = at
	}
	if !run.CompletedAt.IsZero() {
		at := run.CompletedAt
		resp.CompletedAt = &at
	}
	if run.Overall != nil {
		overall := fromOverall(run.ExecutionID, run.Overall)
		resp.Overall = &overall
	}
	return resp
}

func fromOverall(executionID uuid.UUID, s *models.OverallScore) scoreResponse {
	resp := scoreResponse{
		ExecutionID:      executionID.String(),
		TotalRecords:     s.TotalRecords,
		RecordsWithError: s.RecordsWithError,
		CriticalCount:    s.CriticalCount,
		MajorCount:       s.MajorCount,
		MinorCount:       s.MinorCount,
		ParseErrors:      s.ParseErrors,
		AccuracyScore:    s.AccuracyScore,
		TrafficLight:     string(s.TrafficLight),
		Categories:       make([]categoryResponse, 0, len(s.Categories)),
	}
	for _, c := range s.Categories {
		resp.Categories = append(resp.Categories, categoryResponse{Category: c.Category, Score: c.Score})
	}
	return resp
}
