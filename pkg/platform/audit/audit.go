// Package audit publishes run lifecycle events for downstream consumers
// (dashboards, alerting). Publishing is fire-and-forget from the
// pipeline's point of view: a dead broker never blocks a validation run.
package audit

import (
	"context"
	"time"
)

// Event is one run state transition.
type Event struct {
	ExecutionID string    `json:"execution_id"`
	ReportDate  string    `json:"report_date"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers events to a backend.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
