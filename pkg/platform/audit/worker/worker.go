// Package worker decouples audit emission from delivery: the pipeline
// drops events on a channel and moves on; this worker drains the channel
// and publishes in the background.
package worker

import (
	"context"
	"log/slog"

	"repval/pkg/platform/audit"
)

// Worker consumes audit events from a channel and publishes them.
// Delivery failures are logged and dropped; audit events are advisory.
type Worker struct {
	publisher audit.Publisher
	inbox     <-chan audit.Event
	logger    *slog.Logger
}

func NewWorker(publisher audit.Publisher, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{publisher: publisher, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.publisher.Publish(ctx, event); err != nil {
				w.logger.Warn("publish audit event",
					"error", err,
					"execution_id", event.ExecutionID,
					"status", event.Status,
				)
			}
		}
	}
}
