// Package rediscache mirrors the latest run status and final score into
// Redis so external dashboards can poll run state without touching the
// primary result store. The cache is best-effort: a write failure is
// logged, never propagated, and the pipeline is unaffected.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"repval/internal/platform/redis"
	"repval/internal/report/models"
)

const keyPrefix = "repval:run:"

// Cache publishes run snapshots into Redis with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Snapshot is the JSON document stored per run.
type Snapshot struct {
	ExecutionID   string               `json:"execution_id"`
	ReportDate    string               `json:"report_date"`
	Status        models.RunStatus     `json:"status"`
	FailureReason string               `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Overall       *models.OverallScore `json:"overall,omitempty"`
}

// OnRunUpdate implements the orchestrator's status listener.
func (c *Cache) OnRunUpdate(run *models.ReportRun) {
	snap := Snapshot{
		ExecutionID:   run.ExecutionID.String(),
		ReportDate:    run.ReportDate,
		Status:        run.Status,
		FailureReason: run.FailureReason,
		UpdatedAt:     time.Now().UTC(),
		Overall:       run.Overall,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("marshal run snapshot", "error", err, "execution_id", snap.ExecutionID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, keyPrefix+snap.ExecutionID, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache run snapshot", "error", err, "execution_id", snap.ExecutionID)
	}
}

// Get fetches a cached run snapshot; (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, executionID uuid.UUID) (*Snapshot, error) {
	raw, err := c.client.Get(ctx, keyPrefix+executionID.String()).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal run snapshot: %w", err)
	}
	return &snap, nil
}
