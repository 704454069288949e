package validate

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"repval/internal/report/models"
	domerrors "repval/pkg/domain-errors"
)

// RecordValidator is one validation pass over a single record.
type RecordValidator interface {
	Phase() models.Phase
	Validate(rec models.Record) ([]models.Finding, error)
}

// FindingWriter receives findings. Implementations must be idempotent
// under retry; finding IDs are deterministic for exactly that reason.
type FindingWriter interface {
	PutFinding(ctx context.Context, f models.Finding) error
}

// workerBatch is how many records a shard worker processes between
// cancellation checks. A cancelled worker finishes its current batch and
// stops; findings already written are retained.
const workerBatch = 256

// ShardRunner fans a record snapshot out over hash-partitioned shards and
// runs a validator in each. Shards share only the read-only schema and
// catalog held inside the validator.
type ShardRunner struct {
	executionID uuid.UUID
	shards      int
	sink        FindingWriter
}

func NewShardRunner(executionID uuid.UUID, shards int, sink FindingWriter) (*ShardRunner, error) {
	if shards < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", shards)
	}
	if sink == nil {
		return nil, fmt.Errorf("finding writer is required")
	}
	return &ShardRunner{executionID: executionID, shards: shards, sink: sink}, nil
}

// Run partitions records by identity-key hash and validates each shard in
// its own goroutine. The first error cancels the remaining shards.
func (r *ShardRunner) Run(ctx context.Context, records []models.Record, v RecordValidator) error {
	shards := make([][]models.Record, r.shards)
	for _, rec := range records {
		i := shardOf(rec.UTI, r.shards)
		shards[i] = append(shards[i], rec)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			return r.runShard(ctx, shard, v)
		})
	}
	return g.Wait()
}

func (r *ShardRunner) runShard(ctx context.Context, records []models.Record, v RecordValidator) error {
	for start := 0; start < len(records); start += workerBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+workerBatch, len(records))
		for _, rec := range records[start:end] {
			findings, err := r.validate(v, rec)
			if err != nil {
				return err
			}
			if err := r.Emit(ctx, findings); err != nil {
				return err
			}
		}
	}
	return nil
}

// validate isolates rule panics: a panicking predicate is a rule defect,
// surfaced as ErrRuleEvaluation rather than taking the process down or
// being mistaken for an invalid record.
func (r *ShardRunner) validate(v RecordValidator, rec models.Record) (findings []models.Finding, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic in %s validator on record %s: %v",
				domerrors.ErrRuleEvaluation, v.Phase(), rec.UTI, p)
		}
	}()
	return v.Validate(rec)
}

// Emit assigns deterministic IDs and writes findings to the sink.
func (r *ShardRunner) Emit(ctx context.Context, findings []models.Finding) error {
	for _, f := range findings {
		f.ID = models.NewFindingID(r.executionID, f.RecordID, f.RuleID, f.FieldName)
		if err := r.sink.PutFinding(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func shardOf(key string, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(shards))
}
