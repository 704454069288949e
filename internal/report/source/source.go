// Package source feeds trade records into the pipeline. The production
// implementation reads the delimited submission file; SliceSource exists
// for tests and replays.
package source

import (
	"context"

	"repval/internal/report/models"
)

// Source is a bounded stream of records. Next returns up to batchSize
// records and reports end-of-stream; implementations fail with
// domerrors.ErrSourceRead on transport problems.
type Source interface {
	Next(ctx context.Context, batchSize int) ([]models.Record, bool, error)
	// ParseErrors is the count of rows skipped because they could not be
	// parsed into a record. Valid once end-of-stream was reached.
	ParseErrors() int
}

// SliceSource serves a fixed record set. Used by tests and re-scoring
// replays.
type SliceSource struct {
	records []models.Record
	pos     int
}

func NewSliceSource(records []models.Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context, batchSize int) ([]models.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.records) {
		return nil, true, nil
	}
	end := s.pos + batchSize
	if end > len(s.records) {
		end = len(s.records)
	}
	batch := s.records[s.pos:end]
	s.pos = end
	return batch, s.pos >= len(s.records), nil
}

func (s *SliceSource) ParseErrors() int { return 0 }
