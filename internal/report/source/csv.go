package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"repval/internal/report/models"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
	domerrors "repval/pkg/domain-errors"
)

// CSVSource reads records from a delimited submission file. The header
// row must match the schema's field names exactly and in order; anything
// else is a schema mismatch, not a validation finding.
type CSVSource struct {
	reader      *csv.Reader
	fields      []string
	row         int
	parseErrors int
	done        bool
}

// NewCSVSource wraps r and verifies its header against s.
func NewCSVSource(r io.Reader, s *schema.Schema) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = schema.FieldCount
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domerrors.ErrSchemaMismatch, err)
	}
	want := s.FieldNames()
	if len(header) != len(want) {
		return nil, fmt.Errorf("%w: header has %d columns, schema has %d", domerrors.ErrSchemaMismatch, len(header), len(want))
	}
	for i, name := range want {
		if header[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, schema expects %q", domerrors.ErrSchemaMismatch, i+1, header[i], name)
		}
	}

	return &CSVSource{reader: cr, fields: want}, nil
}

func (s *CSVSource) Next(ctx context.Context, batchSize int) ([]models.Record, bool, error) {
	if s.done {
		return nil, true, nil
	}
	batch := make([]models.Record, 0, batchSize)
	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return batch, false, err
		}
		row, err := s.reader.Read()
		if err == io.EOF {
			s.done = true
			return batch, true, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
			// One malformed row never aborts the batch; it is excluded
			// and tallied.
			s.parseErrors++
			s.row++
			continue
		}
		if err != nil {
			return batch, false, fmt.Errorf("%w: row %d: %v", domerrors.ErrSourceRead, s.row+1, err)
		}
		s.row++
		batch = append(batch, s.toRecord(row))
	}
	return batch, false, nil
}

func (s *CSVSource) toRecord(row []string) models.Record {
	fields := make(map[string]string, len(row))
	for i, name := range s.fields {
		fields[name] = row[i]
	}
	uti := fields[rules.FieldUTI]
	if uti == "" {
		// Records without an identity still flow through validation;
		// completeness flags the missing UTI.
		uti = "row-" + strconv.Itoa(s.row)
	}
	return models.Record{
		UTI:        uti,
		ReportDate: fields["report_date"],
		Fields:     fields,
	}
}

func (s *CSVSource) ParseErrors() int { return s.parseErrors }
