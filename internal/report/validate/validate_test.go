package validate

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repval/internal/report/models"
	"repval/internal/report/recordtest"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
	domerrors "repval/pkg/domain-errors"
)

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load("emir-refit-1")
	require.NoError(t, err)
	return s
}

// collector is a threadsafe FindingWriter for tests.
type collector struct {
	mu       sync.Mutex
	findings []models.Finding
}

func (c *collector) PutFinding(_ context.Context, f models.Finding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.findings = append(c.findings, f)
	return nil
}

func (c *collector) all() []models.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Finding(nil), c.findings...)
}

func TestCompleteness(t *testing.T) {
	s := loadSchema(t)
	v := NewCompleteness(s)

	t.Run("complete record has no findings", func(t *testing.T) {
		findings, err := v.Validate(recordtest.Valid(s, "UTI1"))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("missing identifier field is critical", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		delete(rec.Fields, "counterparty_1")
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityCritical, findings[0].Severity)
		assert.Equal(t, rules.RuleMissingIdentifier, findings[0].RuleID)
		assert.Equal(t, "counterparty_1", findings[0].FieldName)
		assert.Equal(t, models.PhaseCompleteness, findings[0].Phase)
	})

	t.Run("empty string equals absent", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["counterparty_1"] = ""
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, "counterparty_1", findings[0].FieldName)
	})

	t.Run("missing non-identifier mandatory field is major", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["asset_class"] = ""
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityMajor, findings[0].Severity)
		assert.Equal(t, rules.RuleMissingMandatory, findings[0].RuleID)
	})

	t.Run("missing optional field is never flagged", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		delete(rec.Fields, "isin")
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

func TestFormat(t *testing.T) {
	s := loadSchema(t)
	v := NewFormat(s, rules.NewCatalog())

	t.Run("valid record has no findings", func(t *testing.T) {
		findings, err := v.Validate(recordtest.Valid(s, "UTI1"))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("short LEI is critical", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["counterparty_1"] = "1234"
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityCritical, findings[0].Severity)
		assert.Equal(t, rules.RuleLEIFormat, findings[0].RuleID)
		assert.Equal(t, "1234", findings[0].SampleValue)
	})

	t.Run("empty value is absent not invalid", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["counterparty_1"] = ""
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("bad timestamp is major", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["execution_timestamp"] = "yesterday"
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, rules.RuleTimestampFormat, findings[0].RuleID)
		assert.Equal(t, models.SeverityMajor, findings[0].Severity)
	})

	t.Run("one bad field never blocks others", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["counterparty_1"] = "bad"
		rec.Fields["notional_currency"] = "ZZZ"
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		assert.Len(t, findings, 2)
	})
}

func TestLogicalValidator(t *testing.T) {
	s := loadSchema(t)
	v := NewLogical(rules.NewCatalog())

	t.Run("valid record has no findings", func(t *testing.T) {
		findings, err := v.Validate(recordtest.Valid(s, "UTI1"))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("execution after effective date", func(t *testing.T) {
		rec := recordtest.Valid(s, "UTI1")
		rec.Fields["execution_timestamp"] = "2026-02-01T09:00:00Z"
		findings, err := v.Validate(rec)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, rules.RuleDateSequence, findings[0].RuleID)
		assert.Equal(t, models.SeverityCritical, findings[0].Severity)
		assert.Equal(t, models.PhaseLogical, findings[0].Phase)
	})
}

func TestUniqueness(t *testing.T) {
	s := loadSchema(t)

	t.Run("duplicate group yields one finding", func(t *testing.T) {
		records := []models.Record{
			recordtest.Valid(s, "DUP1"),
			recordtest.Valid(s, "DUP1"),
		}
		findings := NewUniqueness().Scan(records)
		require.Len(t, findings, 1)
		assert.Equal(t, rules.RuleUTIDuplicate, findings[0].RuleID)
		assert.Equal(t, models.SeverityMajor, findings[0].Severity)
		assert.Equal(t, "DUP1", findings[0].SampleValue)
	})

	t.Run("third occurrence adds nothing", func(t *testing.T) {
		records := []models.Record{
			recordtest.Valid(s, "DUP1"),
			recordtest.Valid(s, "DUP1"),
			recordtest.Valid(s, "DUP1"),
			recordtest.Valid(s, "OTHER"),
		}
		findings := NewUniqueness().Scan(records)
		assert.Len(t, findings, 1)
	})

	t.Run("unique batch is clean", func(t *testing.T) {
		records := []models.Record{
			recordtest.Valid(s, "A"),
			recordtest.Valid(s, "B"),
		}
		assert.Empty(t, NewUniqueness().Scan(records))
	})
}

type panicValidator struct{}

func (panicValidator) Phase() models.Phase { return models.PhaseLogical }
func (panicValidator) Validate(models.Record) ([]models.Finding, error) {
	panic("defective predicate")
}

func TestShardRunner(t *testing.T) {
	s := loadSchema(t)
	execID := uuid.New()

	t.Run("all shards are validated", func(t *testing.T) {
		sink := &collector{}
		runner, err := NewShardRunner(execID, 4, sink)
		require.NoError(t, err)

		var records []models.Record
		for i := 0; i < 50; i++ {
			rec := recordtest.Valid(s, uuid.NewString())
			delete(rec.Fields, "counterparty_1")
			records = append(records, rec)
		}
		require.NoError(t, runner.Run(context.Background(), records, NewCompleteness(s)))
		assert.Len(t, sink.all(), 50)
	})

	t.Run("finding ids are deterministic", func(t *testing.T) {
		run := func() []models.Finding {
			sink := &collector{}
			runner, err := NewShardRunner(execID, 4, sink)
			require.NoError(t, err)
			rec := recordtest.Valid(s, "UTI1")
			delete(rec.Fields, "counterparty_1")
			require.NoError(t, runner.Run(context.Background(), []models.Record{rec}, NewCompleteness(s)))
			return sink.all()
		}
		first, second := run(), run()
		require.Len(t, first, 1)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID, second[0].ID)
	})

	t.Run("panicking rule surfaces as evaluation defect", func(t *testing.T) {
		sink := &collector{}
		runner, err := NewShardRunner(execID, 2, sink)
		require.NoError(t, err)
		err = runner.Run(context.Background(), []models.Record{recordtest.Valid(s, "UTI1")}, panicValidator{})
		require.ErrorIs(t, err, domerrors.ErrRuleEvaluation)
	})

	t.Run("cancelled context stops workers", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sink := &collector{}
		runner, err := NewShardRunner(execID, 2, sink)
		require.NoError(t, err)

		var records []models.Record
		for i := 0; i < 1000; i++ {
			records = append(records, recordtest.Valid(s, uuid.NewString()))
		}
		err = runner.Run(ctx, records, NewCompleteness(s))
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("constructor rejects bad arguments", func(t *testing.T) {
		_, err := NewShardRunner(execID, 0, &collector{})
		require.Error(t, err)
		_, err = NewShardRunner(execID, 1, nil)
		require.Error(t, err)
	})
}
