package validate

import (
	"fmt"

	"repval/internal/report/models"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
	domerrors "repval/pkg/domain-errors"
)

// truncateSample keeps sample values short enough for finding storage.
const truncateSample = 64

// Format applies per-field structural rules: the data-type shape rule and
// the field's format rule, independently. An empty value is absent, not
// invalid; completeness owns absence.
type Format struct {
	schema  *schema.Schema
	catalog *rules.Catalog
}

func NewFormat(s *schema.Schema, c *rules.Catalog) *Format {
	return &Format{schema: s, catalog: c}
}

func (f *Format) Phase() models.Phase { return models.PhaseFormat }

func (f *Format) Validate(rec models.Record) ([]models.Finding, error) {
	var findings []models.Finding
	for _, def := range f.schema.Fields() {
		v, ok := rec.Value(def.Name)
		if !ok || v == "" {
			continue
		}
		if typeRule, has := f.catalog.TypeRule(string(def.DataType)); has && !typeRule.Valid(v) {
			findings = append(findings, formatFinding(rec, def.Name, typeRule, v))
		}
		if def.FormatRuleID == "" {
			continue
		}
		rule, err := f.catalog.Format(def.FormatRuleID)
		if err != nil {
			// A schema pointing at an unregistered rule is a catalog
			// defect, never a record problem.
			return nil, fmt.Errorf("%w: field %s: %v", domerrors.ErrRuleEvaluation, def.Name, err)
		}
		if !rule.Valid(v) {
			findings = append(findings, formatFinding(rec, def.Name, rule, v))
		}
	}
	return findings, nil
}

func formatFinding(rec models.Record, field string, rule rules.FormatRule, value string) models.Finding {
	if len(value) > truncateSample {
		value = value[:truncateSample]
	}
	return models.Finding{
		RecordID:    rec.UTI,
		FieldName:   field,
		Phase:       models.PhaseFormat,
		RuleID:      rule.ID,
		Severity:    rule.Severity,
		SampleValue: value,
	}
}
