// Package validate implements the three validation passes and the sharded
// worker runner they execute under. Validators are pure: they read one
// record against the read-only schema and rule catalog and return
// findings, never mutating shared state.
package validate

import (
	"repval/internal/report/models"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
)

// Completeness checks mandatory-field presence. A key that is absent and
// a key holding the empty string are the same thing: missing.
type Completeness struct {
	schema *schema.Schema
}

func NewCompleteness(s *schema.Schema) *Completeness {
	return &Completeness{schema: s}
}

func (c *Completeness) Phase() models.Phase { return models.PhaseCompleteness }

func (c *Completeness) Validate(rec models.Record) ([]models.Finding, error) {
	var findings []models.Finding
	for _, def := range c.schema.Fields() {
		if !def.Mandatory {
			continue
		}
		if v, ok := rec.Value(def.Name); ok && v != "" {
			continue
		}
		f := models.Finding{
			RecordID:  rec.UTI,
			FieldName: def.Name,
			Phase:     models.PhaseCompleteness,
			RuleID:    rules.RuleMissingMandatory,
			Severity:  models.SeverityMajor,
		}
		if def.Category == schema.CategoryIdentifier {
			f.RuleID = rules.RuleMissingIdentifier
			f.Severity = models.SeverityCritical
		}
		findings = append(findings, f)
	}
	return findings, nil
}
