package validate

import (
	"fmt"

	"repval/internal/report/models"
	"repval/internal/report/rules"
	domerrors "repval/pkg/domain-errors"
)

// Logical evaluates the catalog's cross-field rules. Control flow is
// rule-agnostic: it only iterates the catalog.
type Logical struct {
	catalog *rules.Catalog
}

func NewLogical(c *rules.Catalog) *Logical {
	return &Logical{catalog: c}
}

func (l *Logical) Phase() models.Phase { return models.PhaseLogical }

func (l *Logical) Validate(rec models.Record) ([]models.Finding, error) {
	var findings []models.Finding
	for _, rule := range l.catalog.Logical() {
		violations, err := rule.Check(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", domerrors.ErrRuleEvaluation, rule.ID, err)
		}
		for _, v := range violations {
			findings = append(findings, models.Finding{
				RecordID:    rec.UTI,
				FieldName:   v.FieldName,
				Phase:       models.PhaseLogical,
				RuleID:      rule.ID,
				Severity:    rule.Severity,
				SampleValue: v.SampleValue,
			})
		}
	}
	return findings, nil
}
