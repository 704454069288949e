package validate

import (
	"repval/internal/report/models"
	"repval/internal/report/rules"
)

// Uniqueness flags duplicate UTIs across the whole batch. It runs as a
// single sequential pass, deliberately outside the shard partitioning,
// because duplicates can land in different shards.
//
// Policy: one finding per duplicate group, attributed to the second
// occurrence; the first occurrence is never flagged, and a third or later
// occurrence adds nothing.
type Uniqueness struct{}

func NewUniqueness() *Uniqueness { return &Uniqueness{} }

func (u *Uniqueness) Scan(records []models.Record) []models.Finding {
	seen := make(map[string]int, len(records))
	var findings []models.Finding
	for _, rec := range records {
		uti, ok := rec.Value(rules.FieldUTI)
		if !ok || uti == "" {
			continue // missing identity is completeness territory
		}
		seen[uti]++
		if seen[uti] == 2 {
			findings = append(findings, models.Finding{
				RecordID:    rec.UTI,
				FieldName:   rules.FieldUTI,
				Phase:       models.PhaseFormat,
				RuleID:      rules.RuleUTIDuplicate,
				Severity:    models.SeverityMajor,
				SampleValue: uti,
			})
		}
	}
	return findings
}
