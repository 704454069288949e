// Package rules is the declarative catalog of validation rules. Rules are
// data: id, phase, severity, predicate. Validators iterate the catalog and
// never branch on individual rule IDs, so adding a regulatory rule means
// adding an entry here, not touching validator control flow.
package rules

import (
	"fmt"

	"repval/internal/report/models"
)

// Rule IDs referenced by findings. Kept as constants so sinks and tests
// can match on them.
const (
	RuleMissingIdentifier = "MISSING_IDENTIFIER_FIELD"
	RuleMissingMandatory  = "MISSING_MANDATORY_FIELD"

	RuleLEIFormat       = "LEI_FORMAT"
	RuleISINFormat      = "ISIN_FORMAT"
	RuleUPIFormat       = "UPI_FORMAT"
	RuleCurrencyCode    = "CURRENCY_CODE"
	RuleDateFormat      = "DATE_FORMAT"
	RuleTimestampFormat = "TIMESTAMP_FORMAT"
	RuleDecimalFormat   = "DECIMAL_FORMAT"
	RuleBooleanFormat   = "BOOLEAN_FORMAT"
	RuleUTIDuplicate    = "UTI_DUPLICATE"

	RuleDateSequence       = "DATE_SEQUENCE_ERROR"
	RuleClearingData       = "CLEARING_DATA_MISSING"
	RuleClearingObligation = "CLEARING_OBLIGATION_MISMATCH"
	RuleNotionalPresence   = "NOTIONAL_CO_PRESENCE"
	RuleNotionalRange      = "NOTIONAL_RANGE"
	RuleOptionPresence     = "OPTION_CO_PRESENCE"
	RuleSwapLegRate        = "SWAP_LEG_RATE"
)

// FormatRule validates a single raw field value. Valid must be pure and
// side-effect-free; an empty value never reaches it (empty means absent,
// which is the completeness validator's business).
type FormatRule struct {
	ID       string
	Severity models.Severity
	Valid    func(value string) bool
}

// Violation is one cross-field rule hit. FieldName may be empty for
// record-wide violations.
type Violation struct {
	FieldName   string
	SampleValue string
}

// LogicalRule evaluates a cross-field predicate over a whole record. A
// returned error means the rule itself is defective, not that the record
// is invalid; the pipeline treats it as fatal.
type LogicalRule struct {
	ID       string
	Severity models.Severity
	Check    func(rec models.Record) ([]Violation, error)
}

// Catalog bundles the format rules, the logical rules, and the reference
// code tables. Loaded once per run, read-only afterwards.
type Catalog struct {
	formatByID map[string]FormatRule
	logical    []LogicalRule
	currencies map[string]struct{}
}

// NewCatalog builds the default catalog.
func NewCatalog() *Catalog {
	c := &Catalog{
		formatByID: make(map[string]FormatRule),
		currencies: iso4217,
	}
	for _, r := range defaultFormatRules(c) {
		c.formatByID[r.ID] = r
	}
	c.logical = defaultLogicalRules()
	return c
}

// Format returns the format rule registered under id.
func (c *Catalog) Format(id string) (FormatRule, error) {
	r, ok := c.formatByID[id]
	if !ok {
		return FormatRule{}, fmt.Errorf("no format rule registered for id %s", id)
	}
	return r, nil
}

// TypeRule maps a schema data type to the format rule that checks its
// lexical shape. String fields have no type rule.
func (c *Catalog) TypeRule(dataType string) (FormatRule, bool) {
	switch dataType {
	case "date":
		r, _ := c.formatByID[RuleDateFormat]
		return r, true
	case "timestamp":
		r, _ := c.formatByID[RuleTimestampFormat]
		return r, true
	case "decimal":
		r, _ := c.formatByID[RuleDecimalFormat]
		return r, true
	case "boolean":
		r, _ := c.formatByID[RuleBooleanFormat]
		return r, true
	}
	return FormatRule{}, false
}

// Logical returns the cross-field rules in evaluation order.
func (c *Catalog) Logical() []LogicalRule { return c.logical }

// ValidCurrency reports membership in the ISO 4217 reference table.
func (c *Catalog) ValidCurrency(code string) bool {
	_, ok := c.currencies[code]
	return ok
}
