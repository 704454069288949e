// Package recordtest builds schema-complete record fixtures for tests.
package recordtest

import (
	"repval/internal/report/models"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
)

// Overrides for fields whose values are constrained by cross-field rules.
// Everything else gets a type-appropriate default.
var constrained = map[string]string{
	rules.FieldUTI:                "UTI5493001KJTIIGC8Y1R12TRADE0001",
	rules.FieldContractType:       "OPTN",
	rules.FieldExecutionTimestamp: "2026-01-05T09:30:00Z",
	rules.FieldEffectiveDate:      "2026-01-07",
	"settlement_date":             "2026-01-09",
	rules.FieldEarlyTerminationDate: "2027-06-01",
	rules.FieldExpirationDate:       "2028-01-07",
	"report_date":                   "2026-01-07",
	rules.FieldOptionType:           "CALL",
	rules.FieldOptionStyle:          "EURO",
	rules.FieldStrikePrice:          "105.25",
	rules.FieldNotionalAmount:       "25000000",
	rules.FieldNotionalCurrency:     "EUR",
}

// Valid returns a record with every schema field present and valid, so it
// produces zero findings and scores exactly 100.
func Valid(s *schema.Schema, uti string) models.Record {
	fields := make(map[string]string, schema.FieldCount)
	for _, def := range s.Fields() {
		fields[def.Name] = valueFor(def)
	}
	if uti != "" {
		fields[rules.FieldUTI] = uti
	}
	return models.Record{
		UTI:        fields[rules.FieldUTI],
		ReportDate: fields["report_date"],
		Fields:     fields,
	}
}

func valueFor(def schema.FieldDefinition) string {
	if v, ok := constrained[def.Name]; ok {
		return v
	}
	switch def.FormatRuleID {
	case rules.RuleLEIFormat:
		return "5493001KJTIIGC8Y1R12"
	case rules.RuleISINFormat:
		return "US0378331005"
	case rules.RuleUPIFormat:
		return "QZX1N2LQDR86"
	case rules.RuleCurrencyCode:
		return "EUR"
	}
	switch def.DataType {
	case schema.TypeDate:
		return "2026-02-10"
	case schema.TypeTimestamp:
		return "2026-02-10T14:00:00Z"
	case schema.TypeDecimal:
		return "10.5"
	case schema.TypeBoolean:
		return "true"
	}
	return "VALUE"
}
