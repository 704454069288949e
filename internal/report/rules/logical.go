package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"repval/internal/report/models"
)

// Schema field names the cross-field rules reference.
const (
	FieldExecutionTimestamp   = "execution_timestamp"
	FieldEffectiveDate        = "effective_date"
	FieldExpirationDate       = "expiration_date"
	FieldEarlyTerminationDate = "early_termination_date"
	FieldCleared              = "cleared"
	FieldClearingObligation   = "clearing_obligation"
	FieldCentralCounterparty  = "central_counterparty"
	FieldClearingTimestamp    = "clearing_timestamp"
	FieldNotionalAmount       = "notional_amount"
	FieldNotionalCurrency     = "notional_currency"
	FieldOptionType           = "option_type"
	FieldOptionStyle          = "option_style"
	FieldStrikePrice          = "strike_price"
	FieldContractType         = "contract_type"
	FieldFixedRate            = "fixed_rate"
	FieldFloatingRate         = "floating_rate"
	FieldUTI                  = "uti"
)

// notionalCap is the upper bound accepted for notional amounts.
var notionalCap = decimal.New(1, 12) // 1e12

func defaultLogicalRules() []LogicalRule {
	return []LogicalRule{
		{ID: RuleDateSequence, Severity: models.SeverityCritical, Check: checkDateSequence},
		{ID: RuleClearingData, Severity: models.SeverityMajor, Check: checkClearingData},
		{ID: RuleClearingObligation, Severity: models.SeverityMajor, Check: checkClearingObligation},
		{ID: RuleNotionalPresence, Severity: models.SeverityMajor, Check: checkNotionalPresence},
		{ID: RuleNotionalRange, Severity: models.SeverityMajor, Check: checkNotionalRange},
		{ID: RuleOptionPresence, Severity: models.SeverityMajor, Check: checkOptionPresence},
		{ID: RuleSwapLegRate, Severity: models.SeverityMajor, Check: checkSwapLegRate},
	}
}

func present(rec models.Record, field string) (string, bool) {
	v, ok := rec.Value(field)
	return v, ok && v != ""
}

// date parses a value as a calendar date, accepting a full timestamp and
// truncating it. Unparseable values are skipped here; the format phase
// already flags them.
func date(rec models.Record, field string) (time.Time, bool) {
	v, ok := present(rec, field)
	if !ok {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC().Truncate(24 * time.Hour), true
	}
	if d, err := time.Parse("2006-01-02", v); err == nil {
		return d, true
	}
	return time.Time{}, false
}

func boolean(rec models.Record, field string) (val, ok bool) {
	v, ok := present(rec, field)
	if !ok {
		return false, false
	}
	switch v {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// checkDateSequence enforces execution ≤ effective ≤ expiration and
// earlyTermination < expiration. At most one violation per record, on the
// first offending pair.
func checkDateSequence(rec models.Record) ([]Violation, error) {
	exec, hasExec := date(rec, FieldExecutionTimestamp)
	eff, hasEff := date(rec, FieldEffectiveDate)
	exp, hasExp := date(rec, FieldExpirationDate)
	early, hasEarly := date(rec, FieldEarlyTerminationDate)

	switch {
	case hasExec && hasEff && exec.After(eff):
		return violation(FieldExecutionTimestamp, rec), nil
	case hasEff && hasExp && eff.After(exp):
		return violation(FieldEffectiveDate, rec), nil
	case hasEarly && hasExp && !early.Before(exp):
		return violation(FieldEarlyTerminationDate, rec), nil
	}
	return nil, nil
}

func checkClearingData(rec models.Record) ([]Violation, error) {
	cleared, ok := boolean(rec, FieldCleared)
	if !ok || !cleared {
		return nil, nil
	}
	var out []Violation
	if _, ok := present(rec, FieldCentralCounterparty); !ok {
		out = append(out, Violation{FieldName: FieldCentralCounterparty})
	}
	if _, ok := present(rec, FieldClearingTimestamp); !ok {
		out = append(out, Violation{FieldName: FieldClearingTimestamp})
	}
	return out, nil
}

func checkClearingObligation(rec models.Record) ([]Violation, error) {
	obligation, okO := boolean(rec, FieldClearingObligation)
	cleared, okC := boolean(rec, FieldCleared)
	if okO && okC && obligation && !cleared {
		return violation(FieldCleared, rec), nil
	}
	return nil, nil
}

func checkNotionalPresence(rec models.Record) ([]Violation, error) {
	_, hasAmount := present(rec, FieldNotionalAmount)
	_, hasCurrency := present(rec, FieldNotionalCurrency)
	if hasAmount != hasCurrency {
		missing := FieldNotionalCurrency
		if hasCurrency {
			missing = FieldNotionalAmount
		}
		return []Violation{{FieldName: missing}}, nil
	}
	return nil, nil
}

func checkNotionalRange(rec models.Record) ([]Violation, error) {
	v, ok := present(rec, FieldNotionalAmount)
	if !ok {
		return nil, nil
	}
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return nil, nil // format phase flags unparseable decimals
	}
	if amount.IsNegative() || amount.GreaterThan(notionalCap) {
		return violation(FieldNotionalAmount, rec), nil
	}
	return nil, nil
}

func checkOptionPresence(rec models.Record) ([]Violation, error) {
	fields := []string{FieldOptionType, FieldOptionStyle, FieldStrikePrice}
	n := 0
	var missing string
	for _, f := range fields {
		if _, ok := present(rec, f); ok {
			n++
		} else {
			missing = f
		}
	}
	if n == 0 || n == len(fields) {
		return nil, nil
	}
	return []Violation{{FieldName: missing}}, nil
}

// checkSwapLegRate applies only to swap contracts: exactly one of the
// fixed and floating rate fields must be populated.
func checkSwapLegRate(rec models.Record) ([]Violation, error) {
	if ct, ok := present(rec, FieldContractType); !ok || ct != "SWAP" {
		return nil, nil
	}
	_, hasFixed := present(rec, FieldFixedRate)
	_, hasFloating := present(rec, FieldFloatingRate)
	if hasFixed == hasFloating {
		return violation(FieldFixedRate, rec), nil
	}
	return nil, nil
}

func violation(field string, rec models.Record) []Violation {
	v, _ := rec.Value(field)
	return []Violation{{FieldName: field, SampleValue: v}}
}
