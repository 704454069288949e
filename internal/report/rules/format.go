package rules

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"repval/internal/report/models"
)

var (
	leiPattern = regexp.MustCompile(`^[A-Z0-9]{20}$`)
	// DSB-issued UPIs: 12 uppercase alphanumerics with the QZ prefix.
	upiPattern      = regexp.MustCompile(`^QZ[A-Z0-9]{10}$`)
	isinPattern     = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

func defaultFormatRules(c *Catalog) []FormatRule {
	return []FormatRule{
		{
			ID:       RuleLEIFormat,
			Severity: models.SeverityCritical,
			Valid:    leiPattern.MatchString,
		},
		{
			ID:       RuleISINFormat,
			Severity: models.SeverityCritical,
			Valid:    validISIN,
		},
		{
			ID:       RuleUPIFormat,
			Severity: models.SeverityMajor,
			Valid:    upiPattern.MatchString,
		},
		{
			ID:       RuleCurrencyCode,
			Severity: models.SeverityMajor,
			Valid: func(v string) bool {
				return currencyPattern.MatchString(v) && c.ValidCurrency(v)
			},
		},
		{
			ID:       RuleDateFormat,
			Severity: models.SeverityMajor,
			Valid:    validDate,
		},
		{
			ID:       RuleTimestampFormat,
			Severity: models.SeverityMajor,
			Valid:    validTimestamp,
		},
		{
			ID:       RuleDecimalFormat,
			Severity: models.SeverityMajor,
			Valid: func(v string) bool {
				_, err := decimal.NewFromString(v)
				return err == nil
			},
		},
		{
			ID:       RuleBooleanFormat,
			Severity: models.SeverityMajor,
			Valid: func(v string) bool {
				return v == "true" || v == "false"
			},
		},
	}
}

func validDate(v string) bool {
	_, err := time.Parse("2006-01-02", v)
	return err == nil
}

func validTimestamp(v string) bool {
	_, err := time.Parse(time.RFC3339, v)
	return err == nil
}

// validISIN verifies the 12-character shape and the ISO 6166 check digit:
// letters expand to two digits (A=10 .. Z=35), then the Luhn mod-10 sum
// over the expanded string must be divisible by ten.
func validISIN(v string) bool {
	if !isinPattern.MatchString(v) {
		return false
	}

	var digits []int
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r >= 'A' && r <= 'Z':
			n := int(r-'A') + 10
			digits = append(digits, n/10, n%10)
		default:
			return false
		}
	}

	sum := 0
	double := true // rightmost digit is the check digit; doubling starts beside it
	for i := len(digits) - 2; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	check := (10 - sum%10) % 10
	return digits[len(digits)-1] == check
}
