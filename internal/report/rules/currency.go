package rules

// iso4217 is the static reference table of active currency codes. Codes
// are data, not logic; a regulatory update means editing this table.
var iso4217 = func() map[string]struct{} {
	codes := []string{
		"AED", "ARS", "AUD", "BGN", "BHD", "BRL", "CAD", "CHF", "CLP", "CNY",
		"COP", "CZK", "DKK", "EGP", "EUR", "GBP", "HKD", "HUF", "IDR", "ILS",
		"INR", "ISK", "JPY", "KRW", "KWD", "MAD", "MXN", "MYR", "NOK", "NZD",
		"OMR", "PEN", "PHP", "PKR", "PLN", "QAR", "RON", "RSD", "SAR", "SEK",
		"SGD", "THB", "TRY", "TWD", "UAH", "USD", "UYU", "VND", "ZAR",
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}()
