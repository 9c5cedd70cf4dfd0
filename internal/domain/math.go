package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RatePrecision is the number of fractional digits stored for an exchange rate.
const RatePrecision = 6

// RoundRate rounds a rate to RatePrecision fractional digits.
func RoundRate(rate decimal.Decimal) decimal.Decimal {
	return rate.Round(RatePrecision)
}

// Convert multiplies amount by rate without rounding the result.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// FormatRate rounds to RatePrecision and strips trailing zeros.
func FormatRate(d decimal.Decimal) string {
	s := RoundRate(d).StringFixed(RatePrecision)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
