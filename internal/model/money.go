package model

import (
	"math"
	"strconv"
)

// ToCents converts a major-unit price (e.g. 1200.5) to minor units.
// The catalog returns prices as JSON numbers in major units.
// Examples: 99.0 → 9900, 0.01 → 1, 0.129 → 13
func ToCents(major float64) int64 {
	return int64(math.Round(major * 100))
}

// FormatCents renders cents as a major-unit string with two decimals,
// prefixed by currency. Example: ("Rs. ", 120050) → "Rs. 1200.50"
func FormatCents(currency string, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	major := cents / 100
	minor := cents % 100
	frac := strconv.FormatInt(minor, 10)
	if minor < 10 {
		frac = "0" + frac
	}
	return currency + sign + strconv.FormatInt(major, 10) + "." + frac
}
