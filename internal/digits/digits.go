// Package digits derives the last significant digit of a price quote under a
// per-symbol decimal-precision model. Different volatility indices report
// prices with differing numbers of decimals, so naive extraction (multiply and
// modulo) breaks when precision varies; extraction here is string-based and
// precision-aware for compatibility with the contract settlement convention.
package digits

import (
	"strconv"
	"strings"
)

// DecimalPlaces returns the number of decimal digits in the shortest exact
// decimal representation of quote. "1287.4" → 1, "1287.45" → 2, "1287" → 0.
func DecimalPlaces(quote float64) int {
	s := strconv.FormatFloat(quote, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}

// LastDigit extracts the final decimal digit of quote at the given precision:
// the fractional part is right-padded with zeros until its length matches
// precision, and the final character is the digit. A quote of 1287.4 at
// precision 3 reads as "1287.400" and yields 0.
//
// precision 0 falls back to the last digit of the integer part; it only occurs
// before any fractional quote has been observed for the symbol.
func LastDigit(quote float64, precision int) int {
	s := strconv.FormatFloat(quote, 'f', -1, 64)

	intPart := s
	frac := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		frac = s[dot+1:]
	}

	if precision <= 0 {
		return int(intPart[len(intPart)-1] - '0')
	}

	for len(frac) < precision {
		frac += "0"
	}
	return int(frac[precision-1] - '0')
}
