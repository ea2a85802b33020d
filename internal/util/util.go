// Package util provides common helpers for the simulator wire format.
package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// ParseFloats parses a vector rendered as whitespace- or comma-separated numbers.
// Surrounding quotes and brackets are ignored: "1 2 3", "[1, 2, 3]" and "1,2,3" all parse.
func ParseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(TrimQuotes(strings.TrimSpace(s)))
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatFloat renders v the way the simulator's reference client does:
// shortest round-trip digits, with a trailing ".0" on integral values.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return formatExp(v)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// formatExp renders exponents with at least two digits and an explicit sign, e.g. 1e-05.
func formatExp(v float64) string {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	digits := exp[1:]
	if len(digits) < 2 {
		digits = "0" + digits
	}
	return mant + "e" + string(sign) + digits
}

// FormatBool renders a boolean as "True" or "False".
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
