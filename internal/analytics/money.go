package analytics

import (
	"strconv"
	"strings"
)

// ParseMonetaryValue normalizes a Brazilian-formatted currency string
// ("R$ 1.234,56") to a float. The second return value is false when the
// input is empty or unparseable; callers must exclude such records from
// aggregation rather than treating them as zero.
func ParseMonetaryValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		// "1.234,56": dot is the thousands separator, comma the decimal.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		// "50,00": comma is the decimal separator.
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
