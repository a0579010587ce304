package util

import (
	"strconv"
	"strings"
)

// FormatNumber renders v with comma thousands separators and at most three
// fraction digits, trailing zeros dropped: 65000 -> "65,000", 0.12345 -> "0.123".
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	out := groupThousands(intPart)
	if frac != "" {
		out += "." + frac
	}
	if out == "-0" {
		return "0"
	}
	return out
}

// FormatFixed renders v with exactly places fraction digits and no grouping.
func FormatFixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}

	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3 + 1)
	b.WriteString(sign)
	head := len(digits) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(digits[:head])
	for i := head; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
