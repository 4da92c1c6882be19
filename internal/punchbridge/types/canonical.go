package types

import (
	"strconv"
	"strings"
)

// DigitsOnly strips every non-digit rune. "CFM-0022" -> "0022".
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CanonicalDeviceID is the join key between device punches and directory
// entries: digits only, leading zeros dropped. "CFM-0022", "0022" and "22"
// all yield "22". Returns "" when s carries no digits.
func CanonicalDeviceID(s string) string {
	d := DigitsOnly(s)
	if d == "" {
		return ""
	}
	if n, err := strconv.ParseUint(d, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	// Too long for uint64: trim zeros textually so the rule stays total.
	d = strings.TrimLeft(d, "0")
	if d == "" {
		return "0"
	}
	return d
}
