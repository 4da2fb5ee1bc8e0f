package utils

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeSaudiPhone converts local forms (05xxxxxxxx, 9665xxxxxxxx, +9665...)
// into +9665xxxxxxxx. It returns "" when the input is not a Saudi mobile number.
func NormalizeSaudiPhone(raw string) string {
	digits := nonDigits.ReplaceAllString(strings.TrimSpace(raw), "")
	switch {
	case strings.HasPrefix(digits, "009665") && len(digits) == 14:
		digits = digits[2:]
	case strings.HasPrefix(digits, "05") && len(digits) == 10:
		digits = "966" + digits[1:]
	case strings.HasPrefix(digits, "5") && len(digits) == 9:
		digits = "966" + digits
	}
	if strings.HasPrefix(digits, "9665") && len(digits) == 12 {
		return "+" + digits
	}
	return ""
}
