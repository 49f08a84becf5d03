package model

import (
	"regexp"
	"strings"
)

var (
	emailRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nationalIDRe = regexp.MustCompile(`^\d{12}$`)
	phoneRe      = regexp.MustCompile(`^0(3|5|7|8|9)\d{8}$`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

// NormalizePhone strips non-digits and canonicalizes Vietnamese numbers
// to the leading-zero form (84xxxxxxxxx → 0xxxxxxxxx).
func NormalizePhone(input string) string {
	s := nonDigitRe.ReplaceAllString(input, "")
	switch {
	case strings.HasPrefix(s, "84"):
		return "0" + s[2:]
	case strings.HasPrefix(s, "0"):
		return s
	case len(s) == 9:
		return "0" + s
	default:
		return s
	}
}

// IsValidPhone reports whether the input is a valid Vietnamese mobile
// number after normalization.
func IsValidPhone(input string) bool {
	return phoneRe.MatchString(NormalizePhone(input))
}

// IsValidEmail reports whether the input looks like an email address.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// IsValidNationalID reports whether the input is a 12-digit citizen ID.
func IsValidNationalID(id string) bool {
	return nationalIDRe.MatchString(strings.TrimSpace(id))
}

// NormalizeEmail lowercases and trims an email for unique-key comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeNationalID strips everything but digits.
func NormalizeNationalID(id string) string {
	return nonDigitRe.ReplaceAllString(strings.TrimSpace(id), "")
}

// MaskNationalID hides the middle digits of a 12-digit ID for display in
// admin responses. Returns an empty string for malformed input.
func MaskNationalID(id string) string {
	s := NormalizeNationalID(id)
	if len(s) != 12 {
		return ""
	}
	return s[:4] + "******" + s[10:]
}
