package util

import (
	"regexp"
	"strings"
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// IsValidPhone reports whether s looks like an MSISDN.
func IsValidPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

// IsOneOf reports whether value case-insensitively equals one of values.
func IsOneOf(value string, values ...string) bool {
	for _, v := range values {
		if strings.EqualFold(value, v) {
			return true
		}
	}
	return false
}
