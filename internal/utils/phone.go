package utils

import (
	"regexp"
	"strings"
)

var (
	phoneRegex    = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	nonDigitRegex = regexp.MustCompile(`[^\d+]`)
)

func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// NormalizePhone strips formatting and prefixes countryCode to numbers that
// carry no international prefix. A leading trunk zero is dropped.
func NormalizePhone(phone, countryCode string) string {
	cleaned := nonDigitRegex.ReplaceAllString(strings.TrimSpace(phone), "")
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "+") {
		return "+" + strings.ReplaceAll(cleaned[1:], "+", "")
	}
	cleaned = strings.ReplaceAll(cleaned, "+", "")
	if strings.HasPrefix(cleaned, "00") {
		return "+" + cleaned[2:]
	}
	cleaned = strings.TrimLeft(cleaned, "0")

	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return "+" + strings.TrimPrefix(countryCode, "+") + cleaned
}
