package utils

import (
	"strings"
	"unicode"
)

// MaxLogStringLength caps user-provided strings written to logs
const MaxLogStringLength = 120

// SanitizeLogString makes a participant-controlled string safe to log:
// control characters become spaces and long input is truncated.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)

	if runes := []rune(sanitized); len(runes) > MaxLogStringLength {
		sanitized = string(runes[:MaxLogStringLength]) + "... (truncated)"
	}

	return sanitized
}
