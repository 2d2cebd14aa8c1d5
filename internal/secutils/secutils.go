// Package secutils provides small, dependency-free helpers for sanitising
// text before it reaches a log line or an HTML response. Adapted from the
// teacher's internal/utils/security.go pattern of a regex pattern-list
// checked against untrusted strings.
package secutils

import "strings"

// SanitizeForLog neutralises log-injection attempts by collapsing newlines,
// carriage returns and tabs to spaces and stripping other control characters.
func SanitizeForLog(input string) string {
	if input == "" {
		return ""
	}

	sanitized := strings.ReplaceAll(input, "\n", " ")
	sanitized = strings.ReplaceAll(sanitized, "\r", " ")
	sanitized = strings.ReplaceAll(sanitized, "\t", " ")

	var b strings.Builder
	b.Grow(len(sanitized))
	for _, r := range sanitized {
		if r >= 32 || r == ' ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeForLogArray applies SanitizeForLog to every element of input.
func SanitizeForLogArray(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(input))
	for _, s := range input {
		out = append(out, SanitizeForLog(s))
	}
	return out
}
