// Package validator sanitises incoming questions and recognises Norwegian
// and international technical-standard reference numbers by regex.
//
// Grounded on internal/utils/security.go's pattern-list style and the
// extraction regexes referenced throughout original_source/src/flow_manager.py.
package validator

import (
	"regexp"
	"strings"

	"github.com/kristoman/standardgpt/internal/errors"
)

const (
	minLength = 3
	maxLength = 1000
)

// dangerousPatterns mirrors the XSS/injection pattern list the teacher
// checks untrusted strings against, extended with the script/event-handler/
// path-traversal forms spec.md §4.1 names explicitly.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)exec\(`),
	regexp.MustCompile(`__\w+__`),
	regexp.MustCompile(`\.\./`),
}

var angleBrackets = regexp.MustCompile(`[<>]`)

// whitespaceRun collapses any run of Unicode whitespace to a single space.
var whitespaceRun = regexp.MustCompile(`\s+`)

// standardNumberPattern matches a StandardNumber per spec.md §3: 1-4
// alphabetic prefix segments (1-5 letters each, separated by space, hyphen,
// or slash), an alphanumeric/hyphen body, and an optional :year or +variant
// suffix.
var standardNumberPattern = regexp.MustCompile(
	`(?i)\b[A-Z]{1,5}(?:[ \-/][A-Z]{1,5}){0,3}[ \-]?[0-9][0-9A-Z\-]*(?::[0-9]{4}|\+[A-Z0-9]+)?\b`,
)

// Validate sanitises raw per spec.md §4.1 and returns the normalised text.
// The returned error is an *errors.AppError of KindValidation; it is never
// retriable.
func Validate(raw string) (string, error) {
	if raw == "" {
		return "", errors.NewValidationError("Spørsmål kan ikke være tomt")
	}

	normalised := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")

	if len([]rune(normalised)) < minLength {
		return "", errors.NewValidationError("Spørsmål må være minst 3 tegn langt")
	}
	if len([]rune(normalised)) > maxLength {
		return "", errors.NewValidationError("Spørsmål kan ikke være lengre enn 1000 tegn")
	}

	for _, r := range normalised {
		if r < 32 && r != '\t' {
			return "", errors.NewValidationError("Spørsmål inneholder ugyldige kontrolltegn")
		}
	}

	if angleBrackets.MatchString(normalised) {
		return "", errors.NewValidationError("Spørsmål inneholder ugyldige tegn")
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(normalised) {
			return "", errors.NewValidationError("Spørsmål inneholder ikke-tillatt innhold")
		}
	}

	return normalised, nil
}

// ValidateStandardNumbers upper-cases, filters by the StandardNumber regex,
// deduplicates and preserves first-seen order.
func ValidateStandardNumbers(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || len(s) > 50 {
			continue
		}
		if !standardNumberPattern.MatchString(s) {
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ExtractStandardsFromText scans text for every StandardNumber match,
// upper-cases and deduplicates them, preserving order of first appearance.
func ExtractStandardsFromText(text string) []string {
	matches := standardNumberPattern.FindAllString(text, -1)
	return ValidateStandardNumbers(matches)
}
