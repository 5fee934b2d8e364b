package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxDisplayNameLength = 20

var (
	numericCodeRegex = regexp.MustCompile(`^[0-9]+$`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

func IsValidJoinCode(code string, digits int) bool {
	return len(code) == digits && numericCodeRegex.MatchString(code)
}

// NormalizeDisplayName trims and collapses whitespace. ok is false when the
// result is empty or longer than MaxDisplayNameLength runes.
func NormalizeDisplayName(name string) (normalized string, ok bool) {
	normalized = whitespaceRegex.ReplaceAllString(strings.TrimSpace(name), " ")
	if normalized == "" || utf8.RuneCountInString(normalized) > MaxDisplayNameLength {
		return "", false
	}
	return normalized, true
}

// ContainsControlChars reports whether s holds any Unicode control character.
func ContainsControlChars(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
