// Package textcheck compares the plain-text output of script exercises.
package textcheck

import "strings"

// lineEndings rewrites Windows and classic Mac line endings to "\n".
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ValidateOutput reports whether user matches expected.
//
// Both sides are trimmed. Unless strict is set, line endings are normalized and
// every run of whitespace, newlines included, counts as a single space.
func ValidateOutput(user, expected string, strict bool) bool {
	if strict {
		return strings.TrimSpace(user) == strings.TrimSpace(expected)
	}
	return Canonical(user) == Canonical(expected)
}

// Canonical returns the non-strict comparison form of s.
func Canonical(s string) string {
	s = lineEndings.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
