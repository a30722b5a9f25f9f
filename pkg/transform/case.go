// Package transform turns one analytics event into one flat warehouse row:
// snake_case conversion, recursive flattening of nested objects, and the
// deterministic event-to-table-name rule.
package transform

import "strings"

// SnakeCase converts a key to snake_case: camel humps split on case
// boundaries, every non-alphanumeric run collapsed to a single underscore.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	prevUnderscore := true // suppress a leading underscore
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r >= 'A' && r <= 'Z':
			if !prevUnderscore && needsBoundary(runes, i) {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevUnderscore = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
			}
			prevUnderscore = true
		}
	}

	return strings.TrimRight(b.String(), "_")
}

// needsBoundary reports whether an underscore belongs before the uppercase
// rune at position i: after a lowercase/digit ("fooBar"), or at the end of an
// acronym run ("HTTPServer" -> "http_server").
func needsBoundary(runes []rune, i int) bool {
	prev := runes[i-1]
	if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
		return true
	}
	if prev >= 'A' && prev <= 'Z' && i+1 < len(runes) {
		next := runes[i+1]
		return next >= 'a' && next <= 'z'
	}
	return false
}

// TableNameForEvent maps a track event name to its destination table name:
// lowercase, every run of characters outside [a-z0-9] replaced with a single
// underscore, leading and trailing underscores trimmed. Pure and idempotent.
func TableNameForEvent(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}

	return b.String()
}
