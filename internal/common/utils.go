package common

import "strings"

// NormalizeName collapses runs of whitespace in user input to single spaces
// and trims both ends.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HasAnyPrefix reports whether s starts with any of the prefixes.
func HasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
