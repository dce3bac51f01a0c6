package grading

import "strings"

// matchText compares a short-answer response against the key. Surrounding
// whitespace is trimmed on both sides; when caseSensitive is false the
// comparison is a simple Unicode case fold. No punctuation stripping and no
// Unicode normalization: the comparison stays deterministic and documented.
func matchText(correct, given string, caseSensitive bool) bool {
	c := strings.TrimSpace(correct)
	g := strings.TrimSpace(given)
	if caseSensitive {
		return c == g
	}
	return strings.EqualFold(c, g)
}
