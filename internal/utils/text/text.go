// Package text provides small text processing helpers shared by the parsers.
package text

// CountRunes counts Unicode characters in the given text. Multi-byte
// characters such as Japanese text and emoji count as one each.
func CountRunes(s string) int {
	return len([]rune(s))
}

// Truncate shortens text to at most maxRunes Unicode characters, appending
// an ellipsis when anything was cut. Non-positive limits return the text
// unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}
