package signal

import "strings"

const ellipsis = "…"

// Truncate shortens text to at most limit runes, ending in an ellipsis. It
// reports whether anything was cut.
func Truncate(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	if limit <= 1 {
		return ellipsis, true
	}
	kept := strings.TrimRight(string(runes[:limit-1]), " \t\r\n\v\f")
	if kept == "" {
		return ellipsis, true
	}
	return kept + ellipsis, true
}
