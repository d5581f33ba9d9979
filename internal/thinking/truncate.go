package thinking

import "strings"

// Truncate caps text to the last maxLines lines and then to the last maxChars
// characters. It reports whether either cap removed anything.
func Truncate(text string, maxLines, maxChars int) (string, bool) {
	truncated := false

	if maxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			text = strings.Join(lines[len(lines)-maxLines:], "\n")
			truncated = true
		}
	}

	if maxChars > 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			text = string(runes[len(runes)-maxChars:])
			truncated = true
		}
	}

	return text, truncated
}
