package extract

import (
	"regexp"
	"strings"
)

var (
	spaceRuns   = regexp.MustCompile(` {2,}`)
	newlineRuns = regexp.MustCompile(`\n{2,}`)
)

// Normalize collapses OCR whitespace artifacts into a canonical form.
// Tabs become spaces, runs of spaces and runs of newlines collapse to one,
// and the result is trimmed. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
