package extract

import (
	"regexp"
	"strings"
)

var excessNewlines = regexp.MustCompile(`\n{4,}`)

// Normalize canonicalizes extracted text: CRLF to LF, runs of four or more
// newlines collapsed to three, surrounding whitespace trimmed. Cursor
// offsets are byte positions into this normalized form, so it must be
// deterministic for a given input.
func Normalize(text string) string {
	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = excessNewlines.ReplaceAllString(t, "\n\n\n")
	return strings.TrimSpace(t)
}
