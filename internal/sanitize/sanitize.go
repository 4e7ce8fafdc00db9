// Package sanitize cleans free text taken from experiment files (names,
// error messages) before it is handed to an MCP client, where it ends up in
// an agent's context.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxNameLength is the maximum length of an experiment name or run label.
const MaxNameLength = 200

// MaxMessageLength is the maximum length of an error or status message.
const MaxMessageLength = 2000

var (
	// reXMLTag matches XML/HTML tags, including processing instructions.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reTripleBacktick matches code fence markers.
	reTripleBacktick = regexp.MustCompile("```+")

	// reWhitespace matches runs of whitespace, newlines included.
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Name reduces s to a single clean line: control characters and tags are
// removed, whitespace is collapsed and the result is capped at MaxNameLength.
func Name(s string) string {
	s = clean(s)
	s = reWhitespace.ReplaceAllString(s, " ")
	return truncate(strings.TrimSpace(s), MaxNameLength)
}

// Message cleans multi-line text, keeping newlines and tabs.
func Message(s string) string {
	return truncate(strings.TrimSpace(clean(s)), MaxMessageLength)
}

func clean(s string) string {
	if s == "" {
		return ""
	}
	s = stripControlChars(s)
	s = reXMLTag.ReplaceAllString(s, "")
	return reTripleBacktick.ReplaceAllString(s, "`")
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// stripControlChars removes ASCII control characters except \n and \t.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
