package experiment

import (
	"fmt"
	"strings"
)

// ParseError reports a file whose text is not valid JSON once comments are
// removed, or whose comments are malformed.
type ParseError struct {
	File   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s:%d:%d: %v", displayName(e.File), e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Issue is one schema violation, located by a dotted key path.
type Issue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Reason
	}
	return i.Path + ": " + i.Reason
}

// ValidationError reports a well-formed JSON document that violates the
// configuration schema. It lists every issue found.
type ValidationError struct {
	File   string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s", displayName(e.File))
	if len(e.Issues) == 0 {
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(e.Issues[0].String())
	if n := len(e.Issues) - 1; n > 0 {
		fmt.Fprintf(&b, " (and %d more)", n)
	}
	return b.String()
}

func displayName(file string) string {
	if file == "" {
		return "<input>"
	}
	return file
}
