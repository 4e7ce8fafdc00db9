// Package jsonc strips JavaScript-style comments from JSON documents so the
// result can be handed to a strict JSON decoder.
package jsonc

import (
	"bytes"
	"fmt"
)

// UnterminatedCommentError reports a block comment with no closing "*/".
type UnterminatedCommentError struct {
	Offset int // byte offset of the opening "/*"
}

func (e *UnterminatedCommentError) Error() string {
	return fmt.Sprintf("unterminated block comment starting at offset %d", e.Offset)
}

// Strip returns a copy of src with every "/* ... */" block comment and every
// "// ..." line comment that lies outside a string literal overwritten with
// spaces. Line breaks inside comments are kept, so byte offsets and line
// numbers in the result are the same as in src.
//
// String literals are tracked with their escape sequences, which means a
// value such as "a/*b" survives untouched.
func Strip(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)

	inString := false
	escaped := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			end := bytes.Index(out[i+2:], []byte("*/"))
			if end < 0 {
				return nil, &UnterminatedCommentError{Offset: i}
			}
			stop := i + 2 + end + 2
			blank(out[i:stop])
			i = stop - 1
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			stop := len(out)
			if nl := bytes.IndexByte(out[i:], '\n'); nl >= 0 {
				stop = i + nl
			}
			blank(out[i:stop])
			i = stop - 1
		}
	}
	return out, nil
}

func blank(b []byte) {
	for i := range b {
		if b[i] != '\n' && b[i] != '\r' {
			b[i] = ' '
		}
	}
}

// Position converts a byte offset into a 1-based line and column.
// Offsets past the end of src are clamped to the end.
func Position(src []byte, offset int64) (line, col int) {
	if offset > int64(len(src)) {
		offset = int64(len(src))
	}
	if offset < 0 {
		offset = 0
	}
	line, col = 1, 1
	for _, c := range src[:offset] {
		if c == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
