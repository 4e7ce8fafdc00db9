package experiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nvandessel/netsweep/internal/jsonc"
)

// LoadFile reads and validates the configuration file at path. Errors name
// the file.
func LoadFile(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return load(path, data)
}

// Load parses and validates configuration text.
//
// The text is stripped of comments and checked for JSON syntax (ParseError),
// then checked against the document schema and the semantic invariants
// (ValidationError). Nothing is returned for an invalid document.
func Load(text []byte) (*ExperimentConfig, error) {
	return load("", text)
}

func load(file string, text []byte) (*ExperimentConfig, error) {
	stripped, err := jsonc.Strip(text)
	if err != nil {
		var uc *jsonc.UnterminatedCommentError
		if errors.As(err, &uc) {
			line, col := jsonc.Position(text, int64(uc.Offset))
			return nil, &ParseError{File: file, Line: line, Column: col, Err: err}
		}
		return nil, &ParseError{File: file, Line: 1, Column: 1, Err: err}
	}

	if err := checkSyntax(file, stripped); err != nil {
		return nil, err
	}

	issues, err := checkSchema(stripped)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, &ValidationError{File: file, Issues: issues}
	}

	var cfg ExperimentConfig
	if err := json.Unmarshal(stripped, &cfg); err != nil {
		return nil, &ValidationError{File: file, Issues: []Issue{decodeIssue(err)}}
	}

	if issues := cfg.issues(); len(issues) > 0 {
		return nil, &ValidationError{File: file, Issues: issues}
	}
	return &cfg, nil
}

// checkSyntax reports the first JSON syntax error with its line and column.
// Offsets in the stripped text equal offsets in the original.
func checkSyntax(file string, doc []byte) error {
	var probe any
	err := json.Unmarshal(doc, &probe)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := jsonc.Position(doc, syntaxErr.Offset)
		return &ParseError{File: file, Line: line, Column: col, Err: err}
	}
	return &ParseError{File: file, Line: 1, Column: 1, Err: err}
}

// decodeIssue turns a decoding failure on a schema-valid document into an
// issue, keeping the field path when the decoder reports one.
func decodeIssue(err error) Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return Issue{Path: typeErr.Field, Reason: fmt.Sprintf("cannot use %s as %s", typeErr.Value, typeErr.Type)}
	}
	return Issue{Reason: err.Error()}
}

// Marshal re-serializes a configuration as indented JSON. Comments are not
// preserved; loading the result yields an equal configuration.
func Marshal(c *ExperimentConfig) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
