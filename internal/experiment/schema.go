package experiment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaVersion is the JSON Schema draft advertised by Schema.
const SchemaVersion = "http://json-schema.org/draft-07/schema#"

// reflectSchema derives the document schema from ExperimentConfig. Fields
// without omitempty are required, so the five top-level sections are too.
func reflectSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		Anonymous:                  true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: false,
	}
	s := r.Reflect(&ExperimentConfig{})
	s.Title = "netsweep experiment configuration"
	s.Description = "Base network parameters and the experiments that sweep them."
	return s
}

// Schema returns the configuration JSON Schema, indented for display.
func Schema() ([]byte, error) {
	s := reflectSchema()
	s.Version = SchemaVersion
	return json.MarshalIndent(s, "", "  ")
}

// compiledSchema is built once from the reflected schema. The $schema keyword
// is left out so gojsonschema picks its draft from the keywords used.
var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	s := reflectSchema()
	s.Version = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
})

// checkSchema validates a comment-free JSON document against the schema and
// returns the violations sorted by path.
func checkSchema(doc []byte) ([]Issue, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	issues := make([]Issue, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, issueFromResult(e))
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues, nil
}

// issueFromResult maps a gojsonschema error onto a dotted key path. Missing
// properties are reported at the path of the property itself.
func issueFromResult(e gojsonschema.ResultError) Issue {
	path := e.Field()
	if path == "(root)" {
		path = ""
	}
	if e.Type() == "required" {
		if prop, ok := e.Details()["property"].(string); ok {
			path = joinPath(path, prop)
			return Issue{Path: path, Reason: "required key is missing"}
		}
	}
	return Issue{Path: path, Reason: e.Description()}
}

func joinPath(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}
