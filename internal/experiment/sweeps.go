package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Sweeps maps dotted parameter paths to the values they take. Entries keep
// the order in which they appear in the file, which fixes the order of the
// cross product.
type Sweeps struct {
	entries *orderedmap.OrderedMap[string, SweepValues]
}

// NewSweeps builds a Sweeps from entries, keeping their order.
func NewSweeps(entries ...SweepEntry) Sweeps {
	var s Sweeps
	for _, e := range entries {
		s.Set(e.Path, e.Values)
	}
	return s
}

// SweepEntry is one path/values pair.
type SweepEntry struct {
	Path   string
	Values SweepValues
}

// Set adds or replaces the values for path. New paths go last.
func (s *Sweeps) Set(path string, v SweepValues) {
	if s.entries == nil {
		s.entries = orderedmap.New[string, SweepValues]()
	}
	s.entries.Set(path, v)
}

// Get returns the values swept for path.
func (s Sweeps) Get(path string) (SweepValues, bool) {
	if s.entries == nil {
		return SweepValues{}, false
	}
	return s.entries.Get(path)
}

// Len returns the number of swept paths.
func (s Sweeps) Len() int {
	if s.entries == nil {
		return 0
	}
	return s.entries.Len()
}

// Entries returns the path/values pairs in file order.
func (s Sweeps) Entries() []SweepEntry {
	if s.entries == nil {
		return nil
	}
	out := make([]SweepEntry, 0, s.entries.Len())
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, SweepEntry{Path: pair.Key, Values: pair.Value})
	}
	return out
}

// Equal reports whether both sweeps list the same paths in the same order
// with the same values.
func (s Sweeps) Equal(other Sweeps) bool {
	a, b := s.Entries(), other.Entries()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || !a[i].Values.Equal(b[i].Values) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler, preserving entry order.
func (s Sweeps) MarshalJSON() ([]byte, error) {
	if s.entries == nil {
		return []byte("{}"), nil
	}
	return s.entries.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler, preserving entry order.
func (s *Sweeps) UnmarshalJSON(data []byte) error {
	entries := orderedmap.New[string, SweepValues]()
	if err := entries.UnmarshalJSON(data); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

// JSONSchema describes a sweeps object for schema reflection: every value is
// either a list of numbers or a {min, max, count} range.
func (Sweeps) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		AdditionalProperties: &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{
					Type:  "array",
					Items: &jsonschema.Schema{Type: "number"},
				},
				{
					Type:     "object",
					Required: []string{"min", "max", "count"},
				},
			},
		},
	}
}

// SweepValues is either a literal list of values or a range descriptor.
type SweepValues struct {
	List  []float64
	Range *Range
}

// Range describes count evenly spaced values from Min to Max inclusive.
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ListOf returns literal sweep values.
func ListOf(values ...float64) SweepValues {
	return SweepValues{List: values}
}

// RangeOf returns a range sweep.
func RangeOf(lo, hi float64, count int) SweepValues {
	return SweepValues{Range: &Range{Min: lo, Max: hi, Count: count}}
}

// Values returns the concrete values in sweep order.
func (v SweepValues) Values() []float64 {
	if v.Range != nil {
		return RangeValues(v.Range.Min, v.Range.Max, v.Range.Count)
	}
	return slices.Clone(v.List)
}

// At returns the i-th value in sweep order without materializing a range.
// i must be in [0, Len()).
func (v SweepValues) At(i int) float64 {
	if v.Range != nil {
		return v.Range.At(i)
	}
	return v.List[i]
}

// Len returns the number of values without materializing a range.
func (v SweepValues) Len() int {
	if v.Range != nil {
		return max(v.Range.Count, 0)
	}
	return len(v.List)
}

// Equal reports whether v and other describe the same sweep in the same form.
func (v SweepValues) Equal(other SweepValues) bool {
	if (v.Range == nil) != (other.Range == nil) {
		return false
	}
	if v.Range != nil {
		return *v.Range == *other.Range
	}
	return slices.Equal(v.List, other.List)
}

// MarshalJSON implements json.Marshaler.
func (v SweepValues) MarshalJSON() ([]byte, error) {
	if v.Range != nil {
		return json.Marshal(v.Range)
	}
	if v.List == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.List)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *SweepValues) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty sweep value")
	}

	switch trimmed[0] {
	case '[':
		var list []float64
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("sweep list must contain only numbers: %w", err)
		}
		*v = SweepValues{List: list}
	case '{':
		var r Range
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return fmt.Errorf("sweep range must be {min, max, count}: %w", err)
		}
		*v = SweepValues{Range: &r}
	default:
		return fmt.Errorf("sweep must be a list of values or a {min, max, count} range, got %s", trimmed)
	}
	return nil
}

// At returns the i-th of the range's values. The first value is Min and
// the last is exactly Max.
func (r Range) At(i int) float64 {
	if i == r.Count-1 && r.Count > 1 {
		return r.Max
	}
	if i == 0 {
		return r.Min
	}
	step := (r.Max - r.Min) / float64(r.Count-1)
	return r.Min + float64(i)*step
}

// RangeValues returns count evenly spaced values from lo to hi. The first
// value is lo and the last is exactly hi; count == 1 yields [lo] and a count
// below 1 yields nothing.
func RangeValues(lo, hi float64, count int) []float64 {
	if count < 1 {
		return nil
	}
	r := Range{Min: lo, Max: hi, Count: count}
	out := make([]float64, count)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}
