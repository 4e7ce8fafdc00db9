package experiment

import (
	"fmt"
)

// Validate checks the invariants that the document schema cannot express:
// required sections are present, every sweep path names an existing leaf of
// the base parameters, ranges have a positive count, lists are non-empty and
// repeat counts are positive.
func (c *ExperimentConfig) Validate() error {
	if issues := c.issues(); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func (c *ExperimentConfig) issues() []Issue {
	var issues []Issue
	add := func(path, format string, args ...any) {
		issues = append(issues, Issue{Path: path, Reason: fmt.Sprintf(format, args...)})
	}

	if c.Data == nil {
		add("data", "required key is missing")
	}
	if c.Input == nil {
		add("input", "required key is missing")
	}
	if c.Output == nil {
		add("output", "required key is missing")
	}
	if c.Topology.Multiplicity != nil && *c.Topology.Multiplicity < 1 {
		add("topology.multiplicity", "must be at least 1, got %d", *c.Topology.Multiplicity)
	}

	base := c.params()
	for i, exp := range c.Experiments {
		prefix := fmt.Sprintf("experiments.%d", i)
		if exp.Name == "" {
			add(prefix+".name", "must not be empty")
		}
		if exp.Repeat != nil && *exp.Repeat < 1 {
			add(prefix+".repeat", "must be a positive integer, got %d", *exp.Repeat)
		}

		for _, entry := range exp.Sweeps.Entries() {
			at := fmt.Sprintf("%s.sweeps[%q]", prefix, entry.Path)
			if _, ok := base.Get(entry.Path); !ok {
				add(at, "unknown parameter path %q", entry.Path)
				continue
			}

			v := entry.Values
			switch {
			case v.Range != nil && v.Range.Count < 1:
				add(at, "range count must be at least 1, got %d", v.Range.Count)
				continue
			case v.Range == nil && len(v.List) == 0:
				add(at, "value list must not be empty")
				continue
			}

			if entry.Path == "topology.multiplicity" {
				if x, ok := badCount(v); ok {
					add(at, "multiplicity values must be positive integers, got %v", x)
				}
			}
		}
	}
	return issues
}

// badCount returns the first value of v that is not a positive integer.
// A range is checked at its first, second and last value: with integral
// endpoints and step every value in between is a positive integer too.
func badCount(v SweepValues) (float64, bool) {
	idx := make([]int, 0, 3)
	if v.Range != nil {
		idx = append(idx, 0)
		if v.Range.Count > 2 {
			idx = append(idx, 1)
		}
		idx = append(idx, v.Range.Count-1)
	} else {
		for i := range v.List {
			idx = append(idx, i)
		}
	}
	for _, i := range idx {
		x := v.At(i)
		if _, ok := asCount(x); !ok {
			return x, true
		}
	}
	return 0, false
}
