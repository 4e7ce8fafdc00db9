// Package experiment loads and validates experiment configuration files.
//
// A configuration file is JSON extended with /* */ and // comments. It holds
// the base network parameters (data, topology, input, output) and an ordered
// list of experiments, each of which sweeps some of those parameters.
package experiment

import (
	"fmt"
	"maps"
	"strings"
)

// ExperimentConfig is the root of a configuration file.
type ExperimentConfig struct {
	// Data describes the sample dimensions (n_bits, n_ones_in, n_samples, ...).
	// The key set is open and differs between files.
	Data map[string]float64 `json:"data"`

	// Topology holds neuron model parameters and the synaptic weight.
	Topology Topology `json:"topology"`

	// Input and Output hold stimulus/response timing parameters.
	Input  map[string]float64 `json:"input"`
	Output map[string]float64 `json:"output"`

	// Seed is the optional base seed from which per-run seeds are derived.
	Seed *int64 `json:"seed,omitempty"`

	Experiments []ExperimentSpec `json:"experiments"`
}

// Topology describes the neuron population.
type Topology struct {
	Params       map[string]float64 `json:"params,omitempty"`
	ParamNoise   map[string]float64 `json:"param_noise,omitempty"`
	NeuronType   string             `json:"neuron_type,omitempty"`
	W            *float64           `json:"w,omitempty"`
	SigmaW       *float64           `json:"sigma_w,omitempty" jsonschema:"minimum=0"`
	Multiplicity *int               `json:"multiplicity,omitempty" jsonschema:"minimum=1"`
}

// ExperimentSpec is one experiment: a named set of sweeps and a repeat count.
type ExperimentSpec struct {
	Name   string `json:"name"`
	Sweeps Sweeps `json:"sweeps,omitempty"`
	Repeat *int   `json:"repeat,omitempty" jsonschema:"minimum=1"`
}

// Repeats returns the number of runs per parameter combination.
func (e ExperimentSpec) Repeats() int {
	if e.Repeat == nil {
		return 1
	}
	return *e.Repeat
}

// Parameters is the base configuration without the experiment list. Runs
// carry a resolved copy of it.
type Parameters struct {
	Data     map[string]float64 `json:"data"`
	Topology Topology           `json:"topology"`
	Input    map[string]float64 `json:"input"`
	Output   map[string]float64 `json:"output"`
}

// Base returns a deep copy of the base parameters.
func (c *ExperimentConfig) Base() Parameters {
	return c.params().Clone()
}

// params returns a view sharing c's maps. Callers must not mutate it.
func (c *ExperimentConfig) params() Parameters {
	return Parameters{
		Data:     c.Data,
		Topology: c.Topology,
		Input:    c.Input,
		Output:   c.Output,
	}
}

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	return Parameters{
		Data:     maps.Clone(p.Data),
		Topology: p.Topology.Clone(),
		Input:    maps.Clone(p.Input),
		Output:   maps.Clone(p.Output),
	}
}

// Clone returns a deep copy of t.
func (t Topology) Clone() Topology {
	out := Topology{
		Params:     maps.Clone(t.Params),
		ParamNoise: maps.Clone(t.ParamNoise),
		NeuronType: t.NeuronType,
	}
	if t.W != nil {
		w := *t.W
		out.W = &w
	}
	if t.SigmaW != nil {
		s := *t.SigmaW
		out.SigmaW = &s
	}
	if t.Multiplicity != nil {
		m := *t.Multiplicity
		out.Multiplicity = &m
	}
	return out
}

// Get returns the value at a dotted parameter path such as "data.n_bits" or
// "topology.params.tau_m". The second result is false when the path does not
// name an existing leaf.
func (p Parameters) Get(path string) (float64, bool) {
	section, rest, ok := strings.Cut(path, ".")
	if !ok || rest == "" {
		return 0, false
	}

	switch section {
	case "data":
		v, ok := p.Data[rest]
		return v, ok
	case "input":
		v, ok := p.Input[rest]
		return v, ok
	case "output":
		v, ok := p.Output[rest]
		return v, ok
	case "topology":
		return p.Topology.get(rest)
	}
	return 0, false
}

func (t Topology) get(rest string) (float64, bool) {
	field, key, hasKey := strings.Cut(rest, ".")
	switch field {
	case "params":
		if !hasKey {
			return 0, false
		}
		v, ok := t.Params[key]
		return v, ok
	case "param_noise":
		if !hasKey {
			return 0, false
		}
		v, ok := t.ParamNoise[key]
		return v, ok
	}
	if hasKey {
		return 0, false
	}
	switch field {
	case "w":
		if t.W != nil {
			return *t.W, true
		}
	case "sigma_w":
		if t.SigmaW != nil {
			return *t.SigmaW, true
		}
	case "multiplicity":
		if t.Multiplicity != nil {
			return float64(*t.Multiplicity), true
		}
	}
	return 0, false
}

// Set overwrites the existing leaf at path. It never creates new keys: a path
// that Get cannot resolve is an error.
func (p *Parameters) Set(path string, v float64) error {
	if _, ok := p.Get(path); !ok {
		return fmt.Errorf("unknown parameter path %q", path)
	}

	section, rest, _ := strings.Cut(path, ".")
	switch section {
	case "data":
		p.Data[rest] = v
	case "input":
		p.Input[rest] = v
	case "output":
		p.Output[rest] = v
	case "topology":
		return p.Topology.set(rest, v)
	}
	return nil
}

func (t *Topology) set(rest string, v float64) error {
	field, key, _ := strings.Cut(rest, ".")
	switch field {
	case "params":
		t.Params[key] = v
	case "param_noise":
		t.ParamNoise[key] = v
	case "w":
		t.W = &v
	case "sigma_w":
		t.SigmaW = &v
	case "multiplicity":
		n, ok := asCount(v)
		if !ok {
			return fmt.Errorf("topology.multiplicity must be a positive integer, got %v", v)
		}
		t.Multiplicity = &n
	}
	return nil
}

// asCount reports whether v is a positive integer and returns it as an int.
func asCount(v float64) (int, bool) {
	n := int(v)
	if float64(n) != v || n < 1 {
		return 0, false
	}
	return n, true
}
