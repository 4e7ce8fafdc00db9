// Package sweep expands experiment configurations into concrete runs.
//
// A Plan is computed once from a validated configuration and then enumerated
// lazily: each RunSpec is built on demand from its index, so iterating a
// plan twice yields the same runs in the same order.
package sweep

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/netsweep/internal/experiment"
)

// Assignment is one swept parameter and the value it takes in a run.
type Assignment struct {
	Path  string  `json:"path"`
	Value float64 `json:"value"`
}

// RunSpec is one concrete run: an experiment, a parameter combination and a
// repeat index, with the base parameters resolved for that combination.
type RunSpec struct {
	// Index is the run's position in the full expansion of its config file.
	Index int `json:"index"`

	Experiment      string `json:"experiment"`
	ExperimentIndex int    `json:"experiment_index"`
	Combination     int    `json:"combination"`
	Repeat          int    `json:"repeat"`

	// Seed is derived from the config seed and Index. Nil when the config has
	// no seed.
	Seed *int64 `json:"seed,omitempty"`

	Assignments []Assignment          `json:"assignments"`
	Params      experiment.Parameters `json:"params"`
}

// Label is a short human-readable identifier such as
// "Network size [data.n_bits=72] #1".
func (r RunSpec) Label() string {
	var b strings.Builder
	b.WriteString(r.Experiment)
	if len(r.Assignments) > 0 {
		b.WriteString(" [")
		for i, a := range r.Assignments {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Path)
			b.WriteByte('=')
			b.WriteString(strconv.FormatFloat(a.Value, 'g', -1, 64))
		}
		b.WriteByte(']')
	}
	fmt.Fprintf(&b, " #%d", r.Repeat)
	return b.String()
}

// MaxAxisValues caps how many values an Axis summary lists.
const MaxAxisValues = 20

// Axis summarizes one swept path. Values holds at most MaxAxisValues of its
// Count values; Range is set when the sweep was declared as a range.
type Axis struct {
	Path      string            `json:"path"`
	Count     int               `json:"count"`
	Range     *experiment.Range `json:"range,omitempty"`
	Values    []float64         `json:"values"`
	Truncated bool              `json:"truncated,omitempty"`
}

// dim is one swept path of a block. Values are computed on demand.
type dim struct {
	path   string
	values experiment.SweepValues
	n      int
}

func (d dim) summary() Axis {
	ax := Axis{Path: d.path, Count: d.n, Range: d.values.Range}
	shown := min(d.n, MaxAxisValues)
	ax.Values = make([]float64, shown)
	for i := range shown {
		ax.Values[i] = d.values.At(i)
	}
	ax.Truncated = shown < d.n
	return ax
}

// ExperimentSummary describes how one experiment expands.
type ExperimentSummary struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	Axes         []Axis `json:"axes"`
	Combinations int    `json:"combinations"`
	Repeat       int    `json:"repeat"`
	Runs         int    `json:"runs"`
	FirstRun     int    `json:"first_run"`
}

// block is the expansion of one experiment.
type block struct {
	index  int
	name   string
	dims   []dim
	combos int
	repeat int
	first  int // global index of the block's first run
	pos    int // position of the block's first run within the plan
}

func (b block) runs() int { return b.combos * b.repeat }

// Plan is the ordered expansion of a configuration.
type Plan struct {
	base   experiment.Parameters
	seed   *int64
	blocks []block
	total  int
}

// Expand validates cfg and computes its plan. The plan holds a private copy
// of the base parameters, so later changes to cfg do not affect it.
func Expand(cfg *experiment.ExperimentConfig) (*Plan, error) {
	if cfg == nil {
		return nil, fmt.Errorf("expand: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Plan{base: cfg.Base()}
	if cfg.Seed != nil {
		s := *cfg.Seed
		p.seed = &s
	}

	for i, exp := range cfg.Experiments {
		b := block{
			index:  i,
			name:   exp.Name,
			combos: 1,
			repeat: exp.Repeats(),
			first:  p.total,
			pos:    p.total,
		}
		for _, entry := range exp.Sweeps.Entries() {
			n := entry.Values.Len()
			if b.combos > math.MaxInt/n {
				return nil, fmt.Errorf("expand: experiment %q has too many combinations", exp.Name)
			}
			b.combos *= n
			b.dims = append(b.dims, dim{path: entry.Path, values: cloneValues(entry.Values), n: n})
		}
		if b.combos > math.MaxInt/b.repeat || p.total > math.MaxInt-b.runs() {
			return nil, fmt.Errorf("expand: experiment %q has too many runs", exp.Name)
		}
		p.blocks = append(p.blocks, b)
		p.total += b.runs()
	}
	return p, nil
}

func cloneValues(v experiment.SweepValues) experiment.SweepValues {
	if v.Range != nil {
		r := *v.Range
		return experiment.SweepValues{Range: &r}
	}
	return experiment.SweepValues{List: slices.Clone(v.List)}
}

// Len returns the number of runs in the plan.
func (p *Plan) Len() int { return p.total }

// At builds the run at position i of the plan.
func (p *Plan) At(i int) (RunSpec, error) {
	if i < 0 || i >= p.total {
		return RunSpec{}, fmt.Errorf("run %d out of range [0, %d)", i, p.total)
	}
	k := sort.Search(len(p.blocks), func(k int) bool {
		b := p.blocks[k]
		return b.pos+b.runs() > i
	})
	return p.build(p.blocks[k], i-p.blocks[k].pos)
}

// All yields every run in order. Each call starts a fresh enumeration.
func (p *Plan) All() iter.Seq[RunSpec] {
	return func(yield func(RunSpec) bool) {
		for _, b := range p.blocks {
			for local := range b.runs() {
				run, err := p.build(b, local)
				if err != nil {
					// Unreachable for a validated plan.
					panic(err)
				}
				if !yield(run) {
					return
				}
			}
		}
	}
}

// build resolves the local-th run of b. Runs are ordered by combination and
// then by repeat index; within a combination the last axis varies fastest.
func (p *Plan) build(b block, local int) (RunSpec, error) {
	combo := local / b.repeat
	run := RunSpec{
		Index:           b.first + local,
		Experiment:      b.name,
		ExperimentIndex: b.index,
		Combination:     combo,
		Repeat:          local % b.repeat,
		Assignments:     make([]Assignment, len(b.dims)),
		Params:          p.base.Clone(),
	}

	rest := combo
	for k := len(b.dims) - 1; k >= 0; k-- {
		d := b.dims[k]
		run.Assignments[k] = Assignment{Path: d.path, Value: d.values.At(rest % d.n)}
		rest /= d.n
	}
	for _, a := range run.Assignments {
		if err := run.Params.Set(a.Path, a.Value); err != nil {
			return RunSpec{}, fmt.Errorf("run %d: %w", run.Index, err)
		}
	}

	if p.seed != nil {
		s := DeriveSeed(*p.seed, run.Index)
		run.Seed = &s
	}
	return run, nil
}

// Experiments summarizes each experiment in the plan.
func (p *Plan) Experiments() []ExperimentSummary {
	out := make([]ExperimentSummary, 0, len(p.blocks))
	for _, b := range p.blocks {
		axes := make([]Axis, len(b.dims))
		for i, d := range b.dims {
			axes[i] = d.summary()
		}
		out = append(out, ExperimentSummary{
			Index:        b.index,
			Name:         b.name,
			Axes:         axes,
			Combinations: b.combos,
			Repeat:       b.repeat,
			Runs:         b.runs(),
			FirstRun:     b.first,
		})
	}
	return out
}

// Filter returns a plan with only the experiments called name. Runs keep
// their indices and seeds from the full plan. Names are not unique, so
// several experiments may match.
func (p *Plan) Filter(name string) (*Plan, error) {
	out := &Plan{base: p.base, seed: p.seed}
	for _, b := range p.blocks {
		if b.name != name {
			continue
		}
		b.pos = out.total
		out.blocks = append(out.blocks, b)
		out.total += b.runs()
	}
	if len(out.blocks) == 0 {
		return nil, fmt.Errorf("no experiment named %q", name)
	}
	return out, nil
}
