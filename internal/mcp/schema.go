package mcp

import (
	"time"

	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/sweep"
)

// Expansion listing limits.
const (
	DefaultExpandLimit = 100
	MaxExpandLimit     = 1000
	DefaultRunsLimit   = 200
)

// SweepValidateInput defines the input for sweep_validate.
type SweepValidateInput struct {
	Path string `json:"path" jsonschema:"Experiment file path, relative to the project root"`
}

// SweepValidateOutput defines the output for sweep_validate.
type SweepValidateOutput struct {
	Path        string             `json:"path" jsonschema:"The file that was checked"`
	Valid       bool               `json:"valid" jsonschema:"Whether the file loaded and validated"`
	Experiments int                `json:"experiments" jsonschema:"Number of experiments in the file"`
	Runs        int                `json:"runs" jsonschema:"Total number of runs the file expands to"`
	Line        int                `json:"line,omitempty" jsonschema:"Line of a syntax error"`
	Column      int                `json:"column,omitempty" jsonschema:"Column of a syntax error"`
	Issues      []experiment.Issue `json:"issues,omitempty" jsonschema:"Schema and semantic violations by key path"`
	Message     string             `json:"message" jsonschema:"Human-readable result"`
}

// SweepExpandInput defines the input for sweep_expand.
type SweepExpandInput struct {
	Path       string `json:"path" jsonschema:"Experiment file path, relative to the project root"`
	Experiment string `json:"experiment,omitempty" jsonschema:"Only expand the experiment with this name"`
	Offset     int    `json:"offset,omitempty" jsonschema:"Skip this many runs (default 0)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum runs to return (default 100, max 1000)"`
}

// SweepExpandOutput defines the output for sweep_expand.
type SweepExpandOutput struct {
	Total       int                       `json:"total" jsonschema:"Number of runs in the (filtered) expansion"`
	Returned    int                       `json:"returned" jsonschema:"Number of runs in this response"`
	Truncated   bool                      `json:"truncated" jsonschema:"Whether more runs follow"`
	Experiments []sweep.ExperimentSummary `json:"experiments" jsonschema:"How each experiment expands"`
	Runs        []RunItem                 `json:"runs" jsonschema:"The runs, in execution order"`
}

// RunItem is one expanded run.
type RunItem struct {
	Index       int                `json:"index"`
	Experiment  string             `json:"experiment"`
	Combination int                `json:"combination"`
	Repeat      int                `json:"repeat"`
	Label       string             `json:"label"`
	Seed        *int64             `json:"seed,omitempty"`
	Assignments []sweep.Assignment `json:"assignments"`
}

// SweepPlansInput defines the input for sweep_plans.
type SweepPlansInput struct{}

// SweepPlansOutput defines the output for sweep_plans.
type SweepPlansOutput struct {
	Plans []PlanItem `json:"plans" jsonschema:"Recorded plans, newest first"`
	Count int        `json:"count" jsonschema:"Number of plans"`
}

// PlanItem summarizes a recorded plan.
type PlanItem struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Source    string         `json:"source,omitempty"`
	RunCount  int            `json:"run_count"`
	Status    map[string]int `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// SweepRunsInput defines the input for sweep_runs.
type SweepRunsInput struct {
	PlanID string `json:"plan_id" jsonschema:"ID of a recorded plan"`
	Status string `json:"status,omitempty" jsonschema:"Only runs in this status: pending, running, done or failed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum runs to return (default 200)"`
}

// SweepRunsOutput defines the output for sweep_runs.
type SweepRunsOutput struct {
	PlanID    string         `json:"plan_id"`
	Runs      []RunStatus    `json:"runs" jsonschema:"Runs in index order"`
	Count     int            `json:"count" jsonschema:"Number of matching runs"`
	Truncated bool           `json:"truncated" jsonschema:"Whether more runs matched than were returned"`
	Status    map[string]int `json:"status" jsonschema:"Run count per status for the whole plan"`
}

// RunStatus is the ledger view of one run.
type RunStatus struct {
	Index      int                `json:"index"`
	Label      string             `json:"label"`
	Status     string             `json:"status"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Error      string             `json:"error,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}
