// Package store defines the Ledger interface for recording expanded plans
// and the status of their runs.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvandessel/netsweep/internal/sweep"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusPending RunStatus = "pending" // Not yet attempted
	StatusRunning RunStatus = "running" // Handed to a simulator
	StatusDone    RunStatus = "done"    // Simulator returned metrics
	StatusFailed  RunStatus = "failed"  // Simulator returned an error
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts a user-supplied status. The empty string means any.
func ParseStatus(s string) (RunStatus, error) {
	if s == "" {
		return "", nil
	}
	st := RunStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid run status %q (must be pending, running, done, or failed)", s)
	}
	return st, nil
}

// Plan is an expanded configuration file as recorded in the ledger.
type Plan struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`             // config file base name
	Source     string          `json:"source,omitempty"` // path the config was loaded from
	ConfigHash string          `json:"config_hash"`      // sha256 of Config
	Config     json.RawMessage `json:"config"`           // normalized configuration
	RunCount   int             `json:"run_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Run is one run of a plan with its latest outcome.
type Run struct {
	PlanID     string             `json:"plan_id"`
	Index      int                `json:"index"`
	Experiment string             `json:"experiment"`
	Repeat     int                `json:"repeat"`
	Label      string             `json:"label"`
	Spec       json.RawMessage    `json:"spec"`
	Status     RunStatus          `json:"status"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// NewRun builds a pending ledger entry for spec.
func NewRun(spec sweep.RunSpec) (Run, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return Run{}, fmt.Errorf("encoding run %d: %w", spec.Index, err)
	}
	return Run{
		Index:      spec.Index,
		Experiment: spec.Experiment,
		Repeat:     spec.Repeat,
		Label:      spec.Label(),
		Spec:       raw,
		Status:     StatusPending,
	}, nil
}

// DecodeSpec returns the run specification stored with r.
func (r Run) DecodeSpec() (sweep.RunSpec, error) {
	var spec sweep.RunSpec
	if err := json.Unmarshal(r.Spec, &spec); err != nil {
		return sweep.RunSpec{}, fmt.Errorf("decoding run %d: %w", r.Index, err)
	}
	return spec, nil
}

// Outcome is the result of attempting a run.
type Outcome struct {
	Status  RunStatus
	Metrics map[string]float64
	Error   string
}

// Ledger records plans and run outcomes.
type Ledger interface {
	// SavePlan stores a plan and its runs. An empty plan ID is assigned, and
	// the stored plan is returned. Saving an ID that exists is an error.
	SavePlan(ctx context.Context, plan Plan, runs []Run) (Plan, error)

	// GetPlan returns the plan with the given ID, or nil if there is none.
	GetPlan(ctx context.Context, id string) (*Plan, error)

	// ListPlans returns all plans, newest first.
	ListPlans(ctx context.Context) ([]Plan, error)

	// DeletePlan removes a plan and its runs.
	DeletePlan(ctx context.Context, id string) error

	// ListRuns returns a plan's runs in index order. An empty status matches
	// every run.
	ListRuns(ctx context.Context, planID string, status RunStatus) ([]Run, error)

	// CountRuns returns the number of runs in each status.
	CountRuns(ctx context.Context, planID string) (map[RunStatus]int, error)

	// MarkRunning moves a run to running and stamps its start time.
	MarkRunning(ctx context.Context, planID string, index int) error

	// RecordResult stores a run's outcome and stamps its finish time.
	RecordResult(ctx context.Context, planID string, index int, out Outcome) error

	Close() error
}
