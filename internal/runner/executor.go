package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/netsweep/internal/logging"
	"github.com/nvandessel/netsweep/internal/store"
)

// Options control an execution.
type Options struct {
	// Resume skips runs already recorded as done.
	Resume bool

	// StopOnError ends the execution at the first failed run.
	StopOnError bool

	// Progress, if set, is called after each run is recorded.
	Progress func(run store.Run, out store.Outcome)
}

// Summary counts what an execution did.
type Summary struct {
	PlanID   string `json:"plan_id"`
	Total    int    `json:"total"`
	Skipped  int    `json:"skipped"`
	Done     int    `json:"done"`
	Failed   int    `json:"failed"`
	Canceled bool   `json:"canceled,omitempty"`
}

// Executor feeds the runs of a stored plan to a Simulator, one at a time.
type Executor struct {
	ledger store.Ledger
	sim    Simulator
	logger *slog.Logger
	events *logging.EventLogger
	opts   Options
}

// NewExecutor creates an executor. logger and events may be nil.
func NewExecutor(ledger store.Ledger, sim Simulator, logger *slog.Logger, events *logging.EventLogger, opts Options) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		ledger: ledger,
		sim:    sim,
		logger: logger,
		events: events,
		opts:   opts,
	}
}

// Execute runs the plan's runs in index order. Cancellation is checked
// between runs; a canceled execution returns the context error and a partial
// summary. Simulator failures are recorded on the run and only returned
// when StopOnError is set.
func (e *Executor) Execute(ctx context.Context, planID string) (Summary, error) {
	plan, err := e.ledger.GetPlan(ctx, planID)
	if err != nil {
		return Summary{}, err
	}
	if plan == nil {
		return Summary{}, fmt.Errorf("plan not found: %s", planID)
	}

	runs, err := e.ledger.ListRuns(ctx, planID, "")
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{PlanID: planID, Total: len(runs)}
	e.logger.Info("executing plan", "plan", planID, "name", plan.Name, "runs", len(runs), "resume", e.opts.Resume)
	e.events.Log("plan_started", map[string]any{"plan_id": planID, "runs": len(runs)})

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			sum.Canceled = true
			e.finish(sum)
			return sum, err
		}
		if e.opts.Resume && run.Status == store.StatusDone {
			sum.Skipped++
			continue
		}

		out, err := e.runOne(ctx, planID, run)
		if err != nil {
			return sum, err
		}

		switch out.Status {
		case store.StatusDone:
			sum.Done++
		case store.StatusFailed:
			sum.Failed++
		}
		if e.opts.Progress != nil {
			e.opts.Progress(run, out)
		}

		if out.Status == store.StatusFailed {
			if ctx.Err() != nil {
				sum.Canceled = true
				e.finish(sum)
				return sum, ctx.Err()
			}
			if e.opts.StopOnError {
				e.finish(sum)
				return sum, fmt.Errorf("run %d (%s) failed: %s", run.Index, run.Label, out.Error)
			}
		}
	}

	e.finish(sum)
	return sum, nil
}

// runOne simulates a single run and records its outcome. The returned error
// is a ledger failure; simulator failures are part of the outcome.
func (e *Executor) runOne(ctx context.Context, planID string, run store.Run) (store.Outcome, error) {
	spec, err := run.DecodeSpec()
	if err != nil {
		return store.Outcome{}, err
	}

	if err := e.ledger.MarkRunning(ctx, planID, run.Index); err != nil {
		return store.Outcome{}, err
	}
	e.logger.Debug("run started", "plan", planID, "run", run.Index, "label", run.Label)
	e.events.Log("run_started", map[string]any{"plan_id": planID, "index": run.Index, "label": run.Label})

	var out store.Outcome
	res, simErr := e.sim.Simulate(WithPlanID(ctx, planID), spec)
	if simErr != nil {
		out = store.Outcome{Status: store.StatusFailed, Error: simErr.Error()}
		e.logger.Warn("run failed", "plan", planID, "run", run.Index, "error", simErr)
	} else {
		out = store.Outcome{Status: store.StatusDone, Metrics: res.Metrics}
		e.logger.Debug("run done", "plan", planID, "run", run.Index, "metrics", len(res.Metrics))
	}

	// Record even when ctx is canceled so the run does not stay "running".
	if err := e.ledger.RecordResult(context.WithoutCancel(ctx), planID, run.Index, out); err != nil {
		return store.Outcome{}, err
	}
	e.events.Log("run_finished", map[string]any{
		"plan_id": planID,
		"index":   run.Index,
		"status":  string(out.Status),
		"metrics": out.Metrics,
		"error":   out.Error,
	})
	return out, nil
}

func (e *Executor) finish(sum Summary) {
	e.logger.Info("plan finished", "plan", sum.PlanID, "done", sum.Done, "failed", sum.Failed,
		"skipped", sum.Skipped, "canceled", sum.Canceled)
	e.events.Log("plan_finished", map[string]any{
		"plan_id":  sum.PlanID,
		"done":     sum.Done,
		"failed":   sum.Failed,
		"skipped":  sum.Skipped,
		"canceled": sum.Canceled,
	})
}
