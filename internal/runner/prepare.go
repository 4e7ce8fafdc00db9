package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nvandessel/netsweep/internal/constants"
	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/store"
	"github.com/nvandessel/netsweep/internal/sweep"
)

// SavePlan records every run of plan in the ledger as pending. source is the
// config file path; its base name becomes the plan name.
func SavePlan(ctx context.Context, ledger store.Ledger, source string, cfg *experiment.ExperimentConfig, plan *sweep.Plan) (store.Plan, error) {
	config, err := experiment.Marshal(cfg)
	if err != nil {
		return store.Plan{}, fmt.Errorf("encoding config: %w", err)
	}

	if plan.Len() > constants.MaxPlanRuns {
		return store.Plan{}, fmt.Errorf("plan has %d runs, more than the %d a ledger plan may hold", plan.Len(), constants.MaxPlanRuns)
	}

	runs := make([]store.Run, 0, plan.Len())
	for spec := range plan.All() {
		r, err := store.NewRun(spec)
		if err != nil {
			return store.Plan{}, err
		}
		runs = append(runs, r)
	}

	name := filepath.Base(source)
	if source == "" {
		name = "config"
	}
	return ledger.SavePlan(ctx, store.Plan{
		Name:     name,
		Source:   source,
		Config:   config,
		RunCount: len(runs),
	}, runs)
}
