package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// validatePlan checks that runs form the complete, ordered run list of plan.
func validatePlan(plan Plan, runs []Run) error {
	if plan.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if len(plan.Config) == 0 {
		return fmt.Errorf("plan config is required")
	}
	if plan.RunCount != len(runs) {
		return fmt.Errorf("plan declares %d runs but %d were given", plan.RunCount, len(runs))
	}

	seen := make(map[int]bool, len(runs))
	for _, r := range runs {
		if r.Index < 0 {
			return fmt.Errorf("run index %d is negative", r.Index)
		}
		if seen[r.Index] {
			return fmt.Errorf("duplicate run index %d", r.Index)
		}
		seen[r.Index] = true
		if r.Status != "" && !r.Status.Valid() {
			return fmt.Errorf("run %d: invalid status %q", r.Index, r.Status)
		}
		if len(r.Spec) == 0 {
			return fmt.Errorf("run %d: spec is required", r.Index)
		}
	}
	return nil
}

// ConfigHash returns the hex sha256 of a normalized configuration.
func ConfigHash(config []byte) string {
	sum := sha256.Sum256(config)
	return hex.EncodeToString(sum[:])
}
