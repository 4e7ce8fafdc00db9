// Package backup exports plans and their run outcomes to portable archive
// files and imports them back into a ledger.
package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/netsweep/internal/store"
)

// Archive is the payload of an archive file.
type Archive struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Plan      store.Plan  `json:"plan"`
	Runs      []store.Run `json:"runs"`
}

// Export writes a plan and all its runs to path.
func Export(ctx context.Context, ledger store.Ledger, planID, path string, compress bool) (*Header, error) {
	plan, err := ledger.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("plan not found: %s", planID)
	}

	runs, err := ledger.ListRuns(ctx, planID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return WriteV2(path, &Archive{
		Version:   FormatV2,
		CreatedAt: time.Now().UTC(),
		Plan:      *plan,
		Runs:      runs,
	}, compress)
}

// ImportMode controls how Import treats a plan ID that already exists.
type ImportMode string

const (
	// ImportSkip leaves an existing plan untouched (default).
	ImportSkip ImportMode = "skip"
	// ImportReplace deletes the existing plan first.
	ImportReplace ImportMode = "replace"
	// ImportCopy stores the archive under a new plan ID.
	ImportCopy ImportMode = "copy"
)

// ParseImportMode validates a user-supplied mode. Empty means ImportSkip.
func ParseImportMode(s string) (ImportMode, error) {
	switch m := ImportMode(s); m {
	case "":
		return ImportSkip, nil
	case ImportSkip, ImportReplace, ImportCopy:
		return m, nil
	}
	return "", fmt.Errorf("invalid import mode %q (must be skip, replace, or copy)", s)
}

// ImportResult describes what Import did.
type ImportResult struct {
	PlanID   string `json:"plan_id"`
	Runs     int    `json:"runs"`
	Skipped  bool   `json:"skipped,omitempty"`
	Replaced bool   `json:"replaced,omitempty"`
}

// Import reads an archive of either format and stores its plan and runs.
func Import(ctx context.Context, ledger store.Ledger, path string, mode ImportMode) (*ImportResult, error) {
	a, err := ReadArchive(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", filepath.Base(path), err)
	}

	plan := a.Plan
	result := &ImportResult{PlanID: plan.ID, Runs: len(a.Runs)}

	existing, err := ledger.GetPlan(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing plan: %w", err)
	}
	if existing != nil {
		switch mode {
		case ImportReplace:
			if err := ledger.DeletePlan(ctx, plan.ID); err != nil {
				return nil, err
			}
			result.Replaced = true
		case ImportCopy:
			plan.ID = ""
		default:
			result.Skipped = true
			return result, nil
		}
	}

	saved, err := ledger.SavePlan(ctx, plan, a.Runs)
	if err != nil {
		return nil, fmt.Errorf("failed to import plan: %w", err)
	}
	result.PlanID = saved.ID
	return result, nil
}

// ArchivePath returns a timestamped archive file name in dir.
func ArchivePath(dir, planID string, now time.Time) string {
	short := planID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("netsweep-%s-%s.nsa", short, now.UTC().Format("20060102-150405")))
}
