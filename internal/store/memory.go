package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger implements Ledger for tests and dry runs.
type MemoryLedger struct {
	mu    sync.RWMutex
	plans map[string]Plan
	runs  map[string][]Run // sorted by index
	now   func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		plans: make(map[string]Plan),
		runs:  make(map[string][]Run),
		now:   time.Now,
	}
}

// SavePlan stores a plan and copies of its runs.
func (s *MemoryLedger) SavePlan(ctx context.Context, plan Plan, runs []Run) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = s.now().UTC()
	}
	if plan.ConfigHash == "" {
		plan.ConfigHash = ConfigHash(plan.Config)
	}
	if err := validatePlan(plan, runs); err != nil {
		return Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	if _, exists := s.plans[plan.ID]; exists {
		return Plan{}, fmt.Errorf("plan %s already exists", plan.ID)
	}

	stored := make([]Run, len(runs))
	for i, r := range runs {
		r.PlanID = plan.ID
		if r.Status == "" {
			r.Status = StatusPending
		}
		stored[i] = cloneRun(r)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })

	s.plans[plan.ID] = plan
	s.runs[plan.ID] = stored
	return plan, nil
}

// GetPlan retrieves a plan by ID. Returns nil if not found.
func (s *MemoryLedger) GetPlan(ctx context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.plans[id]
	if !exists {
		return nil, nil
	}
	return &plan, nil
}

// ListPlans returns all plans, newest first.
func (s *MemoryLedger) ListPlans(ctx context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := slices.Collect(maps.Values(s.plans))
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].CreatedAt.After(plans[j].CreatedAt)
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

// DeletePlan removes a plan and its runs.
func (s *MemoryLedger) DeletePlan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[id]; !exists {
		return fmt.Errorf("plan not found: %s", id)
	}
	delete(s.plans, id)
	delete(s.runs, id)
	return nil
}

// ListRuns returns a plan's runs in index order, optionally filtered by status.
func (s *MemoryLedger) ListRuns(ctx context.Context, planID string, status RunStatus) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Run
	for _, r := range s.runs[planID] {
		if status == "" || r.Status == status {
			out = append(out, cloneRun(r))
		}
	}
	return out, nil
}

// CountRuns returns the number of runs in each status.
func (s *MemoryLedger) CountRuns(ctx context.Context, planID string) (map[RunStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[RunStatus]int)
	for _, r := range s.runs[planID] {
		counts[r.Status]++
	}
	return counts, nil
}

// MarkRunning moves a run to running. Any earlier outcome is cleared.
func (s *MemoryLedger) MarkRunning(ctx context.Context, planID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.find(planID, index)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	r.Status = StatusRunning
	r.Metrics = nil
	r.Error = ""
	r.StartedAt = &now
	r.FinishedAt = nil
	return nil
}

// RecordResult stores a run's outcome.
func (s *MemoryLedger) RecordResult(ctx context.Context, planID string, index int, out Outcome) error {
	if out.Status != StatusDone && out.Status != StatusFailed {
		return fmt.Errorf("outcome status must be done or failed, got %q", out.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.find(planID, index)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	r.Status = out.Status
	r.Metrics = maps.Clone(out.Metrics)
	r.Error = out.Error
	r.FinishedAt = &now
	return nil
}

// Close is a no-op.
func (s *MemoryLedger) Close() error {
	return nil
}

// find returns the stored run. Callers must hold the write lock.
func (s *MemoryLedger) find(planID string, index int) (*Run, error) {
	runs := s.runs[planID]
	i := sort.Search(len(runs), func(i int) bool { return runs[i].Index >= index })
	if i == len(runs) || runs[i].Index != index {
		return nil, fmt.Errorf("run %d of plan %s not found", index, planID)
	}
	return &runs[i], nil
}

func cloneRun(r Run) Run {
	r.Spec = slices.Clone(r.Spec)
	r.Metrics = maps.Clone(r.Metrics)
	return r
}

// Compile-time interface checks.
var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*SQLiteLedger)(nil)
)
