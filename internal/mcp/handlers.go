package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/pathutil"
	"github.com/nvandessel/netsweep/internal/ratelimit"
	"github.com/nvandessel/netsweep/internal/sanitize"
	"github.com/nvandessel/netsweep/internal/store"
	"github.com/nvandessel/netsweep/internal/sweep"
)

// registerTools registers all sweep MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_validate",
		Description: "Load and validate an experiment file, reporting syntax errors or schema violations by key path",
	}, s.handleSweepValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_expand",
		Description: "Expand an experiment file into its ordered runs (cross product of sweeps times repeat), paged with offset and limit",
	}, s.handleSweepExpand)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_plans",
		Description: "List plans recorded in the run ledger with per-status run counts",
	}, s.handleSweepPlans)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_runs",
		Description: "List the runs of a recorded plan with their status, metrics and errors",
	}, s.handleSweepRuns)
}

// resolvePath makes p absolute against the project root and confines it to
// the allowed directories.
func (s *Server) resolvePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("'path' parameter is required")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	if err := pathutil.ValidatePath(p, s.allowedDirs); err != nil {
		return "", err
	}
	return p, nil
}

func (s *Server) handleSweepValidate(ctx context.Context, req *sdk.CallToolRequest, args SweepValidateInput) (_ *sdk.CallToolResult, _ SweepValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_validate", start, retErr, sanitizeToolParams(map[string]any{"path": args.Path}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_validate"); err != nil {
		return nil, SweepValidateOutput{}, err
	}

	path, err := s.resolvePath(args.Path)
	if err != nil {
		return nil, SweepValidateOutput{}, err
	}

	out := SweepValidateOutput{Path: args.Path}
	cfg, err := experiment.LoadFile(path)
	if err != nil {
		var pe *experiment.ParseError
		var ve *experiment.ValidationError
		switch {
		case errors.As(err, &pe):
			out.Line, out.Column = pe.Line, pe.Column
			out.Message = sanitize.Message(fmt.Sprintf("syntax error at line %d, column %d: %v", pe.Line, pe.Column, pe.Err))
		case errors.As(err, &ve):
			out.Issues = make([]experiment.Issue, len(ve.Issues))
			for i, is := range ve.Issues {
				out.Issues[i] = experiment.Issue{Path: sanitize.Name(is.Path), Reason: sanitize.Message(is.Reason)}
			}
			out.Message = fmt.Sprintf("%d validation issue(s); first: %s", len(out.Issues), out.Issues[0])
		case errors.Is(err, fs.ErrNotExist):
			return nil, SweepValidateOutput{}, fmt.Errorf("file not found: %s", pathutil.RedactPath(path))
		default:
			return nil, SweepValidateOutput{}, fmt.Errorf("failed to load %s", pathutil.RedactPath(path))
		}
		return nil, out, nil
	}

	plan, err := sweep.Expand(cfg)
	if err != nil {
		out.Message = sanitize.Message(err.Error())
		return nil, out, nil
	}

	out.Valid = true
	out.Experiments = len(cfg.Experiments)
	out.Runs = plan.Len()
	out.Message = fmt.Sprintf("%s is valid: %d experiment(s), %d run(s)", filepath.Base(path), out.Experiments, out.Runs)
	return nil, out, nil
}

func (s *Server) handleSweepExpand(ctx context.Context, req *sdk.CallToolRequest, args SweepExpandInput) (_ *sdk.CallToolResult, _ SweepExpandOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_expand", start, retErr, sanitizeToolParams(map[string]any{
			"path": args.Path, "experiment": args.Experiment, "offset": args.Offset, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_expand"); err != nil {
		return nil, SweepExpandOutput{}, err
	}

	if args.Offset < 0 {
		return nil, SweepExpandOutput{}, fmt.Errorf("'offset' must be non-negative, got %d", args.Offset)
	}
	limit := args.Limit
	switch {
	case limit < 0:
		return nil, SweepExpandOutput{}, fmt.Errorf("'limit' must be non-negative, got %d", limit)
	case limit == 0:
		limit = DefaultExpandLimit
	case limit > MaxExpandLimit:
		limit = MaxExpandLimit
	}

	path, err := s.resolvePath(args.Path)
	if err != nil {
		return nil, SweepExpandOutput{}, err
	}
	cfg, err := experiment.LoadFile(path)
	if err != nil {
		return nil, SweepExpandOutput{}, errors.New(sanitize.Message(err.Error()))
	}
	plan, err := sweep.Expand(cfg)
	if err != nil {
		return nil, SweepExpandOutput{}, err
	}
	if args.Experiment != "" {
		if plan, err = plan.Filter(args.Experiment); err != nil {
			return nil, SweepExpandOutput{}, err
		}
	}

	out := SweepExpandOutput{
		Total:       plan.Len(),
		Experiments: plan.Experiments(),
		Runs:        []RunItem{},
	}
	for i := range out.Experiments {
		out.Experiments[i].Name = sanitize.Name(out.Experiments[i].Name)
	}

	offset := min(args.Offset, plan.Len())
	end := offset + min(limit, plan.Len()-offset)
	for i := offset; i < end; i++ {
		run, err := plan.At(i)
		if err != nil {
			return nil, SweepExpandOutput{}, err
		}
		out.Runs = append(out.Runs, RunItem{
			Index:       run.Index,
			Experiment:  sanitize.Name(run.Experiment),
			Combination: run.Combination,
			Repeat:      run.Repeat,
			Label:       sanitize.Name(run.Label()),
			Seed:        run.Seed,
			Assignments: run.Assignments,
		})
	}
	out.Returned = len(out.Runs)
	out.Truncated = end < plan.Len()
	return nil, out, nil
}

func (s *Server) handleSweepPlans(ctx context.Context, req *sdk.CallToolRequest, args SweepPlansInput) (_ *sdk.CallToolResult, _ SweepPlansOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_plans", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_plans"); err != nil {
		return nil, SweepPlansOutput{}, err
	}

	plans, err := s.ledger.ListPlans(ctx)
	if err != nil {
		return nil, SweepPlansOutput{}, fmt.Errorf("failed to list plans: %w", err)
	}

	out := SweepPlansOutput{Plans: make([]PlanItem, 0, len(plans))}
	for _, p := range plans {
		counts, err := s.ledger.CountRuns(ctx, p.ID)
		if err != nil {
			return nil, SweepPlansOutput{}, fmt.Errorf("failed to count runs of %s: %w", p.ID, err)
		}
		out.Plans = append(out.Plans, PlanItem{
			ID:        p.ID,
			Name:      sanitize.Name(p.Name),
			Source:    sanitize.Name(p.Source),
			RunCount:  p.RunCount,
			Status:    statusCounts(counts),
			CreatedAt: p.CreatedAt,
		})
	}
	out.Count = len(out.Plans)
	return nil, out, nil
}

func (s *Server) handleSweepRuns(ctx context.Context, req *sdk.CallToolRequest, args SweepRunsInput) (_ *sdk.CallToolResult, _ SweepRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sweep_runs", start, retErr, sanitizeToolParams(map[string]any{
			"plan_id": args.PlanID, "status": args.Status, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sweep_runs"); err != nil {
		return nil, SweepRunsOutput{}, err
	}

	if args.PlanID == "" {
		return nil, SweepRunsOutput{}, fmt.Errorf("'plan_id' parameter is required")
	}
	status, err := store.ParseStatus(args.Status)
	if err != nil {
		return nil, SweepRunsOutput{}, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = DefaultRunsLimit
	}

	plan, err := s.ledger.GetPlan(ctx, args.PlanID)
	if err != nil {
		return nil, SweepRunsOutput{}, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, SweepRunsOutput{}, fmt.Errorf("plan not found: %s", args.PlanID)
	}

	runs, err := s.ledger.ListRuns(ctx, plan.ID, status)
	if err != nil {
		return nil, SweepRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	counts, err := s.ledger.CountRuns(ctx, plan.ID)
	if err != nil {
		return nil, SweepRunsOutput{}, fmt.Errorf("failed to count runs: %w", err)
	}

	out := SweepRunsOutput{
		PlanID: plan.ID,
		Runs:   make([]RunStatus, 0, min(len(runs), limit)),
		Count:  len(runs),
		Status: statusCounts(counts),
	}
	for _, r := range runs {
		if len(out.Runs) == limit {
			out.Truncated = true
			break
		}
		out.Runs = append(out.Runs, RunStatus{
			Index:      r.Index,
			Label:      sanitize.Name(r.Label),
			Status:     string(r.Status),
			Metrics:    r.Metrics,
			Error:      sanitize.Message(r.Error),
			FinishedAt: r.FinishedAt,
		})
	}
	return nil, out, nil
}

// statusCounts converts ledger counts to a map with every status present.
func statusCounts(counts map[store.RunStatus]int) map[string]int {
	out := map[string]int{
		string(store.StatusPending): 0,
		string(store.StatusRunning): 0,
		string(store.StatusDone):    0,
		string(store.StatusFailed):  0,
	}
	for st, n := range counts {
		out[string(st)] = n
	}
	return out
}
