package mcp

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/runner"
	"github.com/nvandessel/netsweep/internal/store"
	"github.com/nvandessel/netsweep/internal/sweep"
)

const jitterConfig = `{
	/* two experiments, 1 + 2*3*2 runs */
	"data": {"n_bits": 64, "n_ones": 6, "n_samples": 100},
	"topology": {"params": {"tau_m": 20.0}, "w": 0.03},
	"input": {"burst_size": 3, "time_window": 200.0, "isi": 2.0, "sigma_t": 2.0},
	"output": {"burst_size": 1},
	"seed": 1437483,
	"experiments": [
		{"name": "Baseline", "sweeps": {"input.sigma_t": [0.0]}},
		{
			"name": "Jitter vs. tau_m",
			"sweeps": {
				"topology.params.tau_m": [10.0, 20.0],
				"input.sigma_t": {"min": 0.0, "max": 10.0, "count": 3}
			},
			"repeat": 2
		}
	]
}`

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		Root:    tmpDir,
		Ledger:  store.NewMemoryLedger(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, tmpDir
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// savePlan records the jitter config in the server's ledger and returns it.
func savePlan(t *testing.T, s *Server, dir string) store.Plan {
	t.Helper()
	path := writeConfig(t, dir, "jitter.json", jitterConfig)
	cfg, err := experiment.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	plan, err := sweep.Expand(cfg)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	saved, err := runner.SavePlan(context.Background(), s.ledger, path, cfg, plan)
	if err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	return saved
}

func TestHandleSweepValidate_Valid(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "jitter.json", jitterConfig)

	result, out, err := server.handleSweepValidate(context.Background(), &sdk.CallToolRequest{}, SweepValidateInput{Path: "jitter.json"})
	if err != nil {
		t.Fatalf("handleSweepValidate failed: %v", err)
	}
	if result != nil {
		t.Error("Expected nil result (SDK auto-populates)")
	}
	if !out.Valid {
		t.Fatalf("Valid = false, message %q", out.Message)
	}
	if out.Experiments != 2 {
		t.Errorf("Experiments = %d, want 2", out.Experiments)
	}
	if out.Runs != 13 {
		t.Errorf("Runs = %d, want 13", out.Runs)
	}
}

func TestHandleSweepValidate_SyntaxError(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "broken.json", "{\n\t\"data\": {\n\t\t\"n_bits\": ,\n\t}\n}")

	_, out, err := server.handleSweepValidate(context.Background(), &sdk.CallToolRequest{}, SweepValidateInput{Path: "broken.json"})
	if err != nil {
		t.Fatalf("syntax errors should be reported in the output, got error: %v", err)
	}
	if out.Valid {
		t.Error("Valid = true for broken file")
	}
	if out.Line != 3 {
		t.Errorf("Line = %d, want 3", out.Line)
	}
	if !strings.Contains(out.Message, "syntax error") {
		t.Errorf("Message = %q, want syntax error", out.Message)
	}
}

func TestHandleSweepValidate_ValidationError(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "bad.json", `{
		"data": {}, "topology": {}, "input": {}, "output": {},
		"experiments": [{"name": "x", "sweeps": {"data.n_bits": []}, "repeat": 0}]
	}`)

	_, out, err := server.handleSweepValidate(context.Background(), &sdk.CallToolRequest{}, SweepValidateInput{Path: "bad.json"})
	if err != nil {
		t.Fatalf("validation errors should be reported in the output, got error: %v", err)
	}
	if out.Valid {
		t.Error("Valid = true for invalid file")
	}
	if len(out.Issues) == 0 {
		t.Fatal("expected issues")
	}
	for _, is := range out.Issues {
		if is.Path == "" {
			t.Errorf("issue without key path: %+v", is)
		}
	}
}

func TestHandleSweepValidate_PathErrors(t *testing.T) {
	server, _ := setupTestServer(t)
	outside := filepath.Join(t.TempDir(), "elsewhere.json")
	writeConfig(t, filepath.Dir(outside), "elsewhere.json", jitterConfig)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"empty", "", "'path' parameter is required"},
		{"missing", "nope.json", "file not found"},
		{"outside root", outside, "outside allowed directories"},
		{"traversal", "../../etc/passwd", "outside allowed directories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleSweepValidate(context.Background(), &sdk.CallToolRequest{}, SweepValidateInput{Path: tt.path})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestHandleSweepExpand_Paging(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "jitter.json", jitterConfig)

	_, out, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{
		Path: "jitter.json", Offset: 1, Limit: 4,
	})
	if err != nil {
		t.Fatalf("handleSweepExpand failed: %v", err)
	}
	if out.Total != 13 || out.Returned != 4 || !out.Truncated {
		t.Errorf("Total/Returned/Truncated = %d/%d/%v, want 13/4/true", out.Total, out.Returned, out.Truncated)
	}
	if len(out.Experiments) != 2 {
		t.Errorf("len(Experiments) = %d, want 2", len(out.Experiments))
	}

	// Runs 1..4 are the first two combinations of the second experiment,
	// each repeated twice. The last sweep key varies fastest.
	want := []struct {
		index, combination, repeat int
		sigma                      float64
	}{
		{1, 0, 0, 0.0},
		{2, 0, 1, 0.0},
		{3, 1, 0, 5.0},
		{4, 1, 1, 5.0},
	}
	for i, w := range want {
		r := out.Runs[i]
		if r.Index != w.index || r.Combination != w.combination || r.Repeat != w.repeat {
			t.Errorf("run %d = (%d, %d, %d), want (%d, %d, %d)", i, r.Index, r.Combination, r.Repeat, w.index, w.combination, w.repeat)
		}
		if r.Experiment != "Jitter vs. tau_m" {
			t.Errorf("run %d experiment = %q", i, r.Experiment)
		}
		if len(r.Assignments) != 2 || r.Assignments[1].Value != w.sigma {
			t.Errorf("run %d assignments = %+v, want input.sigma_t=%v last", i, r.Assignments, w.sigma)
		}
		if r.Seed == nil {
			t.Errorf("run %d has no seed", i)
		}
	}
}

func TestHandleSweepExpand_LastPage(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "jitter.json", jitterConfig)

	_, out, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{Path: "jitter.json", Offset: 10})
	if err != nil {
		t.Fatalf("handleSweepExpand failed: %v", err)
	}
	if out.Returned != 3 || out.Truncated {
		t.Errorf("Returned/Truncated = %d/%v, want 3/false", out.Returned, out.Truncated)
	}

	_, out, err = server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{Path: "jitter.json", Offset: 50})
	if err != nil {
		t.Fatalf("offset past the end: %v", err)
	}
	if out.Returned != 0 || out.Runs == nil {
		t.Errorf("Runs = %v, want empty non-nil slice", out.Runs)
	}

	_, out, err = server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{Path: "jitter.json", Offset: math.MaxInt})
	if err != nil {
		t.Fatalf("offset at MaxInt: %v", err)
	}
	if out.Returned != 0 || out.Truncated {
		t.Errorf("Returned/Truncated = %d/%v, want 0/false", out.Returned, out.Truncated)
	}
}

func TestHandleSweepExpand_Filter(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "jitter.json", jitterConfig)

	_, out, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{
		Path: "jitter.json", Experiment: "Baseline",
	})
	if err != nil {
		t.Fatalf("handleSweepExpand failed: %v", err)
	}
	if out.Total != 1 || len(out.Runs) != 1 {
		t.Fatalf("Total = %d, len(Runs) = %d, want 1", out.Total, len(out.Runs))
	}
	if out.Runs[0].Index != 0 {
		t.Errorf("Index = %d, want 0", out.Runs[0].Index)
	}

	_, _, err = server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{
		Path: "jitter.json", Experiment: "No such experiment",
	})
	if err == nil {
		t.Error("expected error for unknown experiment")
	}
}

func TestHandleSweepExpand_InvalidArgs(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "jitter.json", jitterConfig)
	writeConfig(t, tmpDir, "broken.json", "{")

	tests := []struct {
		name string
		args SweepExpandInput
	}{
		{"negative offset", SweepExpandInput{Path: "jitter.json", Offset: -1}},
		{"negative limit", SweepExpandInput{Path: "jitter.json", Limit: -5}},
		{"broken file", SweepExpandInput{Path: "broken.json"}},
		{"missing path", SweepExpandInput{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandleSweepExpand_LimitCapped(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "big.json", `{
		"data": {"scale": 0}, "topology": {}, "input": {}, "output": {},
		"experiments": [{"name": "big", "sweeps": {"data.scale": {"min": 0, "max": 1, "count": 2000}}}]
	}`)

	_, out, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{Path: "big.json", Limit: 5000})
	if err != nil {
		t.Fatalf("handleSweepExpand failed: %v", err)
	}
	if out.Returned != MaxExpandLimit || !out.Truncated {
		t.Errorf("Returned = %d, Truncated = %v, want %d/true", out.Returned, out.Truncated, MaxExpandLimit)
	}
}

func TestHandleSweepExpand_HugeRange(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "huge.json", `{
		"data": {"scale": 0}, "topology": {}, "input": {}, "output": {},
		"experiments": [{"name": "huge", "sweeps": {"data.scale": {"min": 0, "max": 1, "count": 1099511627776000}}}]
	}`)

	_, out, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{Path: "huge.json", Offset: 1099511627775999})
	if err != nil {
		t.Fatalf("handleSweepExpand failed: %v", err)
	}
	if out.Total != 1099511627776000 || out.Returned != 1 || out.Runs[0].Assignments[0].Value != 1 {
		t.Errorf("Total = %d, Returned = %d, runs = %+v", out.Total, out.Returned, out.Runs)
	}
	ax := out.Experiments[0].Axes[0]
	if len(ax.Values) != sweep.MaxAxisValues || !ax.Truncated {
		t.Errorf("axis summary lists %d values (truncated %v), want %d", len(ax.Values), ax.Truncated, sweep.MaxAxisValues)
	}

	_, vout, err := server.handleSweepValidate(context.Background(), &sdk.CallToolRequest{}, SweepValidateInput{Path: "huge.json"})
	if err != nil || !vout.Valid || vout.Runs != 1099511627776000 {
		t.Errorf("validate = %+v, %v", vout, err)
	}
}

func TestHandleSweepPlans(t *testing.T) {
	server, tmpDir := setupTestServer(t)

	_, out, err := server.handleSweepPlans(context.Background(), &sdk.CallToolRequest{}, SweepPlansInput{})
	if err != nil {
		t.Fatalf("handleSweepPlans failed: %v", err)
	}
	if out.Count != 0 || out.Plans == nil {
		t.Errorf("empty ledger: Count = %d, Plans = %v", out.Count, out.Plans)
	}

	saved := savePlan(t, server, tmpDir)
	if err := server.ledger.RecordResult(context.Background(), saved.ID, 0, store.Outcome{
		Status: store.StatusDone, Metrics: map[string]float64{"info": 1.5},
	}); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	_, out, err = server.handleSweepPlans(context.Background(), &sdk.CallToolRequest{}, SweepPlansInput{})
	if err != nil {
		t.Fatalf("handleSweepPlans failed: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("Count = %d, want 1", out.Count)
	}
	p := out.Plans[0]
	if p.ID != saved.ID || p.Name != "jitter.json" || p.RunCount != 13 {
		t.Errorf("plan = %+v", p)
	}
	if p.Status["done"] != 1 || p.Status["pending"] != 12 || p.Status["failed"] != 0 {
		t.Errorf("Status = %v, want done=1 pending=12 failed=0", p.Status)
	}
}

func TestHandleSweepRuns(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	saved := savePlan(t, server, tmpDir)
	ctx := context.Background()

	if err := server.ledger.RecordResult(ctx, saved.ID, 2, store.Outcome{
		Status: store.StatusFailed, Error: "simulator exited with status 1\n<b>boom</b>",
	}); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	t.Run("all runs limited", func(t *testing.T) {
		_, out, err := server.handleSweepRuns(ctx, &sdk.CallToolRequest{}, SweepRunsInput{PlanID: saved.ID, Limit: 5})
		if err != nil {
			t.Fatalf("handleSweepRuns failed: %v", err)
		}
		if out.Count != 13 || len(out.Runs) != 5 || !out.Truncated {
			t.Errorf("Count = %d, len(Runs) = %d, Truncated = %v", out.Count, len(out.Runs), out.Truncated)
		}
		for i, r := range out.Runs {
			if r.Index != i {
				t.Errorf("Runs[%d].Index = %d", i, r.Index)
			}
		}
	})

	t.Run("failed only", func(t *testing.T) {
		_, out, err := server.handleSweepRuns(ctx, &sdk.CallToolRequest{}, SweepRunsInput{PlanID: saved.ID, Status: "failed"})
		if err != nil {
			t.Fatalf("handleSweepRuns failed: %v", err)
		}
		if out.Count != 1 || out.Runs[0].Index != 2 {
			t.Fatalf("failed runs = %+v", out.Runs)
		}
		if strings.Contains(out.Runs[0].Error, "<b>") {
			t.Errorf("Error not sanitized: %q", out.Runs[0].Error)
		}
		if out.Status["failed"] != 1 || out.Status["pending"] != 12 {
			t.Errorf("Status = %v", out.Status)
		}
	})

	errCases := []struct {
		name string
		args SweepRunsInput
	}{
		{"missing plan id", SweepRunsInput{}},
		{"unknown plan", SweepRunsInput{PlanID: "does-not-exist"}},
		{"bad status", SweepRunsInput{PlanID: saved.ID, Status: "finished"}},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := server.handleSweepRuns(ctx, &sdk.CallToolRequest{}, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandlers_RateLimited(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	writeConfig(t, tmpDir, "jitter.json", jitterConfig)

	var limited bool
	for range 10 {
		_, _, err := server.handleSweepExpand(context.Background(), &sdk.CallToolRequest{}, SweepExpandInput{Path: "jitter.json", Limit: 1})
		if err != nil && strings.Contains(err.Error(), "rate limit") {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected sweep_expand to be rate limited after its burst")
	}
}

func TestStatusCounts(t *testing.T) {
	got := statusCounts(map[store.RunStatus]int{store.StatusDone: 3})
	if len(got) != 4 {
		t.Errorf("len = %d, want 4 statuses", len(got))
	}
	if got["done"] != 3 || got["running"] != 0 {
		t.Errorf("statusCounts = %v", got)
	}
}
