package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/netsweep/internal/store"
)

const smallConfig = `{
	"data": {"n_bits": 64, "n_ones": 6, "n_samples": 100},
	"topology": {"params": {"tau_m": 20.0}, "w": 0.03},
	"input": {"burst_size": 1, "time_window": 100.0, "isi": 2.0, "sigma_t": 0.0},
	"output": {"burst_size": 1},
	"seed": 42,
	"experiments": [
		/* 2 sizes x 2 repeats */
		{"name": "Network size", "sweeps": {"data.n_bits": [64, 128]}, "repeat": 2},
		{"name": "Baseline"}
	]
}`

// isolateHome sets HOME to a temp directory to avoid touching real ~/.netsweep/
// MUST be called for any test that loads config or opens a ledger
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
	t.Setenv("USERPROFILE", tmpHome)
	for _, env := range []string{"NETSWEEP_LOG_LEVEL", "NETSWEEP_OUTPUT_FORMAT", "NETSWEEP_RUNNER_COMMAND", "NETSWEEP_RUNNER_TIMEOUT"} {
		t.Setenv(env, "")
	}
}

// setupProject creates an isolated project root holding small.json.
func setupProject(t *testing.T) (root, configPath string) {
	t.Helper()
	root = t.TempDir()
	isolateHome(t, root)
	configPath = filepath.Join(root, "small.json")
	if err := os.WriteFile(configPath, []byte(smallConfig), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return root, configPath
}

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeJSON(t *testing.T, s string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(s), v); err != nil {
		t.Fatalf("decoding %q: %v", s, err)
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	want := []string{
		"version", "validate", "expand", "count", "schema", "plan", "plans", "runs",
		"run", "export", "import", "archives", "config", "mcp-server", "test",
	}
	have := map[string]bool{}
	for _, c := range cmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
	for _, flag := range []string{"json", "root", "log-level"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	decodeJSON(t, out, &got)
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestValidateCmd(t *testing.T) {
	root, path := setupProject(t)
	bad := filepath.Join(root, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"data": {}, "input": {}, "output": {}, "experiments": [{"name": "x", "repeat": 0}]}`), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "validate", path)
	if err != nil {
		t.Fatalf("validate valid file: %v", err)
	}
	if !strings.Contains(out, "small.json: 2 experiment(s), 5 run(s)") {
		t.Errorf("output = %q", out)
	}

	out, err = runCmd(t, "validate", path, bad, "--json")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("validate with invalid file: err = %v, want exit code 1", err)
	}
	var got struct {
		Files   []fileReport `json:"files"`
		Invalid int          `json:"invalid"`
	}
	decodeJSON(t, out, &got)
	if got.Invalid != 1 || len(got.Files) != 2 {
		t.Fatalf("report = %+v", got)
	}
	if got.Files[1].Valid || len(got.Files[1].Issues) == 0 {
		t.Errorf("bad.json report = %+v", got.Files[1])
	}
}

func TestValidateCmd_SyntaxError(t *testing.T) {
	root, _ := setupProject(t)
	broken := filepath.Join(root, "broken.json")
	if err := os.WriteFile(broken, []byte("{\n  /* unterminated\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "validate", broken, "--json")
	if err == nil {
		t.Fatal("expected failure")
	}
	var got struct {
		Files []fileReport `json:"files"`
	}
	decodeJSON(t, out, &got)
	if got.Files[0].Line != 2 {
		t.Errorf("Line = %d, want 2", got.Files[0].Line)
	}
}

func TestExpandCmd_Formats(t *testing.T) {
	_, path := setupProject(t)

	t.Run("json", func(t *testing.T) {
		out, err := runCmd(t, "expand", path, "--format", "json")
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		var runs []struct {
			Index      int    `json:"index"`
			Experiment string `json:"experiment"`
			Repeat     int    `json:"repeat"`
			Seed       *int64 `json:"seed"`
		}
		decodeJSON(t, out, &runs)
		if len(runs) != 5 {
			t.Fatalf("len(runs) = %d, want 5", len(runs))
		}
		if runs[1].Repeat != 1 || runs[4].Experiment != "Baseline" {
			t.Errorf("unexpected order: %+v", runs)
		}
		if runs[0].Seed == nil {
			t.Error("seeded config produced a run without seed")
		}
	})

	t.Run("jsonl", func(t *testing.T) {
		out, err := runCmd(t, "expand", path, "--format", "jsonl", "--limit", "3")
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 {
			t.Errorf("got %d lines, want 3", len(lines))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := runCmd(t, "expand", path, "--format", "yaml", "--experiment", "Baseline")
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		var runs []map[string]any
		if err := yaml.Unmarshal([]byte(out), &runs); err != nil {
			t.Fatalf("parsing yaml: %v", err)
		}
		if len(runs) != 1 || runs[0]["experiment"] != "Baseline" || runs[0]["index"] != 4 {
			t.Errorf("runs = %v", runs)
		}
	})

	t.Run("table", func(t *testing.T) {
		out, err := runCmd(t, "expand", path, "--limit", "2")
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if !strings.Contains(out, "data.n_bits=64") || !strings.Contains(out, "2 of 5 runs shown") {
			t.Errorf("table output = %q", out)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		if _, err := runCmd(t, "expand", path, "--format", "xml"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCountCmd(t *testing.T) {
	_, path := setupProject(t)
	out, err := runCmd(t, "count", path, "--json")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	var got struct {
		Runs int `json:"runs"`
	}
	decodeJSON(t, out, &got)
	if got.Runs != 5 {
		t.Errorf("runs = %d, want 5", got.Runs)
	}
}

func TestSchemaCmd(t *testing.T) {
	out, err := runCmd(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var schema map[string]any
	decodeJSON(t, out, &schema)
	if _, ok := schema["properties"]; !ok {
		if _, ok := schema["$defs"]; !ok {
			t.Errorf("schema has neither properties nor $defs: %v", schema)
		}
	}
}

// recordTestPlan runs "plan" and returns the new plan ID.
func recordTestPlan(t *testing.T, root, path string) string {
	t.Helper()
	out, err := runCmd(t, "plan", path, "--root", root, "--json")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	var got struct {
		PlanID   string `json:"plan_id"`
		RunCount int    `json:"run_count"`
	}
	decodeJSON(t, out, &got)
	if got.PlanID == "" || got.RunCount != 5 {
		t.Fatalf("plan output = %+v", got)
	}
	return got.PlanID
}

func TestPlanPlansRuns(t *testing.T) {
	root, path := setupProject(t)
	id := recordTestPlan(t, root, path)

	out, err := runCmd(t, "plans", "--root", root, "--json")
	if err != nil {
		t.Fatalf("plans: %v", err)
	}
	var plans struct {
		Plans []struct {
			ID     string         `json:"id"`
			Status map[string]int `json:"status"`
		} `json:"plans"`
		Count int `json:"count"`
	}
	decodeJSON(t, out, &plans)
	if plans.Count != 1 || plans.Plans[0].ID != id || plans.Plans[0].Status["pending"] != 5 {
		t.Errorf("plans = %+v", plans)
	}

	out, err = runCmd(t, "runs", id, "--root", root, "--json", "--status", "pending")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var runs struct {
		Count int `json:"count"`
	}
	decodeJSON(t, out, &runs)
	if runs.Count != 5 {
		t.Errorf("pending runs = %d, want 5", runs.Count)
	}

	if _, err := runCmd(t, "runs", id, "--root", root, "--status", "bogus"); err == nil {
		t.Error("expected error for bad status")
	}
	if _, err := runCmd(t, "runs", "no-such-plan", "--root", root); err == nil {
		t.Error("expected error for unknown plan")
	}
}

func writeSimulator(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(dir, "sim.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCmd(t *testing.T) {
	root, path := setupProject(t)
	sim := writeSimulator(t, root, `echo '{"metrics": {"info": 1.5}}'`+"\n")

	out, err := runCmd(t, "run", path, "--root", root, "--command", sim, "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum struct {
		PlanID string `json:"plan_id"`
		Total  int    `json:"total"`
		Done   int    `json:"done"`
	}
	decodeJSON(t, out, &sum)
	if sum.Total != 5 || sum.Done != 5 {
		t.Fatalf("summary = %+v", sum)
	}

	// Resuming a finished plan skips everything.
	out, err = runCmd(t, "run", sum.PlanID, "--root", root, "--command", sim, "--resume", "--json")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	var resumed struct {
		Skipped int `json:"skipped"`
		Done    int `json:"done"`
	}
	decodeJSON(t, out, &resumed)
	if resumed.Skipped != 5 || resumed.Done != 0 {
		t.Errorf("resume summary = %+v", resumed)
	}
}

func TestRunCmd_FailedRuns(t *testing.T) {
	root, path := setupProject(t)
	sim := writeSimulator(t, root, "echo boom >&2\nexit 3\n")

	_, err := runCmd(t, "run", path, "--root", root, "--command", sim, "--json")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("err = %v, want exit code 1", err)
	}

	ledger, err := store.NewSQLiteLedger(filepath.Join(root, ".netsweep"))
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	plans, _ := ledger.ListPlans(t.Context())
	counts, _ := ledger.CountRuns(t.Context(), plans[0].ID)
	if counts[store.StatusFailed] != 5 {
		t.Errorf("failed runs = %d, want 5", counts[store.StatusFailed])
	}
}

func TestRunCmd_NoCommand(t *testing.T) {
	root, path := setupProject(t)
	if _, err := runCmd(t, "run", path, "--root", root); err == nil || !strings.Contains(err.Error(), "no simulator command") {
		t.Errorf("err = %v, want missing command error", err)
	}
}

func TestExportImport(t *testing.T) {
	root, path := setupProject(t)
	id := recordTestPlan(t, root, path)

	out, err := runCmd(t, "export", id, "--root", root, "--json")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var exported struct {
		Path     string `json:"path"`
		RunCount int    `json:"run_count"`
	}
	decodeJSON(t, out, &exported)
	if exported.RunCount != 5 {
		t.Errorf("run_count = %d", exported.RunCount)
	}

	if _, err := runCmd(t, "archives", "verify", exported.Path); err != nil {
		t.Errorf("verify: %v", err)
	}

	out, err = runCmd(t, "archives", "--root", root, "--json")
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	var listed struct {
		Count int `json:"count"`
	}
	decodeJSON(t, out, &listed)
	if listed.Count != 1 {
		t.Errorf("archives = %d, want 1", listed.Count)
	}

	// Same ID already present: skipped by default, duplicated with copy.
	out, err = runCmd(t, "import", exported.Path, "--root", root, "--json")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var skipped struct {
		Skipped bool `json:"skipped"`
	}
	decodeJSON(t, out, &skipped)
	if !skipped.Skipped {
		t.Error("expected skip for existing plan")
	}

	out, err = runCmd(t, "import", exported.Path, "--root", root, "--mode", "copy", "--json")
	if err != nil {
		t.Fatalf("import copy: %v", err)
	}
	var copied struct {
		PlanID string `json:"plan_id"`
	}
	decodeJSON(t, out, &copied)
	if copied.PlanID == "" || copied.PlanID == id {
		t.Errorf("copy plan id = %q", copied.PlanID)
	}
}

func TestExport_RejectsOutsidePath(t *testing.T) {
	root, path := setupProject(t)
	id := recordTestPlan(t, root, path)

	outside := filepath.Join(t.TempDir(), "x.nsa")
	if _, err := runCmd(t, "export", id, "--root", root, "--output", outside); err == nil {
		t.Error("expected rejection of path outside the project")
	}
}

func TestConfigCmd(t *testing.T) {
	isolateHome(t, t.TempDir())

	if _, err := runCmd(t, "config", "set", "runner.timeout", "90s"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := runCmd(t, "config", "get", "runner.timeout", "--json")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	var got map[string]any
	decodeJSON(t, out, &got)
	if got["value"] != "1m30s" {
		t.Errorf("value = %v, want 1m30s", got["value"])
	}

	if _, err := runCmd(t, "config", "set", "output.format", "xml"); err == nil {
		t.Error("expected error for invalid format")
	}
	if _, err := runCmd(t, "config", "get", "no.such.key"); err == nil {
		t.Error("expected error for unknown key")
	}

	out, err = runCmd(t, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	if !strings.Contains(out, "runner.timeout:") {
		t.Errorf("list output = %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"A", "LONG HEADER"}, [][]string{{"wide cell", "x"}, {"b", "y"}})
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines", len(lines))
	}
	// Second column starts at the same offset in every row.
	col := strings.Index(lines[1], "x")
	if strings.Index(lines[2], "y") != col {
		t.Errorf("columns misaligned:\n%s", got)
	}
}

func TestFormatMetrics(t *testing.T) {
	got := formatMetrics(map[string]float64{"b": 2, "a": 0.5})
	if got != "a=0.5 b=2" {
		t.Errorf("formatMetrics() = %q", got)
	}
	if formatMetrics(nil) != "" {
		t.Error("nil metrics should render empty")
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(&exitError{code: 3}); got != 3 {
		t.Errorf("exitCode = %d, want 3", got)
	}
	if got := exitCode(errors.New("plain")); got != 1 {
		t.Errorf("exitCode = %d, want 1", got)
	}
}
