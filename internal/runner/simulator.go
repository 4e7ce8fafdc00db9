// Package runner hands the runs of a plan to a simulator and records their
// outcomes in a ledger.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/netsweep/internal/constants"
	"github.com/nvandessel/netsweep/internal/logging"
	"github.com/nvandessel/netsweep/internal/sweep"
)

// Result is what a simulator reports for one run.
type Result struct {
	Metrics map[string]float64 `json:"metrics"`
}

type planIDKey struct{}

// WithPlanID returns a context that tells the simulator which plan the run
// belongs to.
func WithPlanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, planIDKey{}, id)
}

// PlanIDFrom returns the plan ID set by WithPlanID, or "".
func PlanIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(planIDKey{}).(string)
	return id
}

// Simulator runs one fully-resolved parameter set.
type Simulator interface {
	Simulate(ctx context.Context, spec sweep.RunSpec) (Result, error)
}

// SimulatorFunc adapts a function to the Simulator interface.
type SimulatorFunc func(ctx context.Context, spec sweep.RunSpec) (Result, error)

// Simulate calls f.
func (f SimulatorFunc) Simulate(ctx context.Context, spec sweep.RunSpec) (Result, error) {
	return f(ctx, spec)
}

// CommandConfig configures a CommandSimulator.
type CommandConfig struct {
	// Command is the executable followed by its arguments, split on
	// whitespace. No shell is involved.
	Command string

	// Timeout bounds each run (default: constants.DefaultRunTimeoutSeconds).
	Timeout time.Duration

	// Dir is the working directory (default: current directory).
	Dir string

	Logger *slog.Logger
}

// CommandSimulator runs an external program once per run. The RunSpec is
// written to its stdin as JSON and NETSWEEP_* variables describe the run.
// The program prints a JSON object on stdout: either {"metrics": {...}} or
// a flat object of numbers.
type CommandSimulator struct {
	path    string
	args    []string
	timeout time.Duration
	dir     string
	logger  *slog.Logger
}

// NewCommandSimulator resolves the configured command.
func NewCommandSimulator(cfg CommandConfig) (*CommandSimulator, error) {
	fields := strings.Fields(cfg.Command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("simulator command is empty")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("simulator command not found: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRunTimeoutSeconds * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &CommandSimulator{
		path:    path,
		args:    fields[1:],
		timeout: timeout,
		dir:     cfg.Dir,
		logger:  logger,
	}, nil
}

// Simulate runs the command for spec.
func (c *CommandSimulator) Simulate(ctx context.Context, spec sweep.RunSpec) (Result, error) {
	input, err := json.Marshal(spec)
	if err != nil {
		return Result{}, fmt.Errorf("encoding run spec: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), runEnv(PlanIDFrom(ctx), spec)...)
	cmd.Stdin = bytes.NewReader(input)

	stdout := &limitedBuffer{max: constants.MaxSimulatorOutputBytes}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	c.logger.Log(ctx, logging.LevelTrace, "simulator stdin", "run", spec.Index, "payload", string(input))

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("simulator timed out after %v", c.timeout)
		}
		return Result{}, fmt.Errorf("simulator failed: %w (stderr: %s)", err, tail(stderr.String(), 512))
	}
	if stdout.overflow {
		return Result{}, fmt.Errorf("simulator output exceeds %d bytes", constants.MaxSimulatorOutputBytes)
	}

	c.logger.Log(ctx, logging.LevelTrace, "simulator stdout", "run", spec.Index, "payload", stdout.String())
	return parseResult(stdout.Bytes())
}

// runEnv describes spec to the simulator process.
func runEnv(planID string, spec sweep.RunSpec) []string {
	var env []string
	if planID != "" {
		env = append(env, "NETSWEEP_PLAN_ID="+planID)
	}
	env = append(env,
		"NETSWEEP_RUN_INDEX="+strconv.Itoa(spec.Index),
		"NETSWEEP_EXPERIMENT="+spec.Experiment,
		"NETSWEEP_EXPERIMENT_INDEX="+strconv.Itoa(spec.ExperimentIndex),
		"NETSWEEP_COMBINATION="+strconv.Itoa(spec.Combination),
		"NETSWEEP_REPEAT="+strconv.Itoa(spec.Repeat),
	)
	if spec.Seed != nil {
		env = append(env, "NETSWEEP_SEED="+strconv.FormatInt(*spec.Seed, 10))
	}
	return env
}

// parseResult accepts {"metrics": {...}}, a flat object of numbers, or no
// output at all.
func parseResult(out []byte) (Result, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return Result{Metrics: map[string]float64{}}, nil
	}

	var wrapped struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	if err := json.Unmarshal(out, &wrapped); err == nil && wrapped.Metrics != nil {
		return Result{Metrics: wrapped.Metrics}, nil
	}

	var flat map[string]float64
	if err := json.Unmarshal(out, &flat); err != nil {
		return Result{}, fmt.Errorf("simulator output is not a JSON object of numbers: %w", err)
	}
	return Result{Metrics: flat}, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// limitedBuffer keeps at most max bytes and records whether more arrived.
// Writes never fail so the child is not killed by a broken pipe.
type limitedBuffer struct {
	bytes.Buffer
	max      int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room < len(p) {
		b.overflow = true
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
