// Package suite runs the repository's test suites: the Go tests of the
// working tree, then the nested simulator-library suite when it is vendored.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nvandessel/netsweep/internal/constants"
	"github.com/nvandessel/netsweep/internal/logging"
)

// NestedScript is the vendored library's own test entry point, relative to
// the repository root.
var NestedScript = filepath.FromSlash(constants.NestedSuiteScript)

// Step is one test command and the directory it runs in.
type Step struct {
	Name string   `json:"name"`
	Dir  string   `json:"dir"`
	Args []string `json:"args"`
}

// StepResult is the outcome of a step.
type StepResult struct {
	Step     Step          `json:"step"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a suite run. ExitCode is the first failing
// step's exit code, or zero.
type Result struct {
	Steps    []StepResult `json:"steps"`
	ExitCode int          `json:"exit_code"`
	Skipped  []string     `json:"skipped,omitempty"`
}

// ExecFunc runs a step and returns its exit code. A non-nil error means the
// step could not be started at all.
type ExecFunc func(ctx context.Context, step Step, stdout, stderr io.Writer) (int, error)

// Options configures Run.
type Options struct {
	Root string

	// GoTestArgs are appended to "go test ./...".
	GoTestArgs []string

	Stdout io.Writer
	Stderr io.Writer

	// Exec runs each step (default: Command).
	Exec   ExecFunc
	Logger *slog.Logger
}

// Steps lists the suite for root: the Go tests, then the nested script if
// it exists. Step directories and the script path are absolute.
func Steps(root string, goTestArgs ...string) ([]Step, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	steps := []Step{{
		Name: "go test",
		Dir:  root,
		Args: append([]string{"go", "test", "./..."}, goTestArgs...),
	}}

	script := filepath.Join(root, NestedScript)
	info, err := os.Stat(script)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return steps, nil
	case err != nil:
		return nil, fmt.Errorf("checking nested suite: %w", err)
	case info.IsDir():
		return nil, fmt.Errorf("nested suite %s is a directory", NestedScript)
	}

	return append(steps, Step{
		Name: "nested",
		Dir:  filepath.Dir(script),
		Args: []string{script},
	}), nil
}

// Run executes the suite in order and stops at the first failing step,
// whose exit code becomes the result's exit code.
func Run(ctx context.Context, opts Options) (Result, error) {
	run := opts.Exec
	if run == nil {
		run = Command
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	steps, err := Steps(opts.Root, opts.GoTestArgs...)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		logger.Info("running test step", "step", step.Name, "dir", step.Dir)
		start := time.Now()
		code, err := run(ctx, step, stdout, stderr)
		if err != nil {
			return res, fmt.Errorf("running %s: %w", step.Name, err)
		}
		res.Steps = append(res.Steps, StepResult{Step: step, ExitCode: code, Duration: time.Since(start)})
		logger.Debug("test step finished", "step", step.Name, "exit_code", code)

		if code != 0 {
			res.ExitCode = code
			for _, rest := range steps[i+1:] {
				res.Skipped = append(res.Skipped, rest.Name)
			}
			break
		}
	}
	return res, nil
}

// Command runs step as a child process. A process that starts and exits
// non-zero is reported by exit code, not error.
func Command(ctx context.Context, step Step, stdout, stderr io.Writer) (int, error) {
	if len(step.Args) == 0 {
		return 0, fmt.Errorf("step %s has no command", step.Name)
	}
	cmd := exec.CommandContext(ctx, step.Args[0], step.Args[1:]...)
	cmd.Dir = step.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code, nil
		}
		// Killed by a signal.
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}
