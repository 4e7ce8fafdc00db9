package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/logging"
	"github.com/nvandessel/netsweep/internal/runner"
	"github.com/nvandessel/netsweep/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-id|file>",
		Short: "Run a plan's runs through a simulator command",
		Long: `Hand each run of a plan to a simulator command, one at a time, and record
the outcome in the ledger. Given an experiment file instead of a plan ID,
the file is recorded as a new plan first.

The simulator receives the run specification as JSON on stdin and
NETSWEEP_PLAN_ID, NETSWEEP_RUN_INDEX, NETSWEEP_EXPERIMENT, NETSWEEP_REPEAT
and NETSWEEP_SEED in its environment. It must print a JSON object of
numeric metrics on stdout, either flat or under "metrics".

Interrupting (Ctrl+C) stops after the current run; use --resume to continue.

Examples:
  netsweep run sweep_network_size.json --command "python simulate.py"
  netsweep run <plan-id> --resume
  netsweep config set runner.command "python simulate.py"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			command, _ := cmd.Flags().GetString("command")
			resume, _ := cmd.Flags().GetBool("resume")
			stopOnError, _ := cmd.Flags().GetBool("stop-on-error")
			root, _ := cmd.Flags().GetString("root")
			cfg := loadConfig(cmd)

			if command == "" {
				command = cfg.Runner.Command
			}
			if command == "" {
				return fmt.Errorf("no simulator command: pass --command or set runner.command")
			}
			timeout := cfg.Runner.Timeout
			if cmd.Flags().Changed("timeout") {
				timeout, _ = cmd.Flags().GetDuration("timeout")
			}
			if !cmd.Flags().Changed("stop-on-error") {
				stopOnError = cfg.Runner.StopOnError
			}

			logger := newLogger(cmd, cfg)
			events := logging.NewEventLogger(stateDir(cmd, cfg), logLevel(cmd, cfg))
			defer events.Close()

			sim, err := runner.NewCommandSimulator(runner.CommandConfig{
				Command: command,
				Timeout: timeout,
				Dir:     root,
				Logger:  logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ledger, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			planID := args[0]
			if info, statErr := os.Stat(args[0]); statErr == nil && !info.IsDir() {
				plan, err := recordPlan(ctx, ledger, args[0])
				if err != nil {
					return err
				}
				planID = plan.ID
				if !jsonOut {
					fmt.Fprintf(cmd.OutOrStdout(), "Recorded plan %s (%d runs)\n", plan.ID, plan.RunCount)
				}
			}

			out := cmd.OutOrStdout()
			opts := runner.Options{Resume: resume, StopOnError: stopOnError}
			if !jsonOut {
				opts.Progress = func(run store.Run, res store.Outcome) {
					detail := formatMetrics(res.Metrics)
					if res.Error != "" {
						detail = res.Error
					}
					fmt.Fprintf(out, "%s %s  %s\n",
						statusStyle(res.Status).Render(fmt.Sprintf("%-6s", res.Status)),
						run.Label, dimStyle.Render(detail))
				}
			}

			sum, runErr := runner.NewExecutor(ledger, sim, logger, events, opts).Execute(ctx, planID)
			if runErr != nil && sum.PlanID == "" {
				return runErr
			}

			if jsonOut {
				if err := encodeJSON(out, sum); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "\n%s %d done, %d failed, %d skipped of %d\n",
					titleStyle.Render("Summary:"), sum.Done, sum.Failed, sum.Skipped, sum.Total)
				if sum.Canceled {
					fmt.Fprintln(out, warnStyle.Render("Interrupted. Resume with: netsweep run "+sum.PlanID+" --resume"))
				}
			}

			switch {
			case errors.Is(runErr, context.Canceled):
				return &exitError{code: 130, msg: "interrupted"}
			case runErr != nil:
				return runErr
			case sum.Failed > 0:
				return &exitError{code: 1, msg: fmt.Sprintf("%d run(s) failed", sum.Failed)}
			}
			return nil
		},
	}

	cmd.Flags().String("command", "", "Simulator command line (default: runner.command)")
	cmd.Flags().Duration("timeout", 0, "Per-run timeout (default: runner.timeout)")
	cmd.Flags().Bool("resume", false, "Skip runs already recorded as done")
	cmd.Flags().Bool("stop-on-error", false, "Stop at the first failed run (default: runner.stop_on_error)")

	return cmd
}

// formatMetrics renders metrics as sorted key=value pairs.
func formatMetrics(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(m[k], 'g', 6, 64)
	}
	return strings.Join(parts, " ")
}
