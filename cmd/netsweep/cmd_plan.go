package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/runner"
	"github.com/nvandessel/netsweep/internal/store"
	"github.com/nvandessel/netsweep/internal/sweep"
)

// recordPlan loads, expands and stores the experiment file at path.
func recordPlan(ctx context.Context, ledger store.Ledger, path string) (store.Plan, error) {
	cfg, err := experiment.LoadFile(path)
	if err != nil {
		return store.Plan{}, err
	}
	plan, err := sweep.Expand(cfg)
	if err != nil {
		return store.Plan{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return runner.SavePlan(ctx, ledger, abs, cfg, plan)
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Expand an experiment file and record its runs in the ledger",
		Long: `Expand an experiment file and record every run as pending in the project
ledger (.netsweep/netsweep.db). The printed plan ID is used by run, runs
and export.

Examples:
  netsweep plan sweep_network_size.json
  netsweep run <plan-id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg := loadConfig(cmd)

			ledger, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			plan, err := recordPlan(cmd.Context(), ledger, args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"plan_id":   plan.ID,
					"name":      plan.Name,
					"run_count": plan.RunCount,
					"message":   fmt.Sprintf("Recorded %d run(s)", plan.RunCount),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d run(s)\n", okStyle.Render("Recorded plan"), plan.Name, plan.RunCount)
			fmt.Fprintf(cmd.OutOrStdout(), "  ID: %s\n", plan.ID)
			return nil
		},
	}
}

// planRow is one plan with its run counts.
type planRow struct {
	store.Plan
	Status map[store.RunStatus]int `json:"status"`
}

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List recorded plans and their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg := loadConfig(cmd)
			ctx := cmd.Context()

			ledger, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			plans, err := ledger.ListPlans(ctx)
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}

			rows := make([]planRow, 0, len(plans))
			for _, p := range plans {
				counts, err := ledger.CountRuns(ctx, p.ID)
				if err != nil {
					return fmt.Errorf("failed to count runs: %w", err)
				}
				p.Config = nil
				rows = append(rows, planRow{Plan: p, Status: counts})
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"plans": rows,
					"count": len(rows),
				})
			}

			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plans recorded. Use 'netsweep plan <file>' to record one.")
				return nil
			}
			table := make([][]string, len(rows))
			for i, r := range rows {
				table[i] = []string{
					r.ID,
					r.Name,
					fmt.Sprint(r.RunCount),
					okStyle.Render(fmt.Sprint(r.Status[store.StatusDone])),
					errorStyle.Render(fmt.Sprint(r.Status[store.StatusFailed])),
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "RUNS", "DONE", "FAILED", "CREATED"}, table))
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs <plan-id>",
		Short: "List the runs of a recorded plan",
		Long: `List the runs of a recorded plan with their status and metrics.

Examples:
  netsweep runs <plan-id>
  netsweep runs <plan-id> --status failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			statusFlag, _ := cmd.Flags().GetString("status")
			cfg := loadConfig(cmd)
			ctx := cmd.Context()

			status, err := store.ParseStatus(statusFlag)
			if err != nil {
				return err
			}

			ledger, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			plan, err := ledger.GetPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if plan == nil {
				return fmt.Errorf("plan not found: %s", args[0])
			}
			runs, err := ledger.ListRuns(ctx, plan.ID, status)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				for i := range runs {
					runs[i].Spec = nil
				}
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"plan_id": plan.ID,
					"runs":    runs,
					"count":   len(runs),
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n\n", titleStyle.Render(plan.Name), plan.ID)
			table := make([][]string, len(runs))
			for i, r := range runs {
				detail := formatMetrics(r.Metrics)
				if r.Error != "" {
					detail = r.Error
				}
				table[i] = []string{
					fmt.Sprint(r.Index),
					statusStyle(r.Status).Render(string(r.Status)),
					r.Label,
					detail,
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"#", "STATUS", "RUN", "RESULT"}, table))
			return nil
		},
	}

	cmd.Flags().String("status", "", "Only runs with this status: pending, running, done or failed")

	return cmd
}
