package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/backup"
	"github.com/nvandessel/netsweep/internal/config"
	"github.com/nvandessel/netsweep/internal/constants"
	"github.com/nvandessel/netsweep/internal/pathutil"
)

// defaultKeep is how many archives export leaves in the default directory.
const defaultKeep = 10

func archiveDir(cmd *cobra.Command, cfg *config.NetsweepConfig) string {
	return filepath.Join(stateDir(cmd, cfg), constants.ArchiveDirName)
}

// confinePath rejects paths outside the project root and ~/.netsweep.
func confinePath(cmd *cobra.Command, path string) error {
	root, _ := cmd.Flags().GetString("root")
	allowed, err := pathutil.AllowedDirs(root)
	if err != nil {
		return fmt.Errorf("failed to determine allowed dirs: %w", err)
	}
	return pathutil.ValidatePath(path, allowed)
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <plan-id>",
		Short: "Write a plan and its run outcomes to an archive file",
		Long: `Export a recorded plan, its configuration and every run outcome to a
checksummed archive.

Default location: .netsweep/archives/netsweep-<id>-YYYYMMDD-HHMMSS.nsa
Archives in the default location are pruned to the newest --keep.

Examples:
  netsweep export <plan-id>
  netsweep export <plan-id> --output results/jitter.nsa --no-compress`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")
			noCompress, _ := cmd.Flags().GetBool("no-compress")
			keep, _ := cmd.Flags().GetInt("keep")
			cfg := loadConfig(cmd)

			prune := outputPath == ""
			dir := archiveDir(cmd, cfg)
			if prune {
				outputPath = backup.ArchivePath(dir, args[0], time.Now())
			} else if err := confinePath(cmd, outputPath); err != nil {
				return fmt.Errorf("archive path rejected: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
				return fmt.Errorf("failed to create archive directory: %w", err)
			}

			ledger, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			header, err := backup.Export(cmd.Context(), ledger, args[0], outputPath, !noCompress)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			var pruned []string
			if prune && keep > 0 {
				pruned, err = backup.Prune(dir, backup.Retention{Keep: keep}, time.Now())
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to prune archives: %v\n", err)
				}
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"path":       outputPath,
					"plan_id":    header.PlanID,
					"run_count":  header.RunCount,
					"compressed": header.Compressed,
					"pruned":     len(pruned),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d run(s)\n", okStyle.Render("Exported"), header.PlanName, header.RunCount)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			if len(pruned) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old archive(s)\n", len(pruned))
			}
			return nil
		},
	}

	cmd.Flags().String("output", "", "Archive path (default: auto-generated in .netsweep/archives/)")
	cmd.Flags().Bool("no-compress", false, "Write the payload uncompressed")
	cmd.Flags().Int("keep", defaultKeep, "Archives to keep in the default directory (0 keeps all)")

	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a plan archive into the ledger",
		Long: `Load a plan archive (either format, auto-detected) into the project ledger.

Modes:
  skip    - leave an existing plan with the same ID untouched (default)
  replace - delete the existing plan first
  copy    - import under a new plan ID

Examples:
  netsweep import .netsweep/archives/netsweep-0f8fad5b-20261019-083000.nsa
  netsweep import jitter.nsa --mode copy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeFlag, _ := cmd.Flags().GetString("mode")
			cfg := loadConfig(cmd)

			mode, err := backup.ParseImportMode(modeFlag)
			if err != nil {
				return err
			}
			if err := confinePath(cmd, args[0]); err != nil {
				return fmt.Errorf("archive path rejected: %w", err)
			}

			ledger, err := openLedger(cmd, cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			result, err := backup.Import(cmd.Context(), ledger, args[0], mode)
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), result)
			}
			switch {
			case result.Skipped:
				fmt.Fprintf(cmd.OutOrStdout(), "%s plan %s already exists (use --mode replace or copy)\n", warnStyle.Render("Skipped:"), result.PlanID)
			case result.Replaced:
				fmt.Fprintf(cmd.OutOrStdout(), "%s plan %s with %d run(s)\n", okStyle.Render("Replaced"), result.PlanID, result.Runs)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s plan %s with %d run(s)\n", okStyle.Render("Imported"), result.PlanID, result.Runs)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", "skip", "What to do when the plan exists: skip, replace or copy")

	return cmd
}

func newArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List plan archives in the project archive directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			archives, err := backup.ListArchives(archiveDir(cmd, loadConfig(cmd)))
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"archives": archives,
					"count":    len(archives),
				})
			}
			if len(archives) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archives found.")
				return nil
			}
			rows := make([][]string, len(archives))
			for i, a := range archives {
				rows[i] = []string{
					filepath.Base(a.Path),
					a.PlanID,
					fmt.Sprintf("v%d", a.Version),
					fmt.Sprintf("%.1f KB", float64(a.Size)/1024),
					a.CreatedAt.Local().Format("2006-01-02 15:04"),
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"FILE", "PLAN", "FORMAT", "SIZE", "CREATED"}, rows))
			return nil
		},
	}

	cmd.AddCommand(newArchivesVerifyCmd(), newArchivesPruneCmd())
	return cmd
}

func newArchivesVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check an archive's payload checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			version, err := backup.DetectFormat(path)
			if err == nil && version == backup.FormatV2 {
				err = backup.Verify(path)
			} else if err == nil {
				_, err = backup.ReadArchive(path)
			}

			if jsonOut {
				res := map[string]any{"path": path, "version": version, "valid": err == nil}
				if err != nil {
					res["error"] = err.Error()
				}
				if encErr := encodeJSON(cmd.OutOrStdout(), res); encErr != nil {
					return encErr
				}
			} else if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (v%d)\n", okStyle.Render("✓"), filepath.Base(path), version)
			}
			if err != nil {
				return fmt.Errorf("archive invalid: %w", err)
			}
			return nil
		},
	}
}

func newArchivesPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old archives",
		Long: `Delete archives that no retention limit keeps. An archive survives if it is
among the newest --keep or younger than --max-age.

Examples:
  netsweep archives prune --keep 5
  netsweep archives prune --max-age 30d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAgeFlag, _ := cmd.Flags().GetString("max-age")

			r := backup.Retention{Keep: keep}
			if maxAgeFlag != "" {
				d, err := backup.ParseDuration(maxAgeFlag)
				if err != nil {
					return err
				}
				r.MaxAge = d
			}
			if r.Keep <= 0 && r.MaxAge <= 0 {
				return fmt.Errorf("set --keep or --max-age")
			}

			deleted, err := backup.Prune(archiveDir(cmd, loadConfig(cmd)), r, time.Now())
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d archive(s)\n", len(deleted))
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Number of newest archives to keep")
	cmd.Flags().String("max-age", "", "Keep archives younger than this (e.g. 72h, 30d, 2w)")

	return cmd
}
