package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/config"
	"github.com/nvandessel/netsweep/internal/logging"
	"github.com/nvandessel/netsweep/internal/store"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "netsweep",
		Short: "Parameter sweeps for spiking network experiments",
		Long: `netsweep loads experiment files (JSON with comments), validates them,
and expands their sweeps into concrete runs.

Each experiment names the parameters it sweeps. A run is one point of the
cross product of those sweeps, repeated "repeat" times. Expanded plans can
be recorded in a ledger and handed, run by run, to a simulator command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (default from config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newValidateCmd(),
		newExpandCmd(),
		newCountCmd(),
		newSchemaCmd(),
		newPlanCmd(),
		newPlansCmd(),
		newRunsCmd(),
		newRunCmd(),
		newExportCmd(),
		newImportCmd(),
		newArchivesCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
		newTestCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "netsweep version %s\n", version)
			return nil
		},
	}
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) && ee.code > 0 {
		return ee.code
	}
	return 1
}

// loadConfig loads the tool configuration, falling back to defaults with a
// warning when the file is broken.
func loadConfig(cmd *cobra.Command) *config.NetsweepConfig {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
		return config.Default()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
		return config.Default()
	}
	return cfg
}

// logLevel resolves the --log-level flag against the configured level.
func logLevel(cmd *cobra.Command, cfg *config.NetsweepConfig) string {
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		return lvl
	}
	return cfg.Logging.Level
}

func newLogger(cmd *cobra.Command, cfg *config.NetsweepConfig) *slog.Logger {
	return logging.NewLogger(logLevel(cmd, cfg), cmd.ErrOrStderr())
}

// stateDir returns the project state directory for the --root flag.
func stateDir(cmd *cobra.Command, cfg *config.NetsweepConfig) string {
	root, _ := cmd.Flags().GetString("root")
	return store.LocalPath(root, cfg.Store.Dir)
}

// openLedger opens the project's SQLite run ledger.
func openLedger(cmd *cobra.Command, cfg *config.NetsweepConfig) (*store.SQLiteLedger, error) {
	ledger, err := store.NewSQLiteLedger(stateDir(cmd, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return ledger, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// encodeJSON writes v as one JSON document.
func encodeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
