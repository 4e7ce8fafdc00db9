package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/suite"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [-- go test flags]",
		Short: "Run the Go tests, then the vendored simulator library's suite",
		Long: `Run "go test ./..." in the project root. If lib/pynnless/test.sh exists, run
it from its own directory afterwards. Stops at the first failing step and
exits with its status.

Examples:
  netsweep test
  netsweep test -- -count=1 -race`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			cfg := loadConfig(cmd)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			opts := suite.Options{
				Root:       root,
				GoTestArgs: args,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
				Logger:     newLogger(cmd, cfg),
			}
			if jsonOut {
				// Keep stdout a single JSON document.
				opts.Stdout = cmd.ErrOrStderr()
			}

			res, err := suite.Run(ctx, opts)
			if err != nil {
				return err
			}

			if jsonOut {
				if err := encodeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				for _, s := range res.Steps {
					mark := okStyle.Render("✓")
					if s.ExitCode != 0 {
						mark = errorStyle.Render("✗")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", mark, s.Step.Name, s.Duration.Round(time.Millisecond))
				}
				for _, name := range res.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (skipped)\n", dimStyle.Render("-"), name)
				}
			}

			if res.ExitCode != 0 {
				return &exitError{code: res.ExitCode, msg: fmt.Sprintf("tests failed with exit status %d", res.ExitCode)}
			}
			return nil
		},
	}
	return cmd
}
