package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/sweep"
)

// fileReport is the validation outcome of one experiment file.
type fileReport struct {
	Path        string             `json:"path"`
	Valid       bool               `json:"valid"`
	Experiments int                `json:"experiments,omitempty"`
	Runs        int                `json:"runs,omitempty"`
	Error       string             `json:"error,omitempty"`
	Line        int                `json:"line,omitempty"`
	Column      int                `json:"column,omitempty"`
	Issues      []experiment.Issue `json:"issues,omitempty"`
}

func checkFile(path string) fileReport {
	rep := fileReport{Path: path}
	cfg, err := experiment.LoadFile(path)
	if err == nil {
		var plan *sweep.Plan
		if plan, err = sweep.Expand(cfg); err == nil {
			rep.Valid = true
			rep.Experiments = len(cfg.Experiments)
			rep.Runs = plan.Len()
			return rep
		}
	}

	rep.Error = err.Error()
	var pe *experiment.ParseError
	var ve *experiment.ValidationError
	switch {
	case errors.As(err, &pe):
		rep.Line, rep.Column = pe.Line, pe.Column
	case errors.As(err, &ve):
		rep.Issues = ve.Issues
	}
	return rep
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check experiment files for syntax and schema errors",
		Long: `Load each experiment file, strip its comments, and check it against the
experiment schema: required sections, known sweep paths, positive repeat
counts and non-empty value lists.

Exits non-zero if any file is invalid.

Examples:
  netsweep validate experiments/*.json
  netsweep validate sweep_network_size.json --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			reports := make([]fileReport, 0, len(args))
			invalid := 0
			for _, path := range args {
				rep := checkFile(path)
				if !rep.Valid {
					invalid++
				}
				reports = append(reports, rep)
			}

			if jsonOut {
				if err := encodeJSON(out, map[string]any{
					"files":   reports,
					"invalid": invalid,
				}); err != nil {
					return err
				}
			} else {
				for _, rep := range reports {
					printReport(out, rep)
				}
			}

			if invalid > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d of %d file(s) invalid", invalid, len(reports))}
			}
			return nil
		},
	}
}

func printReport(w io.Writer, rep fileReport) {
	name := filepath.Base(rep.Path)
	if rep.Valid {
		fmt.Fprintf(w, "%s %s: %d experiment(s), %d run(s)\n", okStyle.Render("✓"), name, rep.Experiments, rep.Runs)
		return
	}
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), name)
	if len(rep.Issues) == 0 {
		fmt.Fprintf(w, "    %s\n", rep.Error)
		return
	}
	for _, is := range rep.Issues {
		fmt.Fprintf(w, "    %s\n", is)
	}
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <file>",
		Short: "Print how many runs an experiment file expands to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			cfg, err := experiment.LoadFile(args[0])
			if err != nil {
				return err
			}
			plan, err := sweep.Expand(cfg)
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(out, map[string]any{
					"path":        args[0],
					"runs":        plan.Len(),
					"experiments": plan.Experiments(),
				})
			}

			rows := make([][]string, 0, len(cfg.Experiments))
			for _, e := range plan.Experiments() {
				rows = append(rows, []string{
					e.Name,
					fmt.Sprint(len(e.Axes)),
					fmt.Sprint(e.Combinations),
					fmt.Sprint(e.Repeat),
					fmt.Sprint(e.Runs),
				})
			}
			fmt.Fprint(out, renderTable([]string{"EXPERIMENT", "SWEEPS", "COMBINATIONS", "REPEAT", "RUNS"}, rows))
			fmt.Fprintf(out, "%s %d\n", titleStyle.Render("Total runs:"), plan.Len())
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of experiment files",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := experiment.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err
		},
	}
}
