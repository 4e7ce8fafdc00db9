package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/netsweep/internal/constants"
	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/sweep"
)

func newExpandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand <file>",
		Short: "List the runs an experiment file expands to",
		Long: `Expand every experiment of a file into its runs, in order: experiments as
written, then the cross product of their sweeps (the last sweep key varies
fastest), then repeat indices.

Formats:
  table  one line per run (default)
  json   a single array of run specifications
  jsonl  one run specification per line
  yaml   a YAML sequence of run specifications

Examples:
  netsweep expand sweep_time_jitter.json
  netsweep expand sweep_time_jitter.json --experiment "Jitter vs. tau_m" --format jsonl
  netsweep expand sweep_network_size.json --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			format, _ := cmd.Flags().GetString("format")
			name, _ := cmd.Flags().GetString("experiment")
			limit, _ := cmd.Flags().GetInt("limit")

			if format == "" {
				format = loadConfig(cmd).Output.Format
			}
			if jsonOut {
				format = "json"
			}
			if !constants.ValidOutputFormats[format] {
				return fmt.Errorf("invalid format %q (must be table, json, jsonl, or yaml)", format)
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative")
			}

			cfg, err := experiment.LoadFile(args[0])
			if err != nil {
				return err
			}
			plan, err := sweep.Expand(cfg)
			if err != nil {
				return err
			}
			if name != "" {
				if plan, err = plan.Filter(name); err != nil {
					return err
				}
			}

			n := plan.Len()
			if limit > 0 {
				n = min(n, limit)
			}
			runs := make([]sweep.RunSpec, 0, n)
			for spec := range plan.All() {
				if limit > 0 && len(runs) == limit {
					break
				}
				runs = append(runs, spec)
			}
			return writeRuns(cmd.OutOrStdout(), format, runs, plan.Len())
		},
	}

	cmd.Flags().String("format", "", "Output format: table, json, jsonl or yaml (default from config)")
	cmd.Flags().String("experiment", "", "Only expand experiments with this name")
	cmd.Flags().Int("limit", 0, "Maximum runs to print (0 for all)")

	return cmd
}

func writeRuns(w io.Writer, format string, runs []sweep.RunSpec, total int) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)

	case "jsonl":
		enc := json.NewEncoder(w)
		for _, r := range runs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil

	case "yaml":
		docs := make([]any, len(runs))
		for i, r := range runs {
			doc, err := jsonToYAMLValue(r)
			if err != nil {
				return err
			}
			docs[i] = doc
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		seed := "-"
		if r.Seed != nil {
			seed = strconv.FormatInt(*r.Seed, 10)
		}
		rows[i] = []string{
			strconv.Itoa(r.Index),
			r.Experiment,
			strconv.Itoa(r.Combination),
			strconv.Itoa(r.Repeat),
			seed,
			formatAssignments(r.Assignments),
		}
	}
	fmt.Fprint(w, renderTable([]string{"#", "EXPERIMENT", "COMB", "REPEAT", "SEED", "PARAMETERS"}, rows))
	if len(runs) < total {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("... %d of %d runs shown", len(runs), total)))
	}
	return nil
}

// jsonToYAMLValue round-trips v through JSON so YAML output uses the JSON
// field names.
func jsonToYAMLValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func formatAssignments(as []sweep.Assignment) string {
	if len(as) == 0 {
		return dimStyle.Render("(base)")
	}
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.Path + "=" + strconv.FormatFloat(a.Value, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
