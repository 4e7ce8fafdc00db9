package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/netsweep/internal/logging"
	"github.com/nvandessel/netsweep/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve experiment files and the run ledger over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools:
  sweep_validate  validate an experiment file
  sweep_expand    list the runs of an experiment file, paged
  sweep_plans     list recorded plans with their progress
  sweep_runs      list the runs of a recorded plan

Resources:
  netsweep://schema       JSON Schema of experiment files
  netsweep://plans/{id}   progress summary of a recorded plan

Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			cfg := loadConfig(cmd)

			logger := newLogger(cmd, cfg)
			events := logging.NewEventLogger(stateDir(cmd, cfg), logLevel(cmd, cfg))
			defer events.Close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "netsweep",
				Version:  version,
				Root:     root,
				StoreDir: cfg.Store.Dir,
				Logger:   logger,
				Events:   events,
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
