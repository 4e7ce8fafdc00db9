// Package mcp provides an MCP (Model Context Protocol) server for netsweep.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/netsweep/internal/logging"
	"github.com/nvandessel/netsweep/internal/pathutil"
	"github.com/nvandessel/netsweep/internal/ratelimit"
	"github.com/nvandessel/netsweep/internal/store"
)

// Server wraps the MCP SDK server and exposes experiment files and the run
// ledger to agents.
type Server struct {
	server       *sdk.Server
	ledger       store.Ledger
	ownsLedger   bool
	root         string
	allowedDirs  []string
	logger       *slog.Logger
	events       *logging.EventLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name (e.g., "netsweep")
	Version  string // Server version
	Root     string // Project root directory
	StoreDir string // State directory; defaults to <Root>/.netsweep

	// Ledger, if set, is used instead of opening the SQLite ledger in
	// StoreDir. The server does not close it.
	Ledger store.Ledger

	Logger *slog.Logger
	Events *logging.EventLogger
}

// NewServer creates a new MCP server with the sweep tools registered.
func NewServer(cfg *Config) (*Server, error) {
	allowed, err := pathutil.AllowedDirs(cfg.Root)
	if err != nil {
		return nil, err
	}

	ledger, owns := cfg.Ledger, false
	if ledger == nil {
		ledger, err = store.NewSQLiteLedger(store.LocalPath(cfg.Root, cfg.StoreDir))
		if err != nil {
			return nil, fmt.Errorf("failed to open run ledger: %w", err)
		}
		owns = true
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		ledger:       ledger,
		ownsLedger:   owns,
		root:         cfg.Root,
		allowedDirs:  allowed,
		logger:       logger,
		events:       cfg.Events,
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "root", s.root)
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the ledger if the server opened it.
func (s *Server) Close() error {
	if !s.ownsLedger || s.ledger == nil {
		return nil
	}
	err := s.ledger.Close()
	s.ledger = nil
	return err
}
