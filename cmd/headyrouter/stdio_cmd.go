package main

import (
	"context"

	"github.com/HeadyMe/heady-mcp-router/internal/audit"
	"github.com/HeadyMe/heady-mcp-router/internal/mcpserver"
	"github.com/HeadyMe/heady-mcp-router/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stdioNoDB bool

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the router as an MCP server on stdin/stdout",
	Long: `Runs the router as an MCP server for a client such as an IDE. Stdout
carries protocol frames only; logs go to stderr. Backends are connected
in-process, so no daemon is needed.`,
	RunE: runStdio,
}

func init() {
	stdioCmd.Flags().BoolVar(&stdioNoDB, "no-db", false, "Write audit events to the log instead of the database")
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var sink audit.Sink = audit.NewLogSink(logger)
	if !stdioNoDB {
		s, err := store.New(cfg.Paths.DB)
		if err != nil {
			logger.Warn("audit database unavailable, logging audit events", zap.Error(err))
		} else {
			defer s.Close()
			sink = s
		}
	}

	a, err := newApp(cfg, logger, sink)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Backend.HandshakeTimeout)
	connected := a.backends.ConnectAll(ctx, a.autoconnect())
	cancel()
	logger.Info("backends connected", zap.Strings("connected", connected))

	if a.supervisor != nil {
		a.supervisor.Start()
	}

	return mcpserver.Serve(mcpserver.New(a.service, version))
}
