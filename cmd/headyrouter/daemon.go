package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/auth"
	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	"github.com/HeadyMe/heady-mcp-router/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	listenAddr string
	dbPath     string
	background bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the router daemon",
	Long: `Starts the router daemon. It connects to the backends in mcp_config.json,
supervises them, and serves the HTTP API. Settings come from HEADY_*
environment variables; flags override them.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (default HEADY_HTTP_ADDR)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to the audit database (default HEADY_PATH_DB)")
	daemonCmd.Flags().BoolVar(&background, "background", false, "Start detached and return once the API answers")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if background {
		return startDetached()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.HTTP.Addr = listenAddr
	}
	if dbPath != "" {
		cfg.Paths.DB = dbPath
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting headyrouter", zap.String("version", version))

	s, err := store.New(cfg.Paths.DB)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, s)
	if err != nil {
		s.Close()
		return err
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 2*cfg.Backend.HandshakeTimeout+time.Second)
	connected := a.backends.ConnectAll(connectCtx, a.autoconnect())
	cancelConnect()
	logger.Info("backends connected", zap.Strings("connected", connected))

	if a.supervisor != nil {
		a.supervisor.Start()
	}

	server := controlplane.NewServer(a.service, controlplane.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		RateLimit: controlplane.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Auth: auth.Config{
			Keys:         cfg.Auth.APIKeys,
			SkipPrefixes: auth.DefaultConfig().SkipPrefixes,
		},
	}, logger.Named("http"))

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			a.close()
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	a.close()
	if err := s.Close(); err != nil {
		logger.Warn("database close", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// startDetached re-executes the daemon in the background and waits for its
// health endpoint.
func startDetached() error {
	if _, err := checkHealth(); err == nil {
		fmt.Printf("Daemon already running at %s\n", apiAddr)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"daemon"}
	if listenAddr != "" {
		args = append(args, "--listen", listenAddr)
	}
	if dbPath != "" {
		args = append(args, "--db", dbPath)
	}

	child := exec.Command(exe, args...)
	configureDaemonProc(child)
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Print("Waiting for daemon...")
	for i := 0; i < 20; i++ {
		if _, err := checkHealth(); err == nil {
			fmt.Printf(" ready (pid %d)\n", child.Process.Pid)
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" timeout")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
