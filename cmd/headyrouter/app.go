package main

import (
	"fmt"

	"github.com/HeadyMe/heady-mcp-router/internal/audit"
	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/HeadyMe/heady-mcp-router/internal/config"
	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
	"github.com/HeadyMe/heady-mcp-router/internal/logging"
	"github.com/HeadyMe/heady-mcp-router/internal/mcp"
	"github.com/HeadyMe/heady-mcp-router/internal/monitoring"
	"github.com/HeadyMe/heady-mcp-router/internal/supervisor"
	"go.uber.org/zap"
)

// app holds the wired components shared by daemon and stdio mode.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	backends   *backend.Manager
	supervisor *supervisor.Supervisor
	service    *controlplane.Service
}

// loadConfig reads HEADY_* settings and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Development = cfg.Log.Development
	return logging.New(lc)
}

// newApp wires the router around an audit sink.
func newApp(cfg *config.Config, logger *zap.Logger, sink audit.Sink) (*app, error) {
	rules, err := mcp.LoadConfig(cfg.Paths.Rules)
	if err != nil {
		return nil, fmt.Errorf("loading routing rules: %w", err)
	}
	registry := mcp.NewDefaultRegistry()
	recommender, err := mcp.NewRecommender(rules, registry)
	if err != nil {
		return nil, fmt.Errorf("routing rules: %w", err)
	}
	resolver := mcp.NewResolver(registry, recommender, rules.DefaultPreset, logger.Named("selector"))

	servers, err := backend.LoadServers(cfg.Paths.MCP)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded backend config",
		zap.String("path", cfg.Paths.MCP),
		zap.Int("servers", len(servers.Names())),
	)

	metrics := monitoring.NewMetrics()
	backends := backend.NewManager(servers, backend.Options{
		HandshakeTimeout: cfg.Backend.HandshakeTimeout,
		CallTimeout:      cfg.Backend.CallTimeout,
		DrainTimeout:     cfg.Backend.DrainTimeout,
		ConnectLimit:     cfg.Backend.ConnectLimit,
		ClientVersion:    version,
		OnChange:         metrics.SetConnected,
	}, logger.Named("backend"))

	auditor := audit.NewWriter(sink, logger.Named("audit"))
	gate := governance.New(cfg.Governance, auditor, logger.Named("governance"))

	var sup *supervisor.Supervisor
	if cfg.Supervisor.Enabled {
		sup = supervisor.New(backends, supervisor.Config{
			Interval:    cfg.Supervisor.Interval,
			Timeout:     cfg.Supervisor.Timeout,
			MaxFailures: cfg.Supervisor.MaxFailures,
		}, logger.Named("supervisor"))
		sup.OnPrune = func(name string) {
			metrics.BackendsPruned.WithLabelValues(name).Inc()
		}
	}

	service := controlplane.NewService(controlplane.Deps{
		Resolver:   resolver,
		Backends:   backends,
		Governance: gate,
		Auditor:    auditor,
		Metrics:    metrics,
		Supervisor: sup,
		Logger:     logger.Named("controlplane"),
		Version:    version,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		backends:   backends,
		supervisor: sup,
		service:    service,
	}, nil
}

// autoconnect returns the backends to connect at startup.
func (a *app) autoconnect() []string {
	if len(a.cfg.Backend.Autoconnect) > 0 {
		return a.cfg.Backend.Autoconnect
	}
	return a.backends.Configured()
}

// close stops the supervisor and drains every backend.
func (a *app) close() {
	if a.supervisor != nil {
		a.supervisor.Stop()
	}
	if err := a.backends.Close(); err != nil {
		a.logger.Warn("closing backends", zap.Error(err))
	}
}
