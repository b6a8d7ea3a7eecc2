// Package controlplane provides the HTTP API and service layer of the router.
package controlplane

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/audit"
	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
	"github.com/HeadyMe/heady-mcp-router/internal/mcp"
	"github.com/HeadyMe/heady-mcp-router/internal/models"
	"github.com/HeadyMe/heady-mcp-router/internal/monitoring"
	"github.com/HeadyMe/heady-mcp-router/internal/supervisor"
	"go.uber.org/zap"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "headyrouter"

// Deps are the collaborators of a Service. Governance, Auditor, Metrics and
// Supervisor are optional.
type Deps struct {
	Resolver   *mcp.Resolver
	Backends   *backend.Manager
	Governance *governance.Interceptor
	Auditor    governance.Auditor
	Metrics    *monitoring.Metrics
	Supervisor *supervisor.Supervisor
	Logger     *zap.Logger
	Version    string
}

// Service provides the control plane business logic.
type Service struct {
	resolver   *mcp.Resolver
	backends   *backend.Manager
	governance *governance.Interceptor
	auditor    governance.Auditor
	metrics    *monitoring.Metrics
	supervisor *supervisor.Supervisor
	logger     *zap.Logger
	version    string
	started    time.Time
}

// NewService creates a control plane service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Service{
		resolver:   d.Resolver,
		backends:   d.Backends,
		governance: d.Governance,
		auditor:    d.Auditor,
		metrics:    d.Metrics,
		supervisor: d.Supervisor,
		logger:     d.Logger,
		version:    d.Version,
		started:    time.Now(),
	}
	if d.Governance != nil && d.Governance.OnDenied == nil {
		d.Governance.OnDenied = s.denied
	}
	return s
}

// Governance returns the interceptor, if any.
func (s *Service) Governance() *governance.Interceptor { return s.governance }

// Metrics returns the metrics, if any.
func (s *Service) Metrics() *monitoring.Metrics { return s.metrics }

// --- Registry Operations ---

// Registry returns the service registry.
func (s *Service) Registry() *mcp.Registry { return s.resolver.Registry() }

// Services lists the registered services.
func (s *Service) Services() []mcp.ServiceDescriptor {
	return s.resolver.Registry().List()
}

// Presets lists the presets, including "all".
func (s *Service) Presets() []mcp.Preset {
	return s.resolver.Registry().Presets()
}

// ServerStatus describes a configured backend.
type ServerStatus struct {
	Name        string              `json:"name"`
	Transport   string              `json:"transport"`
	Connected   bool                `json:"connected"`
	Server      *backend.ServerInfo `json:"server,omitempty"`
	Tools       int                 `json:"tools"`
	ConnectedAt *time.Time          `json:"connectedAt,omitempty"`
}

// Servers reports every configured backend and its connection state.
func (s *Service) Servers() []ServerStatus {
	names := s.backends.Configured()
	out := make([]ServerStatus, 0, len(names))
	for _, n := range names {
		cfg, _ := s.backends.ServerConfig(n)
		st := ServerStatus{Name: n, Transport: cfg.Kind()}
		if c, ok := s.backends.Client(n); ok {
			info := c.Info()
			at := c.ConnectedAt()
			st.Connected = true
			st.Server = &info
			st.Tools = len(c.Tools())
			st.ConnectedAt = &at
		}
		out = append(out, st)
	}
	return out
}

// --- Selection Operations ---

// Recommend maps a task description to services.
// A blank task yields the always-on services only.
func (s *Service) Recommend(task string, history []mcp.Turn) mcp.Recommendation {
	return s.resolver.Recommender().Recommend(task, mcp.RecommendContext{History: history})
}

// Validate checks services against the live connection table.
func (s *Service) Validate(services []string) mcp.ValidationResult {
	return mcp.Validate(mcp.Names(services...), s.connected().Connected())
}

// Select resolves a combination and records it in the audit log.
func (s *Service) Select(ctx context.Context, opts mcp.CombinationOptions) mcp.Selection {
	sel := s.resolver.Combination(opts, s.connected())

	if s.metrics != nil {
		s.metrics.Selections.WithLabelValues(string(sel.Source)).Inc()
	}
	s.record(ctx, models.AuditEvent{
		Type:    models.AuditSelection,
		Method:  "SELECT",
		Path:    "/api/mcp/select",
		Outcome: string(sel.Source),
		Details: strings.Join(mcp.Strings(sel.Services), ","),
	})
	return sel
}

func (s *Service) connected() mcp.ConnectedLister {
	return liveTable{s.backends}
}

// liveTable adapts the connection table to mcp.ConnectedLister.
type liveTable struct{ m *backend.Manager }

func (t liveTable) Connected() []mcp.ServiceName { return mcp.Names(t.m.Connected()...) }

// --- Backend Operations ---

// Connect establishes a connection to a configured backend.
func (s *Service) Connect(ctx context.Context, name string) (ServerStatus, error) {
	if name == "" {
		return ServerStatus{}, ErrMissingService
	}
	if _, err := s.backends.Connect(ctx, name); err != nil {
		s.logger.Warn("connect backend", zap.String("service", name), zap.Error(err))
		return ServerStatus{}, err
	}
	for _, st := range s.Servers() {
		if st.Name == name {
			return st, nil
		}
	}
	return ServerStatus{Name: name, Connected: true}, nil
}

// Disconnect closes a backend connection. It is a no-op for absent names.
func (s *Service) Disconnect(name string) error {
	if name == "" {
		return ErrMissingService
	}
	return s.backends.Disconnect(name)
}

// ListTools returns the tool index of a connected backend.
func (s *Service) ListTools(ctx context.Context, service string) ([]backend.ToolDescriptor, error) {
	if service == "" {
		return nil, ErrMissingService
	}
	tools, err := s.backends.ListTools(ctx, service)
	if err != nil {
		s.logFailure("list tools", service, "", err)
		return nil, err
	}
	return tools, nil
}

// CallRequest is a tool invocation from a caller.
type CallRequest struct {
	Service        string
	Tool           string
	Args           map[string]any
	Confirmed      bool
	ClientIdentity bool
}

// CallTool forwards a tool call to a connected backend. Requests that did
// not pass the HTTP governance middleware are checked here.
func (s *Service) CallTool(ctx context.Context, req CallRequest) (json.RawMessage, error) {
	if req.Service == "" {
		return nil, ErrMissingService
	}
	if req.Tool == "" {
		return nil, ErrMissingTool
	}

	path := "/tools/" + req.Service + "/" + req.Tool
	if s.governance != nil && !governance.Checked(ctx) {
		greq := governance.Request{
			Method:         "CALL",
			Path:           path,
			Arguments:      req.Args,
			Confirmed:      req.Confirmed,
			ClientIdentity: req.ClientIdentity,
		}
		if d, ok := s.governance.Check(greq).(governance.Denied); ok {
			if s.metrics != nil {
				s.metrics.RecordToolCall(req.Service, outcome(d), 0)
			}
			return nil, d
		}
		s.governance.Audit(ctx, greq)
	}

	start := time.Now()
	raw, err := s.backends.CallTool(ctx, req.Service, req.Tool, req.Args)
	elapsed := time.Since(start)

	result := outcome(err)
	if s.metrics != nil {
		s.metrics.RecordToolCall(req.Service, result, elapsed)
	}
	s.record(ctx, models.AuditEvent{
		Type:                  models.AuditToolCall,
		Method:                "CALL",
		Path:                  path,
		ClientIdentityPresent: req.ClientIdentity,
		Service:               req.Service,
		Tool:                  req.Tool,
		Outcome:               result,
		Details:               audit.HashInputs(req.Args),
	})
	if err != nil {
		s.logFailure("call tool", req.Service, req.Tool, err)
		return nil, err
	}
	return raw, nil
}

// denied records a governance denial from either the middleware or CallTool.
func (s *Service) denied(req governance.Request) {
	if s.metrics != nil {
		s.metrics.GovernanceDenied.Inc()
	}
	s.record(context.Background(), models.AuditEvent{
		Type:                  models.AuditGovernanceDenied,
		Method:                req.Method,
		Path:                  req.Path,
		ClientIdentityPresent: req.ClientIdentity,
		Outcome:               governance.DeniedReason,
	})
}

func (s *Service) record(ctx context.Context, ev models.AuditEvent) {
	if s.auditor == nil {
		return
	}
	_, _ = s.auditor.Record(ctx, ev)
}

func (s *Service) logFailure(op, service, tool string, err error) {
	s.logger.Warn(op+" failed",
		zap.String("service", service),
		zap.String("tool", tool),
		zap.String("outcome", outcome(err)),
		zap.Error(err),
	)
}

// --- Health ---

// Health is the daemon status.
type Health struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime"`
	Connected  []string          `json:"connected"`
	Configured int               `json:"configured"`
	Registered int               `json:"registered"`
	Governance *governance.Stats `json:"governance,omitempty"`
	Supervisor *supervisor.Stats `json:"supervisor,omitempty"`
	Time       string            `json:"time"`
}

// Health reports the daemon status.
func (s *Service) Health() Health {
	h := Health{
		Status:     "healthy",
		Service:    ServiceName,
		Version:    s.version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Connected:  s.backends.Connected(),
		Configured: len(s.backends.Configured()),
		Registered: s.resolver.Registry().Count(),
		Time:       time.Now().UTC().Format(time.RFC3339),
	}
	if s.governance != nil {
		st := s.governance.Stats()
		h.Governance = &st
	}
	if s.supervisor != nil {
		st := s.supervisor.Stats()
		h.Supervisor = &st
	}
	return h
}
