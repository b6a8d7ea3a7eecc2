// Package governance gates forwarded calls and records them in the audit log.
//
// A request is denied when its path or arguments look destructive and it does
// not carry a confirmation. The check fails open: if it panics or cannot
// inspect the request, the request proceeds and the failure is logged.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
	"go.uber.org/zap"
)

// DeniedReason is returned for unconfirmed destructive requests.
const DeniedReason = "Destructive operation requires confirmation"

// Request is what the interceptor inspects.
type Request struct {
	Method string
	Path   string
	// Body is the raw request body, inspected when Arguments is nil.
	Body []byte
	// Arguments are the structured tool arguments, if known.
	Arguments any

	Confirmed      bool
	ClientIdentity bool
	RemoteAddr     string
}

// Decision is the outcome of Check.
type Decision interface {
	Allowed() bool
	String() string
}

// Allowed lets the request through.
type Allowed struct{}

func (Allowed) Allowed() bool  { return true }
func (Allowed) String() string { return "allowed" }

// Denied blocks the request.
type Denied struct {
	Reason string
}

func (Denied) Allowed() bool    { return false }
func (d Denied) String() string { return "denied: " + d.Reason }
func (d Denied) Error() string  { return d.Reason }

// CheckFailedButAllowed lets the request through after the check itself failed.
type CheckFailedButAllowed struct {
	Err error
}

func (CheckFailedButAllowed) Allowed() bool { return true }

func (d CheckFailedButAllowed) String() string {
	return fmt.Sprintf("allowed after check failure: %v", d.Err)
}

// Config controls the interceptor.
type Config struct {
	Enabled             bool     `envconfig:"ENABLED" default:"true"`
	AuditEnabled        bool     `envconfig:"AUDIT" default:"true"`
	BypassPrefixes      []string `envconfig:"BYPASS" default:"/health,/metrics"`
	DestructivePatterns []string `envconfig:"DESTRUCTIVE" default:"delete,remove,drop,truncate,destroy"`
}

// DefaultConfig returns the standard gate.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		AuditEnabled:        true,
		BypassPrefixes:      []string{"/health", "/metrics"},
		DestructivePatterns: []string{"delete", "remove", "drop", "truncate", "destroy"},
	}
}

// Auditor records audit events. *audit.Writer implements it.
type Auditor interface {
	Record(ctx context.Context, ev models.AuditEvent) (*models.AuditEvent, error)
}

// Stats are interceptor counters since start.
type Stats struct {
	Intercepted      int64   `json:"intercepted"`
	Bypassed         int64   `json:"bypassed"`
	Denied           int64   `json:"denied"`
	FailedOpen       int64   `json:"failedOpen"`
	Total            int64   `json:"total"`
	InterceptionRate float64 `json:"interceptionRate"`
}

// Interceptor applies Config to requests.
type Interceptor struct {
	cfg      Config
	patterns []string
	auditor  Auditor
	logger   *zap.Logger

	// OnDenied, if set, is called for every denial.
	OnDenied func(req Request)

	intercepted atomic.Int64
	bypassed    atomic.Int64
	denied      atomic.Int64
	failedOpen  atomic.Int64

	// inspect is replaced in tests to exercise the fail-open path.
	inspect func(req Request) (bool, error)
}

// New creates an interceptor. A nil auditor disables audit events.
func New(cfg Config, auditor Auditor, logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	patterns := make([]string, 0, len(cfg.DestructivePatterns))
	for _, p := range cfg.DestructivePatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	in := &Interceptor{
		cfg:      cfg,
		patterns: patterns,
		auditor:  auditor,
		logger:   logger,
	}
	in.inspect = in.destructive
	return in
}

// Enabled reports whether checks are applied.
func (in *Interceptor) Enabled() bool { return in.cfg.Enabled }

// ShouldBypass reports whether path skips the gate entirely and counts it if so.
func (in *Interceptor) ShouldBypass(path string) bool {
	for _, p := range in.cfg.BypassPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			in.bypassed.Add(1)
			return true
		}
	}
	return false
}

// IsDestructive reports whether the path or arguments contain a destructive
// pattern. A request that cannot be inspected is treated as not destructive.
func (in *Interceptor) IsDestructive(req Request) bool {
	ok, err := in.destructive(req)
	return err == nil && ok
}

func (in *Interceptor) destructive(req Request) (bool, error) {
	path := strings.ToLower(req.Path)

	var payload string
	switch {
	case req.Arguments != nil:
		data, err := json.Marshal(req.Arguments)
		if err != nil {
			return false, fmt.Errorf("encode arguments: %w", err)
		}
		payload = string(data)
	case len(req.Body) > 0:
		payload = string(req.Body)
	default:
		payload = "{}"
	}
	payload = strings.ToLower(payload)

	for _, p := range in.patterns {
		if strings.Contains(path, p) || strings.Contains(payload, p) {
			return true, nil
		}
	}
	return false, nil
}

// Check decides whether req may proceed and counts it as intercepted.
func (in *Interceptor) Check(req Request) (d Decision) {
	in.intercepted.Add(1)
	if !in.cfg.Enabled {
		return Allowed{}
	}

	defer func() {
		if r := recover(); r != nil {
			d = in.failOpen(req, fmt.Errorf("panic: %v", r))
		}
	}()

	destructive, err := in.inspect(req)
	if err != nil {
		return in.failOpen(req, err)
	}
	if destructive && !req.Confirmed {
		in.denied.Add(1)
		in.logger.Info("governance denied request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
		)
		if in.OnDenied != nil {
			in.OnDenied(req)
		}
		return Denied{Reason: DeniedReason}
	}
	return Allowed{}
}

func (in *Interceptor) failOpen(req Request, err error) Decision {
	in.failedOpen.Add(1)
	in.logger.Error("governance check failed, allowing request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Error(err),
	)
	return CheckFailedButAllowed{Err: err}
}

// Audit records req. Write failures are logged by the auditor and swallowed.
func (in *Interceptor) Audit(ctx context.Context, req Request) {
	if !in.cfg.AuditEnabled || in.auditor == nil {
		return
	}
	_, _ = in.auditor.Record(ctx, models.AuditEvent{
		Type:                  models.AuditRequest,
		Method:                req.Method,
		Path:                  req.Path,
		ClientIdentityPresent: req.ClientIdentity,
		Timestamp:             time.Now().UTC(),
	})
}

// Stats returns a snapshot of the counters.
func (in *Interceptor) Stats() Stats {
	s := Stats{
		Intercepted: in.intercepted.Load(),
		Bypassed:    in.bypassed.Load(),
		Denied:      in.denied.Load(),
		FailedOpen:  in.failedOpen.Load(),
	}
	s.Total = s.Intercepted + s.Bypassed
	if s.Total > 0 {
		s.InterceptionRate = float64(s.Intercepted) / float64(s.Total)
	}
	return s
}

type checkedKey struct{}

// WithChecked marks ctx as already gated, so inner layers do not check again.
func WithChecked(ctx context.Context) context.Context {
	return context.WithValue(ctx, checkedKey{}, true)
}

// Checked reports whether ctx was marked by WithChecked.
func Checked(ctx context.Context) bool {
	v, _ := ctx.Value(checkedKey{}).(bool)
	return v
}
